package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesBankDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `ListenAddress = "0.0.0.0:9000"
DataDir = "./data"
GroupID = "9f3a1c52-7b1d-4f7e-9a64-52f1d8cf0a11"
LogLevel = "debug"

[engine]
YearSeconds = 31536000
MaxAccrualGapSeconds = 86400

[oracle]
MaxAgeSeconds = 30
ConfidenceWeight = "2.12"
ConfidenceCap = "0.05"
Priority = ["http", "static"]

[oracle.http]
Endpoint = "https://feeds.example.com/quote"
APIKeyEnv = "FEED_API_KEY"

[[oracle.static]]
Ref = "usd-feed"
Price = "1"
Confidence = "0"

[telemetry]
Enabled = true
Endpoint = "collector:4317"
Insecure = true

[[bank]]
Asset = "usd"
OracleRef = "usd-feed"
AssetWeightInit = "0.8"
AssetWeightMaint = "0.9"
LiabilityWeightInit = "1.25"
LiabilityWeightMaint = "1.05"
DepositLimit = "1000000"
OptimalUtilization = "0.8"
BaseRate = "0.01"
OptimalRate = "0.1"
MaxRate = "3"
LiquidationBonus = "0.05"
InsuranceFeeCut = "0.03"
MaxCloseFactor = "0.5"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.Engine.MaxAccrualGapSeconds != 86400 {
		t.Fatalf("unexpected accrual gap: %d", cfg.Engine.MaxAccrualGapSeconds)
	}
	if got := cfg.Group().String(); got != "9f3a1c52-7b1d-4f7e-9a64-52f1d8cf0a11" {
		t.Fatalf("unexpected group id: %s", got)
	}
	if len(cfg.Banks) != 1 {
		t.Fatalf("expected one bank, got %d", len(cfg.Banks))
	}

	bankCfg, err := cfg.Banks[0].BankConfig()
	if err != nil {
		t.Fatalf("bank config: %v", err)
	}
	if bankCfg.AssetWeightInit.String() != "0.8" {
		t.Fatalf("unexpected asset weight: %s", bankCfg.AssetWeightInit)
	}
	if bankCfg.DepositLimit.String() != "1000000" {
		t.Fatalf("unexpected deposit limit: %s", bankCfg.DepositLimit)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
	if cfg.Oracle.HTTP.Endpoint != "https://feeds.example.com/quote" {
		t.Fatalf("unexpected oracle endpoint: %s", cfg.Oracle.HTTP.Endpoint)
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.ListenAddress != ":8680" {
		t.Fatalf("unexpected default listen address: %s", cfg.ListenAddress)
	}
	if len(cfg.Banks) == 0 {
		t.Fatalf("default config must seed a bank")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	// A second load reads the persisted file back.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.GroupID != cfg.GroupID {
		t.Fatalf("group id not persisted: %s vs %s", again.GroupID, cfg.GroupID)
	}
}

func TestLoadRejectsBadBank(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `[[bank]]
Asset = "usd"
AssetWeightInit = "1.5"
LiabilityWeightInit = "1.1"
LiabilityWeightMaint = "1"
OptimalUtilization = "0.8"
BaseRate = "0.01"
OptimalRate = "0.1"
MaxRate = "3"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected rejection of out-of-range weight")
	}
}

func TestLoadRejectsDuplicateBanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `[[bank]]
Asset = "usd"
AssetWeightMaint = "1"
LiabilityWeightInit = "1.1"
LiabilityWeightMaint = "1"
OptimalUtilization = "0.8"
BaseRate = "0.01"
OptimalRate = "0.1"
MaxRate = "3"

[[bank]]
Asset = "usd"
AssetWeightMaint = "1"
LiabilityWeightInit = "1.1"
LiabilityWeightMaint = "1"
OptimalUtilization = "0.8"
BaseRate = "0.01"
OptimalRate = "0.1"
MaxRate = "3"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected rejection of duplicate bank")
	}
}
