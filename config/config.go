package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"astrolend/native/lending"
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	GroupID       string `toml:"GroupID"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`

	Engine    EngineConfig    `toml:"engine"`
	Oracle    OracleConfig    `toml:"oracle"`
	Auth      AuthConfig      `toml:"auth"`
	Telemetry TelemetryConfig `toml:"telemetry"`

	Banks []BankDefinition `toml:"bank"`
}

// EngineConfig carries the accrual policy knobs.
type EngineConfig struct {
	YearSeconds          int64 `toml:"YearSeconds"`
	MaxAccrualGapSeconds int64 `toml:"MaxAccrualGapSeconds"`
}

// OracleConfig wires price sources and the confidence contract.
type OracleConfig struct {
	MaxAgeSeconds    int64    `toml:"MaxAgeSeconds"`
	ConfidenceWeight string   `toml:"ConfidenceWeight"`
	ConfidenceCap    string   `toml:"ConfidenceCap"`
	Priority         []string `toml:"Priority"`

	HTTP   HTTPOracleConfig    `toml:"http"`
	Static []StaticQuoteConfig `toml:"static"`
}

type HTTPOracleConfig struct {
	Endpoint  string `toml:"Endpoint"`
	APIKeyEnv string `toml:"APIKeyEnv"`
}

// StaticQuoteConfig seeds a fixed quote, for development setups.
type StaticQuoteConfig struct {
	Ref        string `toml:"Ref"`
	Price      string `toml:"Price"`
	Confidence string `toml:"Confidence"`
}

// AuthConfig gates the HTTP API behind HMAC-signed bearer tokens. The secret
// is read from the named environment variable so it stays out of the file.
type AuthConfig struct {
	Enabled          bool   `toml:"Enabled"`
	SecretEnv        string `toml:"SecretEnv"`
	Issuer           string `toml:"Issuer"`
	Audience         string `toml:"Audience"`
	ClockSkewSeconds int64  `toml:"ClockSkewSeconds"`
}

type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	ServiceName string `toml:"ServiceName"`
}

// BankDefinition bootstraps one bank on first start. Numeric risk parameters
// are decimal strings so the file round-trips without float drift.
type BankDefinition struct {
	Asset     string `toml:"Asset"`
	OracleRef string `toml:"OracleRef"`

	AssetWeightInit      string `toml:"AssetWeightInit"`
	AssetWeightMaint     string `toml:"AssetWeightMaint"`
	LiabilityWeightInit  string `toml:"LiabilityWeightInit"`
	LiabilityWeightMaint string `toml:"LiabilityWeightMaint"`

	DepositLimit   string `toml:"DepositLimit"`
	LiabilityLimit string `toml:"LiabilityLimit"`

	OptimalUtilization string `toml:"OptimalUtilization"`
	BaseRate           string `toml:"BaseRate"`
	OptimalRate        string `toml:"OptimalRate"`
	MaxRate            string `toml:"MaxRate"`
	ProtocolIRFee      string `toml:"ProtocolIRFee"`
	InsuranceIRFee     string `toml:"InsuranceIRFee"`
	ProtocolFixedAPR   string `toml:"ProtocolFixedAPR"`
	InsuranceFixedAPR  string `toml:"InsuranceFixedAPR"`

	LiquidationBonus string `toml:"LiquidationBonus"`
	InsuranceFeeCut  string `toml:"InsuranceFeeCut"`
	MaxCloseFactor   string `toml:"MaxCloseFactor"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8680"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./astrolend-data"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Engine.YearSeconds <= 0 {
		cfg.Engine.YearSeconds = lending.DefaultParams().YearSeconds
	}
	if cfg.Engine.MaxAccrualGapSeconds < 0 {
		cfg.Engine.MaxAccrualGapSeconds = 0
	}
	if cfg.Oracle.MaxAgeSeconds <= 0 {
		cfg.Oracle.MaxAgeSeconds = 60
	}
	if len(cfg.Oracle.Priority) == 0 {
		cfg.Oracle.Priority = []string{"http", "static"}
	}
	if strings.TrimSpace(cfg.Auth.SecretEnv) == "" {
		cfg.Auth.SecretEnv = "ASTROLEND_AUTH_SECRET"
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "astrolend"
	}
}

// Validate checks structural constraints before anything is wired up.
func (cfg *Config) Validate() error {
	if cfg.GroupID != "" {
		if _, err := uuid.Parse(cfg.GroupID); err != nil {
			return fmt.Errorf("invalid GroupID: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Banks))
	for i := range cfg.Banks {
		def := &cfg.Banks[i]
		asset := strings.TrimSpace(def.Asset)
		if asset == "" {
			return fmt.Errorf("bank %d: missing Asset", i)
		}
		if _, dup := seen[asset]; dup {
			return fmt.Errorf("bank %s: duplicate definition", asset)
		}
		seen[asset] = struct{}{}
		if _, err := def.BankConfig(); err != nil {
			return fmt.Errorf("bank %s: %w", asset, err)
		}
	}
	for _, q := range cfg.Oracle.Static {
		if strings.TrimSpace(q.Ref) == "" {
			return fmt.Errorf("static quote: missing Ref")
		}
		if _, err := decimal.NewFromString(q.Price); err != nil {
			return fmt.Errorf("static quote %s: bad Price: %w", q.Ref, err)
		}
	}
	return nil
}

// Group resolves the configured group id, minting a fresh one when unset.
func (cfg *Config) Group() uuid.UUID {
	if id, err := uuid.Parse(cfg.GroupID); err == nil {
		return id
	}
	return uuid.New()
}

// EngineParams converts the engine section into engine parameters.
func (cfg *Config) EngineParams() lending.Params {
	return lending.Params{
		YearSeconds:   cfg.Engine.YearSeconds,
		MaxAccrualGap: cfg.Engine.MaxAccrualGapSeconds,
	}
}

// BankConfig converts a bootstrap definition into a validated bank
// configuration.
func (def *BankDefinition) BankConfig() (lending.BankConfig, error) {
	out := lending.BankConfig{}
	fields := []struct {
		raw  string
		dst  *decimal.Decimal
		name string
	}{
		{def.AssetWeightInit, &out.AssetWeightInit, "AssetWeightInit"},
		{def.AssetWeightMaint, &out.AssetWeightMaint, "AssetWeightMaint"},
		{def.LiabilityWeightInit, &out.LiabilityWeightInit, "LiabilityWeightInit"},
		{def.LiabilityWeightMaint, &out.LiabilityWeightMaint, "LiabilityWeightMaint"},
		{def.DepositLimit, &out.DepositLimit, "DepositLimit"},
		{def.LiabilityLimit, &out.LiabilityLimit, "LiabilityLimit"},
		{def.OptimalUtilization, &out.Interest.OptimalUtilization, "OptimalUtilization"},
		{def.BaseRate, &out.Interest.BaseRate, "BaseRate"},
		{def.OptimalRate, &out.Interest.OptimalRate, "OptimalRate"},
		{def.MaxRate, &out.Interest.MaxRate, "MaxRate"},
		{def.ProtocolIRFee, &out.Interest.ProtocolIRFee, "ProtocolIRFee"},
		{def.InsuranceIRFee, &out.Interest.InsuranceIRFee, "InsuranceIRFee"},
		{def.ProtocolFixedAPR, &out.Interest.ProtocolFixedAPR, "ProtocolFixedAPR"},
		{def.InsuranceFixedAPR, &out.Interest.InsuranceFixedAPR, "InsuranceFixedAPR"},
		{def.LiquidationBonus, &out.LiquidationBonus, "LiquidationBonus"},
		{def.InsuranceFeeCut, &out.InsuranceFeeCut, "InsuranceFeeCut"},
		{def.MaxCloseFactor, &out.MaxCloseFactor, "MaxCloseFactor"},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return lending.BankConfig{}, fmt.Errorf("bad %s %q: %w", f.name, raw, err)
		}
		*f.dst = v
	}
	if err := out.Validate(); err != nil {
		return lending.BankConfig{}, err
	}
	return out, nil
}

// createDefault creates and saves a default configuration file with a single
// development bank quoted from a static feed.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8680",
		DataDir:       "./astrolend-data",
		GroupID:       uuid.NewString(),
		LogLevel:      "info",
		Engine: EngineConfig{
			YearSeconds:          lending.DefaultParams().YearSeconds,
			MaxAccrualGapSeconds: lending.DefaultParams().MaxAccrualGap,
		},
		Oracle: OracleConfig{
			MaxAgeSeconds: 60,
			Priority:      []string{"static"},
			Static: []StaticQuoteConfig{
				{Ref: "usd-feed", Price: "1", Confidence: "0"},
			},
		},
		Telemetry: TelemetryConfig{ServiceName: "astrolend"},
		Banks: []BankDefinition{
			{
				Asset:                "usd",
				OracleRef:            "usd-feed",
				AssetWeightInit:      "0.8",
				AssetWeightMaint:     "0.9",
				LiabilityWeightInit:  "1.25",
				LiabilityWeightMaint: "1.05",
				OptimalUtilization:   "0.8",
				BaseRate:             "0.01",
				OptimalRate:          "0.1",
				MaxRate:              "3",
				ProtocolIRFee:        "0.05",
				InsuranceIRFee:       "0.05",
				LiquidationBonus:     "0.05",
				InsuranceFeeCut:      "0.025",
				MaxCloseFactor:       "0.5",
			},
		},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
