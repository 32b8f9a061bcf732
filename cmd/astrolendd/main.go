package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"astrolend/config"
	"astrolend/native/lending"
	"astrolend/native/oracle"
	"astrolend/observability/logging"
	telemetry "astrolend/observability/otel"
	"astrolend/services/lending/server"
	"astrolend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to astrolendd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("astrolendd", logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: strings.TrimSpace(os.Getenv("ASTROLEND_ENV")),
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("initialise telemetry", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", slog.String("path", cfg.DataDir), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	state := storage.NewLedgerState(db)

	adapter, err := buildOracle(cfg)
	if err != nil {
		logger.Error("configure oracle", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := lending.NewEngine(state, adapter, cfg.EngineParams())
	group := cfg.Group()

	if err := bootstrapBanks(state, cfg, group, logger); err != nil {
		logger.Error("bootstrap banks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc := server.New(engine, state, group, logger)
	if cfg.Auth.Enabled {
		secret := os.Getenv(cfg.Auth.SecretEnv)
		if strings.TrimSpace(secret) == "" {
			logger.Error("auth enabled but secret is empty", slog.String("env", cfg.Auth.SecretEnv))
			os.Exit(1)
		}
		svc.UseAuth(server.NewAuthenticator(server.AuthConfig{
			Enabled:    true,
			HMACSecret: secret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		}, logger))
	}
	handler := http.Handler(svc.Router())
	if cfg.Telemetry.Enabled {
		handler = otelhttp.NewHandler(handler, "astrolendd")
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("listen", slog.String("address", cfg.ListenAddress), slog.String("error", err.Error()))
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", slog.String("address", listener.Addr().String()))
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve", slog.String("error", serveErr.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("shutdown complete")
}

// buildOracle assembles the price pipeline: every configured source behind an
// aggregator, the aggregator behind the biasing adapter.
func buildOracle(cfg *config.Config) (*oracle.Adapter, error) {
	agg := oracle.NewAggregator(cfg.Oracle.Priority...)

	if endpoint := strings.TrimSpace(cfg.Oracle.HTTP.Endpoint); endpoint != "" {
		apiKey := ""
		if env := strings.TrimSpace(cfg.Oracle.HTTP.APIKeyEnv); env != "" {
			apiKey = os.Getenv(env)
		}
		agg.Register("http", oracle.NewHTTPSource(nil, endpoint, apiKey))
	}

	if len(cfg.Oracle.Static) > 0 {
		static := oracle.NewStaticSource()
		for _, quote := range cfg.Oracle.Static {
			price, err := decimal.NewFromString(quote.Price)
			if err != nil {
				return nil, fmt.Errorf("static quote %s: %w", quote.Ref, err)
			}
			confidence := decimal.Zero
			if strings.TrimSpace(quote.Confidence) != "" {
				confidence, err = decimal.NewFromString(quote.Confidence)
				if err != nil {
					return nil, fmt.Errorf("static quote %s: %w", quote.Ref, err)
				}
			}
			static.Set(quote.Ref, oracle.Quote{
				Price:      price,
				Confidence: confidence,
				Timestamp:  time.Now(),
			})
		}
		agg.Register("static", static)
	}

	opts := make([]oracle.Option, 0, 2)
	if raw := strings.TrimSpace(cfg.Oracle.ConfidenceWeight); raw != "" {
		k, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("confidence weight: %w", err)
		}
		opts = append(opts, oracle.WithConfWeight(k))
	}
	if raw := strings.TrimSpace(cfg.Oracle.ConfidenceCap); raw != "" {
		capFrac, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("confidence cap: %w", err)
		}
		opts = append(opts, oracle.WithConfCap(capFrac))
	}

	maxAge := time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second
	return oracle.NewAdapter(agg, maxAge, opts...), nil
}

// bootstrapBanks creates any configured bank that is not yet persisted.
// Existing banks keep their stored state so restarts never reset risk
// parameters mid-flight.
func bootstrapBanks(state *storage.LedgerState, cfg *config.Config, group uuid.UUID, logger *slog.Logger) error {
	for _, def := range cfg.Banks {
		existing, err := state.GetBank(def.Asset)
		if err != nil {
			return fmt.Errorf("load bank %s: %w", def.Asset, err)
		}
		if existing != nil {
			continue
		}
		bankCfg, err := def.BankConfig()
		if err != nil {
			return fmt.Errorf("bank %s: %w", def.Asset, err)
		}
		bank, err := lending.NewBank(group, def.Asset, def.OracleRef, bankCfg, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("bank %s: %w", def.Asset, err)
		}
		if err := state.PutBank(bank); err != nil {
			return fmt.Errorf("persist bank %s: %w", def.Asset, err)
		}
		logger.Info("bank bootstrapped", slog.String("asset", def.Asset))
	}
	return nil
}
