package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/ai/gemini"
	"github.com/spigell/hh-market/internal/ledger"
	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/payment"
	"github.com/spigell/hh-market/internal/secrets"
	"github.com/spigell/hh-market/internal/store"
	"github.com/spigell/hh-market/internal/valuation"
	"github.com/spigell/hh-market/internal/warranty"
)

// setup builds the logger and the decoded config shared by every command.
func setup(command string) (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the hh-market", zap.String("command", command), zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

func redacted(config *Config) Config {
	c := *config
	if c.Database != nil && c.Database.DSN != "" {
		db := *c.Database
		db.DSN = "<redacted>"
		c.Database = &db
	}
	if c.RabbitMQ != nil && c.RabbitMQ.URL != "" {
		mq := *c.RabbitMQ
		mq.URL = "<redacted>"
		c.RabbitMQ = &mq
	}
	return c
}

// openStore connects to MySQL, or returns a fresh in-memory store with the
// default point packages when inMemory is set.
func openStore(ctx context.Context, config *Config, inMemory bool, logger *zap.Logger) (store.Store, error) {
	if inMemory {
		logger.Warn("using the in-memory store, data is lost on exit")

		mem := store.NewMemory()
		err := mem.Transaction(ctx, func(tx store.Tx) error {
			for _, pkg := range store.DefaultPointPackages() {
				if err := tx.CreatePointPackage(&pkg); err != nil {
					return err
				}
			}
			return nil
		})
		return mem, err
	}

	return openMySQL(config, logger)
}

func openMySQL(config *Config, logger *zap.Logger) (*store.MySQL, error) {
	db := config.Database
	if db == nil {
		return nil, errors.New("database configuration is required")
	}

	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: db.DSN,
		File:  db.DSNFile,
		Env:   envPrefix + "_DATABASE_DSN",
	})
	if err != nil {
		return nil, err
	}

	return store.OpenMySQL(dsn, db.Debug, logger)
}

func newRules(config *Config) (*valuation.Rules, error) {
	opts := valuation.Options{}
	if vc := config.Valuation; vc != nil {
		opts.ChineseHSKMembership = vc.ChineseHSKMembership
		if s := strings.TrimSpace(vc.MoneyPerPoint); s != "" {
			mpp, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("valuation.money-per-point: %w", err)
			}
			opts.MoneyPerPoint = &mpp
		}
	}

	return valuation.NewRules(valuation.DefaultTiers(), opts)
}

// newAI returns the Gemini parser and estimator. Both are nil when no API key
// is configured; requireAI turns that into an error.
func newAI(ctx context.Context, config *Config, rules *valuation.Rules, requireAI bool, logger *zap.Logger) (ai.Parser, ai.Estimator, error) {
	cfg := config.AI
	if cfg == nil || cfg.Gemini == nil {
		cfg = &AIConfig{Gemini: &GeminiConfig{}}
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		if requireAI {
			return nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}
		logger.Warn("gemini is not configured, salary based valuation is disabled", zap.Error(err))
		return nil, nil, nil
	}

	genLogger := logger.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, nil, err
	}

	var levels []string
	for _, tier := range rules.Tiers() {
		levels = append(levels, tier.Titles...)
	}

	parser := gemini.NewParser(generator, levels, genLogger, cfg.Gemini.MaxLogLength)
	estimator := gemini.NewEstimator(generator, genLogger, cfg.Gemini.MaxLogLength)

	return parser, estimator, nil
}

func newPaymentProvider(config *Config, logger *zap.Logger) (payment.Provider, error) {
	pc := config.Payment
	if pc == nil || strings.TrimSpace(pc.APIURL) == "" {
		logger.Warn("payment provider is not configured, point purchases are disabled")
		return nil, nil
	}

	token, err := secrets.Load(secrets.Source{
		Name: "payment token",
		File: pc.TokenFile,
		Env:  envPrefix + "_PAYMENT_TOKEN",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set payment.token-file or %s_PAYMENT_TOKEN)", err, envPrefix)
	}

	return payment.New(pc.APIURL, token, logger.With(zap.String("component", "payment"))), nil
}

func newLedger(config *Config, st store.Store, provider payment.Provider, logger *zap.Logger) (*ledger.Ledger, error) {
	cfg := ledger.DefaultConfig()

	if lc := config.Ledger; lc != nil {
		if s := strings.TrimSpace(lc.PlatinumMultiplier); s != "" {
			m, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("ledger.platinum-multiplier: %w", err)
			}
			cfg.PlatinumMultiplier = m
		}
		cfg.MaxRetries = lc.MaxRetries
		cfg.RetryBackoff = lc.RetryBackoff
	}

	if wc := config.Warranty; wc != nil && wc.ReleaseMode != "" {
		cfg.ReleaseMode = ledger.ReleaseMode(strings.ToLower(strings.TrimSpace(wc.ReleaseMode)))
	}

	return ledger.New(st, provider, cfg, logger)
}

func newTracker(config *Config, st store.Store, l *ledger.Ledger, logger *zap.Logger) *warranty.Tracker {
	cfg := warranty.Config{}
	if wc := config.Warranty; wc != nil {
		cfg.MaxAttempts = wc.MaxAttempts
		cfg.Backoff = wc.Backoff
	}

	return warranty.NewTracker(st, l, cfg, logger)
}

func newScheduler(config *Config, tracker *warranty.Tracker, logger *zap.Logger) (*warranty.Scheduler, error) {
	opts := warranty.SchedulerOptions{}
	if wc := config.Warranty; wc != nil {
		opts.Spec = wc.Schedule
		opts.RunOnStart = wc.RunOnStart
	}

	return warranty.NewScheduler(tracker, opts, logger.With(zap.String("component", "warranty-scheduler")))
}
