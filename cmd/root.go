package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/hh-market/internal/ledger"
	"github.com/spigell/hh-market/internal/queue"
	"github.com/spigell/hh-market/internal/warranty"
)

const (
	app       = "hh-market"
	envPrefix = "HH_MARKET"
)

type Config struct {
	HTTP      *HTTPConfig      `mapstructure:"http"`
	Database  *DatabaseConfig  `mapstructure:"database"`
	RabbitMQ  *RabbitMQConfig  `mapstructure:"rabbitmq"`
	Payment   *PaymentConfig   `mapstructure:"payment"`
	AI        *AIConfig        `mapstructure:"ai"`
	Valuation *ValuationConfig `mapstructure:"valuation"`
	Ledger    *LedgerConfig    `mapstructure:"ledger"`
	Warranty  *WarrantyConfig  `mapstructure:"warranty"`
}

type HTTPConfig struct {
	Addr            string `mapstructure:"addr"`
	MaxDocumentSize int64  `mapstructure:"max-document-size"`
}

type DatabaseConfig struct {
	DSN     string `mapstructure:"dsn"`
	DSNFile string `mapstructure:"dsn-file"`
	Debug   bool   `mapstructure:"debug"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

type PaymentConfig struct {
	APIURL    string `mapstructure:"api-url"`
	TokenFile string `mapstructure:"token-file"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ValuationConfig struct {
	MoneyPerPoint        string `mapstructure:"money-per-point"`
	ChineseHSKMembership bool   `mapstructure:"chinese-hsk-membership"`
}

type LedgerConfig struct {
	PlatinumMultiplier string        `mapstructure:"platinum-multiplier"`
	MaxRetries         int           `mapstructure:"max-retries"`
	RetryBackoff       time.Duration `mapstructure:"retry-backoff"`
}

type WarrantyConfig struct {
	Schedule    string        `mapstructure:"schedule"`
	ReleaseMode string        `mapstructure:"release-mode"`
	MaxAttempts int           `mapstructure:"max-attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	RunOnStart  bool          `mapstructure:"run-on-start"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "hh-market values candidate resumes and settles the recruitment point economy",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is hh-market.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.max-document-size", 10<<20)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.dsn-file", "")
	viper.SetDefault("database.debug", false)
	viper.SetDefault("rabbitmq.url", "")
	viper.SetDefault("rabbitmq.queue", queue.DefaultQueueName)
	viper.SetDefault("rabbitmq.prefetch", 4)
	viper.SetDefault("payment.api-url", "")
	viper.SetDefault("payment.token-file", "")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("valuation.money-per-point", "100000")
	viper.SetDefault("valuation.chinese-hsk-membership", false)
	viper.SetDefault("ledger.platinum-multiplier", "10")
	viper.SetDefault("ledger.max-retries", ledger.DefaultMaxRetries)
	viper.SetDefault("ledger.retry-backoff", ledger.DefaultRetryBackoff)
	viper.SetDefault("warranty.schedule", warranty.DefaultSchedule)
	viper.SetDefault("warranty.release-mode", string(ledger.ReleaseAdd))
	viper.SetDefault("warranty.max-attempts", warranty.DefaultMaxAttempts)
	viper.SetDefault("warranty.backoff", warranty.DefaultBackoff)
	viper.SetDefault("warranty.run-on-start", false)
}

func initConfig() {
	// .env is optional and never overrides the real environment.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config everything may come from the environment.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
