package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/api"
	"github.com/spigell/hh-market/internal/queue"
	"github.com/spigell/hh-market/internal/valuation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the valuation and point ledger HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().Bool("in-memory", false, "use the in-memory store instead of MySQL (development only)")
	serveCmd.Flags().Bool("with-scheduler", false, "run the warranty scheduler inside the server process")

	viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup("serve")
	inMemory, _ := cmd.Flags().GetBool("in-memory")
	withScheduler, _ := cmd.Flags().GetBool("with-scheduler")

	st, err := openStore(ctx, config, inMemory, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	rules, err := newRules(config)
	if err != nil {
		logger.Fatal("building valuation rules", zap.Error(err))
	}

	parser, estimator, err := newAI(ctx, config, rules, false, logger)
	if err != nil {
		logger.Fatal("building ai collaborators", zap.Error(err))
	}

	engine := valuation.New(&valuation.Deps{
		Store:     st,
		Rules:     rules,
		Estimator: estimator,
		Parser:    parser,
		Logger:    logger,
	})

	provider, err := newPaymentProvider(config, logger)
	if err != nil {
		logger.Fatal("building payment provider", zap.Error(err))
	}

	l, err := newLedger(config, st, provider, logger)
	if err != nil {
		logger.Fatal("building the ledger", zap.Error(err))
	}

	deps := api.Deps{
		Valuator: engine,
		Ledger:   l,
		Logger:   logger,
	}

	if config.HTTP != nil {
		deps.MaxDocumentSize = config.HTTP.MaxDocumentSize
	}

	if config.RabbitMQ != nil && config.RabbitMQ.URL != "" {
		mq, err := queue.Dial(queue.Config{
			URL:   config.RabbitMQ.URL,
			Queue: config.RabbitMQ.Queue,
		}, logger)
		if err != nil {
			logger.Fatal("connecting to rabbitmq", zap.Error(err))
		}
		defer mq.Close()
		deps.Publisher = mq
	} else {
		logger.Warn("rabbitmq is not configured, document uploads are disabled")
	}

	if withScheduler {
		scheduler, err := newScheduler(config, newTracker(config, st, l, logger), logger)
		if err != nil {
			logger.Fatal("building the warranty scheduler", zap.Error(err))
		}
		go scheduler.Run(ctx)
	}

	addr := viper.GetString("http.addr")
	if err := api.Run(ctx, addr, api.NewRouter(deps), logger); err != nil {
		logger.Fatal("serving http", zap.Error(err))
	}
}
