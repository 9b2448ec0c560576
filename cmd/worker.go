package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/queue"
	"github.com/spigell/hh-market/internal/valuation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume uploaded resume documents and valuate them",
	Run: func(_ *cobra.Command, _ []string) {
		work()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func work() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup("worker")

	if config.RabbitMQ == nil || config.RabbitMQ.URL == "" {
		logger.Fatal("rabbitmq.url is required for the worker")
	}

	st, err := openMySQL(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	rules, err := newRules(config)
	if err != nil {
		logger.Fatal("building valuation rules", zap.Error(err))
	}

	parser, estimator, err := newAI(ctx, config, rules, true, logger)
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

	mq, err := queue.Dial(queue.Config{
		URL:      config.RabbitMQ.URL,
		Queue:    config.RabbitMQ.Queue,
		Prefetch: config.RabbitMQ.Prefetch,
	}, logger)
	if err != nil {
		logger.Fatal("connecting to rabbitmq", zap.Error(err))
	}
	defer mq.Close()

	worker := queue.NewWorker(engine, logger)

	logger.Info("waiting for valuation jobs", zap.String("queue", config.RabbitMQ.Queue))
	if err := mq.Consume(ctx, worker.Handle); err != nil {
		logger.Fatal("consuming valuation jobs", zap.Error(err))
	}
}
