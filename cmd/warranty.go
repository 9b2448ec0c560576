package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/store"
)

const dayLayout = "2006-01-02"

var warrantyCmd = &cobra.Command{
	Use:   "warranty",
	Short: "Headhunt warranty countdown",
}

var warrantyTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one warranty tick now",
	Run: func(cmd *cobra.Command, _ []string) {
		tick(cmd)
	},
}

var warrantyScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the warranty tick on the configured schedule",
	Run: func(_ *cobra.Command, _ []string) {
		schedule()
	},
}

func init() {
	rootCmd.AddCommand(warrantyCmd)
	warrantyCmd.AddCommand(warrantyTickCmd, warrantyScheduleCmd)

	warrantyTickCmd.Flags().String("day", "", "day to tick as YYYY-MM-DD (default is today, UTC)")
	warrantyTickCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func tick(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup("warranty tick")

	day := store.Day(time.Now())
	if raw, _ := cmd.Flags().GetString("day"); raw != "" {
		parsed, err := time.Parse(dayLayout, raw)
		if err != nil {
			logger.Fatal("parsing --day", zap.Error(err))
		}
		day = parsed
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Tick warranties for %s", day.Format(dayLayout)),
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
				logger.Info("exiting", zap.String("reason", "got no from prompt"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	st, err := openMySQL(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	l, err := newLedger(config, st, nil, logger)
	if err != nil {
		logger.Fatal("building the ledger", zap.Error(err))
	}

	report, err := newTracker(config, st, l, logger).Tick(ctx, day)
	if err != nil {
		logger.Fatal("warranty tick failed", zap.Error(err), zap.Int("failed", report.Failed))
	}

	logger.Info("warranty tick done",
		zap.Int("ticked", report.Ticked),
		zap.Int("released", report.Released),
	)
}

func schedule() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup("warranty schedule")

	st, err := openMySQL(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	l, err := newLedger(config, st, nil, logger)
	if err != nil {
		logger.Fatal("building the ledger", zap.Error(err))
	}

	scheduler, err := newScheduler(config, newTracker(config, st, l, logger), logger)
	if err != nil {
		logger.Fatal("building the warranty scheduler", zap.Error(err))
	}

	if err := scheduler.Run(ctx); err != nil {
		logger.Fatal("warranty scheduler", zap.Error(err))
	}
}
