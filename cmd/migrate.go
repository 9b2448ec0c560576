package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(cmd *cobra.Command, _ []string) {
		migrate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("seed", false, "insert the default point packages when none exist")
}

func migrate(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup("migrate")

	st, err := openMySQL(config, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("migrating", zap.Error(err))
	}

	if seed, _ := cmd.Flags().GetBool("seed"); seed {
		if err := st.SeedPointPackages(ctx, store.DefaultPointPackages()); err != nil {
			logger.Fatal("seeding point packages", zap.Error(err))
		}
	}

	logger.Info("database is up to date")
}
