package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/config"
	"github.com/VollpenTinger/tg-bot-video-analytics/internal/logging"
)

var version = "dev"

func main() {
	godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.Environment, cfg.LogLevel)

	if err := newRootCmd(cfg.DatabaseURL).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(defaultDSN string) *cobra.Command {
	var dsn string

	root := &cobra.Command{
		Use:           "loader",
		Short:         "Load and inspect the video statistics database",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "database", defaultDSN, "database DSN (postgres://, mysql:// or sqlite://)")

	dsnFn := func() string { return dsn }
	root.AddCommand(
		newImportCmd(dsnFn),
		newSchemaCmd(dsnFn),
		newStatsCmd(dsnFn),
	)
	return root
}
