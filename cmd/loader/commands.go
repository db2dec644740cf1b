package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/VollpenTinger/tg-bot-video-analytics/internal/database"
)

func openDB(dsn string) (*database.DB, error) {
	if dsn == "" {
		return nil, errors.New("no database configured: set DATABASE_URL or pass --database")
	}
	return database.New(dsn)
}

func newImportCmd(dsn func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Create the schema and upsert videos with their snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dsn())
			if err != nil {
				return err
			}
			defer db.Close()
			return runImport(cmd.Context(), db, args[0], cmd.OutOrStdout())
		},
	}
}

func newSchemaCmd(dsn func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create tables and indexes if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dsn())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Initialize(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Schema ready (%s)\n", db.Dialect)
			return nil
		},
	}
}

func newStatsCmd(dsn func() string) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show row counts and the most recent videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dsn())
			if err != nil {
				return err
			}
			defer db.Close()
			return runStats(cmd.Context(), db, recent, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 5, "number of recent videos to list")
	return cmd
}

func runImport(ctx context.Context, db *database.DB, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	dataset, err := database.DecodeDataset(f)
	if err != nil {
		return err
	}

	if err := db.Initialize(ctx); err != nil {
		return err
	}

	start := time.Now()
	report, err := db.LoadDataset(ctx, dataset)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Loaded %d videos and %d snapshots in %v\n",
		report.VideosLoaded, report.SnapshotsLoaded, time.Since(start).Round(time.Millisecond))
	for _, skipped := range report.Skipped {
		fmt.Fprintf(out, "⚠️  Skipped %s\n", skipped)
	}
	return nil
}

func runStats(ctx context.Context, db *database.DB, recent int, out io.Writer) error {
	stats, err := db.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "📊 Videos: %d\n📊 Snapshots: %d\n", stats.Videos, stats.Snapshots)

	if recent <= 0 || stats.Videos == 0 {
		return nil
	}

	videos, err := db.RecentVideos(ctx, recent)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATOR\tCREATED\tVIEWS\tLIKES")
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", v.ID, v.CreatorID, v.VideoCreatedAt.Format("2006-01-02"), v.ViewsCount, v.LikesCount)
	}
	return w.Flush()
}
