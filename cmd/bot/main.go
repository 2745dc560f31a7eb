package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"seriesbell/internal/config"
	"seriesbell/internal/domain/entity"
	"seriesbell/internal/infra/adapter/persistence/sqlite"
	"seriesbell/internal/infra/db"
	"seriesbell/internal/infra/platform"
	"seriesbell/internal/observability/logging"
	pkgconfig "seriesbell/internal/pkg/config"
	"seriesbell/internal/usecase/feedpoll"
)

var (
	cfg     config.Config
	logger  *slog.Logger
	logFile io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "seriesbell",
		Short:         "Discord bot announcing new chapters and episodes of followed series",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(pollCmd())
	rootCmd.AddCommand(dumpCmd())

	// "seriesbell" alone runs the bot
	rootCmd.RunE = runCmd().RunE
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "check" {
			return nil
		}
		return loadConfig()
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, then sets up the file logger.
func loadConfig() error {
	bootstrap := logging.NewTextLogger()
	config.LoadDotEnv(bootstrap)

	loaded, err := config.Load(bootstrap, pkgconfig.NewConfigMetrics("bot"))
	if err != nil {
		return err
	}
	cfg = loaded

	l, closer, err := logging.Setup(cfg.LogsPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	logger, logFile = l, closer
	slog.SetDefault(logger)
	return nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord, poll feeds and track voice sessions until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := db.MigrateUp(ctx, conn); err != nil {
				return err
			}
			logger.Info("database is up to date", slog.Int("version", db.LatestVersion()))
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Resolve a series URL and print its latest item without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			registry := platform.NewDefaultRegistry(platform.Options{})
			p, id, err := registry.Resolve(args[0])
			if err != nil {
				return err
			}
			src, err := p.FetchSource(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch source: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform: %s\n", p.Info().Name)
			fmt.Fprintf(out, "title:    %s\n", src.Name)
			fmt.Fprintf(out, "url:      %s\n", src.SourceURL)

			latest, err := p.FetchLatest(ctx, src.ItemsID)
			if err != nil {
				return fmt.Errorf("fetch latest: %w", err)
			}
			fmt.Fprintf(out, "latest:   %s (%s)\n", latest.Title, latest.Published.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "overall request timeout")
	return cmd
}

func pollCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check every feed and deliver updates without connecting to the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			if !once {
				a.poller.Start(ctx)
				<-ctx.Done()
				a.poller.Stop()
				return nil
			}
			report := feedpoll.New(a.subs, a.bus, 0, logger).Tick(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%d feeds checked, %d updated, %d finished, %d errors\n",
				report.Feeds, report.Updated, report.Finished, report.Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass with no pacing, then exit")
	return cmd
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Write a snapshot of the database to file and print the tracked feeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := db.Snapshot(ctx, conn, args[0]); err != nil {
				return err
			}
			logger.Info("database snapshot written", slog.String("path", args[0]))

			repos := sqlite.NewStore(conn).Repositories()
			feeds, err := repos.Feeds.SelectAllByTag(ctx, entity.TagSeries)
			if err != nil {
				return fmt.Errorf("list feeds: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d feeds\n", len(feeds))
			for _, f := range feeds {
				items, err := repos.Items.CountByFeedID(ctx, f.ID)
				if err != nil {
					return fmt.Errorf("count items of feed %d: %w", f.ID, err)
				}
				fmt.Fprintf(out, "%6d  %-9s %4d items  %s\n", f.ID, f.PlatformID, items, f.Name)
			}
			return nil
		},
	}
}
