// Command movebook aggregates chess game outcomes by position and serves
// ranked per-move statistics from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"movebook/internal/catalog"
	"movebook/internal/config"
	"movebook/internal/fetch"
	"movebook/internal/logx"
	"movebook/internal/service"
	"movebook/internal/store"
)

type app struct {
	svc   *service.Service
	store *store.Store
}

func newApp(cfgPath string) (*app, func(), error) {
	logger := logx.NewLogger()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	registry, err := catalog.Load(cfg.Download.CatalogPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Storage.DBPath, logger.With().Str("component", "store").Logger())
	if err != nil {
		// No usable backend at all; surfaced at startup, not masked.
		return nil, nil, fmt.Errorf("no usable persistence backend: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{
		Dir:         cfg.Storage.DatasetDir,
		Timeout:     cfg.Download.Timeout(),
		MaxAttempts: cfg.Download.MaxAttempts,
		RetryCap:    cfg.Download.RetryCap,
		Logger:      logger.With().Str("component", "fetch").Logger(),
	}, registry)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	svc, err := service.New(service.Config{
		Store:     st,
		Registry:  registry,
		Fetcher:   fetcher,
		CacheSize: cfg.Service.CacheSize,
		Logger:    logger.With().Str("component", "service").Logger(),
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	cleanup := func() {
		svc.Close()
		st.Close()
	}
	return &app{svc: svc, store: st}, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "movebook",
		Short:         "Position-keyed chess move outcome statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to TOML config file")

	var (
		sourceTag string
		minGames  int
	)
	statsCmd := &cobra.Command{
		Use:   "stats <fen>",
		Short: "Show ranked move statistics for a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer done()
			rows := a.svc.GetPositionStats(args[0], sourceTag, minGames)
			if len(rows) == 0 {
				fmt.Println("no statistics for position")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MOVE\tGAMES\tW\tL\tD\tPERF\tCONF\tSOURCE")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.3f\t%s\t%s\n",
					row.Move, row.TotalGames(), row.Wins, row.Losses, row.Draws,
					row.PerformanceScore(), row.ConfidenceLevel(), row.Source)
			}
			return w.Flush()
		},
	}
	statsCmd.Flags().StringVar(&sourceTag, "source", "", "restrict to one source tag")
	statsCmd.Flags().IntVar(&minGames, "min-games", 0, "hide moves with fewer games")

	downloadCmd := &cobra.Command{
		Use:   "download <dataset>",
		Short: "Download and verify a dataset archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer done()
			ctx, stop := signalContext()
			defer stop()
			if !a.svc.DownloadDataset(ctx, args[0]) {
				return fmt.Errorf("download of %s failed", args[0])
			}
			fmt.Printf("dataset %s downloaded and verified\n", args[0])
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <dataset>",
		Short: "Show the local state of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer done()
			status, err := a.svc.DatasetStatus(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("name:          %s\n", status.Name)
			fmt.Printf("description:   %s\n", status.Description)
			fmt.Printf("expected size: %dMB\n", status.ExpectedSizeMB)
			fmt.Printf("downloaded:    %v\n", status.Downloaded)
			fmt.Printf("verified:      %v\n", status.Verified)
			fmt.Printf("retries:       %d\n", status.RetryCount)
			if status.Downloaded {
				fmt.Printf("local size:    %d bytes\n", status.LocalSize)
				fmt.Printf("last modified: %s\n", status.LastModified.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <dataset>",
		Short: "Replay a downloaded archive into the statistics store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer done()
			ctx, stop := signalContext()
			defer stop()
			processed, err := a.svc.ProcessDataset(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("processed %d games from %s\n", processed, args[0])
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clear caches and remove corrupted archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer done()
			a.svc.Cleanup()
			return nil
		},
	}

	root.AddCommand(statsCmd, downloadCmd, statusCmd, ingestCmd, cleanupCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
