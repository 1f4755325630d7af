package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"otago-pg/internal/crawler"
)

var runFlags struct {
	maxPages    int
	concurrency int
	output      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every programme page listed in the sitemap",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.maxPages, "max-pages", 0, "Stop after this many pages (0 means no limit)")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "Override worker.concurrency")
	f.StringVarP(&runFlags.output, "output", "o", "", "Override output.path (JSON lines)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if runFlags.maxPages > 0 {
		cfg.Crawl.MaxPages = runFlags.maxPages
	}
	if runFlags.concurrency > 0 {
		cfg.Worker.Concurrency = runFlags.concurrency
	}
	if runFlags.output != "" {
		cfg.Output.Path = runFlags.output
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	engine, err := crawler.NewEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			logger.Error("shutdown failed", "error", cerr)
		}
	}()

	summary, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s: %w", engine.RunID(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d ok, %d skipped, %d failed, %d blocked, %d field errors\n",
		summary.RunID, summary.OK, summary.Skipped, summary.Failed, summary.Blocked, summary.FieldErrors)
	return nil
}
