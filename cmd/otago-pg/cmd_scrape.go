package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"otago-pg/internal/crawler"
	"otago-pg/internal/extract"
	"otago-pg/internal/storage"
	"otago-pg/pkg/types"
)

var scrapeFlags struct {
	name    string
	persist bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Extract a single programme page and print the outcome as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.name, "name", "", "Listing name of the programme, used only in logs")
	f.BoolVar(&scrapeFlags.persist, "persist", false, "Also store the outcome in the configured stores")
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if !scrapeFlags.persist {
		cfg.DB.DSN = ""
		cfg.Mongo.URI = ""
		cfg.Output.Path = ""
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := crawler.BuildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	constants := extract.LoadConstants(ctx, stack.Opener, cfg.Site, cfg.Rendering.SubLinkTimeout.Duration, logger)
	extractor := extract.NewExtractor(cfg, constants, stack.LinkViews, logger)

	tab, err := stack.Browser.NewTab()
	if err != nil {
		return err
	}
	defer tab.Close()

	info := types.MajorInfo{Name: scrapeFlags.name, URL: args[0]}
	outcome := extractor.Scrape(ctx, tab, info)

	var persistErr error
	if stack.Storage != nil {
		persistErr = stack.Storage.Persist(ctx, storage.Entry{
			RunID:     storage.NewRunID(),
			School:    cfg.Site.School,
			Level:     cfg.Site.Level,
			ScrapedAt: time.Now(),
			Outcome:   outcome,
		})
	}

	body, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return errors.Join(err, persistErr)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return persistErr
}
