package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"otago-pg/internal/crawler"
	"otago-pg/internal/extract"
)

var constantsCmd = &cobra.Command{
	Use:   "constants",
	Short: "Print the site-wide values shared by every record",
	RunE:  runConstants,
}

func runConstants(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	cfg.DB.DSN = ""
	cfg.Mongo.URI = ""
	cfg.Output.Path = ""

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	stack, err := crawler.BuildStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	constants := extract.LoadConstants(ctx, stack.Opener, cfg.Site, cfg.Rendering.SubLinkTimeout.Duration, logger)
	body, err := json.MarshalIndent(constants, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
