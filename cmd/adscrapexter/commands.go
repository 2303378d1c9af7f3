// cmd/adscrapexter/commands.go
package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/store"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/internal/worklist"
)

func newPendingCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List the rows still needing work without opening a browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return printPending(cmd.Context(), cmd, cfg, logger)
		},
	}
}

func printPending(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger utils.Logger) error {
	st, err := store.New(ctx, cfg.Store, cfg.Layout.Width(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rec := worklist.NewReconciler(st, worklist.LayoutFrom(cfg.Layout), cfg.Mode, logger).WithRetry(cfg.StoreRetry)
	items, err := rec.Pending(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tADVERTISER\tNEEDS")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.SourceURL, it.Advertiser, it.Required)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d pending (mode %s)\n", len(items), cfg.Mode)
	return nil
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return err
			}
			if _, err := config.LoadFromFile(opts.configFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file '%s' is valid\n", opts.configFile)
			return nil
		},
	}
}

func newTemplateCommand() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print a configuration template",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateTemplate(backend))
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "store", "sheets", "store backend: sheets, excel, csv, sqlite, postgres, mysql, mongodb")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "AdScrapexter %s\n", version)
			fmt.Fprintf(out, "Build time: %s\n", buildTime)
			fmt.Fprintf(out, "Git commit: %s\n", gitCommit)
		},
	}
}
