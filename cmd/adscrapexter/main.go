// cmd/adscrapexter/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type rootOptions struct {
	configFile string
	envFile    string
	verbose    bool
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "adscrapexter",
		Short:         "Fill an ad-transparency worklist with app links, names and video ids",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging and technical error details")

	root.AddCommand(
		newRunCommand(opts),
		newPendingCommand(opts),
		newValidateCommand(opts),
		newTemplateCommand(),
		newVersionCommand(),
	)
	return root
}

// load reads .env and the configuration file, then builds the logger
func (o *rootOptions) load() (*config.Config, utils.Logger, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadFromFile(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Logging
	if o.verbose {
		logCfg.Level = "debug"
	}
	logger, err := utils.NewLogger(logCfg)
	if err != nil {
		return nil, nil, errors.Wrap(errors.KindConfig, err, "logger")
	}
	return cfg, logger, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCommand(os.Stdout)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		svc := errors.NewService().WithVerbose(verbose)
		fmt.Fprint(os.Stderr, svc.FormatErrorForCLI(err))
		os.Exit(svc.GetExitCode(err))
	}
}
