// cmd/adscrapexter/run.go
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/valpere/AdScrapexter/internal/antidetect"
	"github.com/valpere/AdScrapexter/internal/browser"
	"github.com/valpere/AdScrapexter/internal/config"
	"github.com/valpere/AdScrapexter/internal/continuation"
	"github.com/valpere/AdScrapexter/internal/errors"
	"github.com/valpere/AdScrapexter/internal/monitoring"
	"github.com/valpere/AdScrapexter/internal/pipeline"
	"github.com/valpere/AdScrapexter/internal/scraper"
	"github.com/valpere/AdScrapexter/internal/store"
	"github.com/valpere/AdScrapexter/internal/utils"
	"github.com/valpere/AdScrapexter/internal/worklist"
)

type runOptions struct {
	dryRun bool
	once   bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pass over the worklist, or a scheduled loop when schedule is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			metrics := monitoring.NewMetrics(cfg.Monitoring.Namespace)
			health := monitoring.NewHealthManager(version)
			if cfg.Monitoring.Enabled {
				srv := monitoring.NewServer(cfg.Monitoring.Listen, monitoring.NewRouter(metrics, health), logger)
				go func() {
					if err := srv.Serve(cmd.Context()); err != nil {
						logger.Errorf("monitoring server: %v", err)
					}
				}()
			}

			if cfg.Schedule == "" || opts.once {
				return handOffIsClean(cmd.OutOrStdout(), runSession(cmd.Context(), cfg, opts, metrics, health, logger))
			}
			return runScheduled(cmd.Context(), root.configFile, cfg, opts, metrics, health, logger)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "extract but log writes instead of sending them")
	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single pass even when schedule is set")
	return cmd
}

// handOffIsClean turns a deliberate hand-off into a zero exit
func handOffIsClean(out io.Writer, err error) error {
	if errors.IsKind(err, errors.KindHandOff) {
		fmt.Fprintf(out, "Session handed off: %v\n", err)
		return nil
	}
	return err
}

// runScheduled runs a pass on every cron tick using the latest valid
// configuration. Overlapping ticks are skipped.
func runScheduled(ctx context.Context, path string, cfg *config.Config, opts *runOptions, metrics *monitoring.Metrics, health *monitoring.HealthManager, logger utils.Logger) error {
	watcher, err := config.NewConfigWatcher(path, cfg, logger)
	if err != nil {
		return errors.Wrap(errors.KindConfig, err, "watch configuration")
	}
	defer watcher.Close()
	watcher.OnChange(func(c *config.Config) {
		logger.Infof("configuration reloaded; next pass uses mode %s", c.Mode)
	})

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		err := runSession(ctx, watcher.Current(), opts, metrics, health, logger)
		if err != nil && !errors.IsKind(err, errors.KindHandOff) {
			logger.Errorf("scheduled pass failed: %v", err)
		}
	}); err != nil {
		return errors.Wrap(errors.KindConfig, err, "invalid schedule")
	}

	logger.Infof("scheduled with %q", cfg.Schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// session holds everything one pass owns
type session struct {
	store   store.Store
	engine  browser.Engine
	pool    *browser.PagePool
	emitter continuation.Emitter
	runner  *pipeline.Runner
}

func (s *session) Close() {
	if s.pool != nil {
		_ = s.pool.Close()
	}
	if s.engine != nil {
		_ = s.engine.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if c, ok := s.emitter.(io.Closer); ok {
		_ = c.Close()
	}
}

func runSession(ctx context.Context, cfg *config.Config, opts *runOptions, metrics *monitoring.Metrics, health *monitoring.HealthManager, logger utils.Logger) error {
	sessionID := cfg.Session.ID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger = logger.WithField("session", sessionID)

	s := &session{}
	defer s.Close()

	st, err := store.New(ctx, cfg.Store, cfg.Layout.Width(), logger)
	if err != nil {
		return err
	}
	s.store = st
	if opts.dryRun {
		st = store.NewDryRun(st, logger)
	}
	rec := worklist.NewReconciler(st, worklist.LayoutFrom(cfg.Layout), cfg.Mode, logger).
		WithRetry(cfg.StoreRetry).
		WithRecorder(metrics)

	s.emitter, err = continuation.New(cfg.Continuation, logger)
	if err != nil {
		return err
	}
	oneShot := continuation.NewOneShot(s.emitter, cfg.Continuation.Timeout, logger).WithRecorder(metrics)
	gov := pipeline.NewGovernor(sessionID, cfg.Session.MaxDuration, oneShot, logger)

	s.engine, err = browser.New(ctx, cfg.Browser, logger)
	if err != nil {
		return errors.Wrap(errors.KindConfig, err, "launch browser")
	}
	s.pool = browser.NewPagePool(s.engine, cfg.Extraction.BatchWidth)

	rng := antidetect.NewRandom(time.Now().UnixNano())
	sleeper := antidetect.ClockSleeper{}
	engine := scraper.NewEngine(s.pool, scraper.Options{
		Mode:           cfg.Mode,
		Extraction:     cfg.Extraction,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		Random:         rng,
		Sleeper:        sleeper,
		Limiter:        scraper.NewNavigationLimiter(cfg.Extraction.NavigationsPerSecond, true),
		Logger:         logger,
	})
	retrier := scraper.NewRetrier(engine, cfg.Extraction, rng, sleeper, logger)
	batcher := pipeline.NewBatcher(retrier, gov, pipeline.WriteBackTo(rec), cfg.Extraction, rng, sleeper, logger).
		WithRecorder(metrics)
	s.runner = pipeline.NewRunner(rec, batcher, gov, logger)

	registerSessionChecks(health, gov, s.pool)

	report, err := s.runner.Run(ctx)
	logger.Infof("session finished: pending=%d remaining=%d handoff=%q", report.Pending, report.Remaining, report.HandOff)
	return err
}

func registerSessionChecks(health *monitoring.HealthManager, gov *pipeline.Governor, pool *browser.PagePool) {
	health.RegisterCheck(&monitoring.HealthCheck{
		Name: "session",
		CheckFunc: func(ctx context.Context) monitoring.HealthCheckResult {
			res := monitoring.HealthCheckResult{
				Status:   monitoring.HealthStatusHealthy,
				Metadata: map[string]interface{}{"session_id": gov.SessionID(), "elapsed": gov.Elapsed(time.Now()).Round(time.Second).String()},
			}
			if gov.Blocked() {
				res.Status = monitoring.HealthStatusDegraded
				res.Message = "target is blocking; handing off"
			}
			return res
		},
	})
	health.RegisterCheck(&monitoring.HealthCheck{
		Name: "browser",
		CheckFunc: func(ctx context.Context) monitoring.HealthCheckResult {
			return monitoring.HealthCheckResult{
				Status:   monitoring.HealthStatusHealthy,
				Metadata: map[string]interface{}{"open_pages": pool.Open(), "capacity": pool.Capacity()},
			}
		},
	})
}
