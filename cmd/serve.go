package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/httpapi"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/persistence"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the scheduled folder scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.HTTP.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := persistence.NewSQLiteStore(cfg.System.DBPath)
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "failed to open database").WithContext("db_path", cfg.System.DBPath)
	}
	defer store.Close()

	settings, err := config.NewRuntimeSettingsStore(cfg.System.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "invalid runtime settings")
	}
	a.settings = settings.GetRuntimeSettings

	queue := jobs.NewQueue(
		jobs.WithTickInterval(cfg.Queue.TickInterval),
		jobs.WithStore(store),
	)
	if pending := queue.Snapshot().Pending; len(pending) > 0 {
		log.Info("Restored %d pending scripts, start the queue to process them", len(pending))
	}

	cronEng := cron.New()
	scanSvc := service.NewScanService(service.ScanConfig{
		Dirs:     cfg.Scripts.Dirs,
		Exts:     cfg.Scripts.Exts,
		CronExpr: cfg.Translate.CronExpr,
	}, cronEng, queue, a.newExecutor)

	srv := httpapi.NewServer(queue, a.newExecutor,
		httpapi.WithScanner(scanSvc),
		httpapi.WithResults(store),
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			if next.CronExpr != cfg.Translate.CronExpr {
				log.Warn("Scan schedule changed to %q, it takes effect after a restart", next.CronExpr)
			}
			return nil
		}),
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runWithComponents(ctx, cfg, scanSvc, cronEng, srv)

	if queue.Stop() {
		log.Info("Waiting for the file in progress")
	}
	queue.Wait()
	return err
}

// runWithComponents schedules scans, serves HTTP and blocks until ctx is done
// or the server fails.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEng cronEngine, httpSrv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEng.Start()
	defer func() {
		select {
		case <-cronEng.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Scheduled scan still running at shutdown")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
