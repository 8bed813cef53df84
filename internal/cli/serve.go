package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"backup-timeline/internal/handlers"
	"backup-timeline/internal/indexer"
	"backup-timeline/internal/logging"
	"backup-timeline/internal/metrics"
	"backup-timeline/internal/middleware"
	"backup-timeline/internal/notify"
	"backup-timeline/internal/startup"
	"backup-timeline/internal/timeline"
	"backup-timeline/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon and its operations endpoints",
		Long: `Run every configured source's sync at start, on sync.interval, whenever a new
snapshot directory appears (sync.watch) and on POST /api/sync. Health, version
and Prometheus endpoints are served on http.port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port (default from http.port)")
	return cmd
}

func serve(ctx context.Context, cfg *startup.Config) error {
	startTime := time.Now()
	startup.LogStartup(cfg)

	metrics.InitializeMetrics()
	info := startup.GetBuildInfo()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	collector := metrics.NewCollector(st, time.Minute)
	collector.Start()
	defer collector.Stop()

	sources, err := selectSources(cfg, nil)
	if err != nil {
		return err
	}

	pub := connectPublisher(cfg)
	syncer := newSynchronizer(st, pub, timeline.Options{
		ContinueOnError: cfg.Sync.ContinueOnError,
		Parallel:        cfg.Sync.Parallel,
	})

	startup.LogSyncDaemonInit(cfg.Sync.Interval, len(sources))
	idx := indexer.New(syncer, sources, cfg.Sync.Interval)
	if lr, ok := st.(indexer.RunStore); ok {
		idx.SetRunStore(lr)
	}
	if u, ok := st.(metrics.DBMetricsUpdater); ok {
		idx.SetOnSyncComplete(u.UpdateDBMetrics)
	}
	if err := idx.Start(); err != nil {
		return err
	}
	startup.LogSyncDaemonStarted()

	var w *watcher.Watcher
	if cfg.Sync.Watch {
		dirs := make(map[string]string, len(cfg.Sources))
		for _, sc := range cfg.Sources {
			dirs[sc.Key] = sc.Path
		}
		w, err = watcher.New(dirs, cfg.Sync.WatchDebounce, idx.SourceChanged)
		if err != nil {
			logging.Warn("Snapshot watching disabled: %v", err)
			w = nil
		} else {
			logging.Info("Watching %d source directories for new snapshots", w.Watched())
			go w.Run(ctx)
		}
	}

	h := handlers.New(idx, st)
	router := h.Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogHTTPRoutes(router, cfg.HTTP.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.HTTP.LogHealthChecks

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           middleware.Logger(loggingConfig)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		startup.LogServerStarted(cfg.HTTP.Port, time.Since(startTime))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated(context.Cause(ctx).Error())
	case runErr = <-serveErr:
		logging.Error("HTTP server failed: %v", runErr)
	}

	shutdown(idx, w, srv, pub)
	return runErr
}

func shutdown(idx *indexer.Indexer, w *watcher.Watcher, srv *http.Server, pub *notify.Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if w != nil {
		startup.LogShutdownStep("Stopping snapshot watcher")
		if err := w.Close(); err != nil {
			logging.Warn("Watcher close error: %v", err)
		}
		startup.LogShutdownStepComplete("Snapshot watcher stopped")
	}

	startup.LogShutdownStep("Stopping sync daemon")
	idx.Stop()
	startup.LogShutdownStepComplete("Sync daemon stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if pub != nil {
		startup.LogShutdownStep("Draining NATS connection")
		if err := pub.Close(ctx); err != nil {
			logging.Warn("NATS drain error: %v", err)
		} else {
			startup.LogShutdownStepComplete("NATS connection drained")
		}
	}

	startup.LogShutdownComplete()
}
