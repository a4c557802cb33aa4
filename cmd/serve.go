package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wakeproxy/api"
	"wakeproxy/logging"
	"wakeproxy/metrics"
	"wakeproxy/proxy"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy, the idle monitor and the admin API",
		Long: `Starts the reverse proxy on proxyPort and, when apiPort is set, the
admin API. Backends are started on their first request and stopped by the
idle monitor once they have been idle longer than idleThreshold.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.close()

	if err := app.containers.CheckPrerequisites(); err != nil {
		return err
	}
	app.tracker.Load()
	metrics.Register()

	proxyHandler, err := proxy.NewReverseProxyHandler(app.stateManager, app.orchestrator, app.tracker, proxy.Options{
		PathPrefix:    cfg.PathPrefix,
		Domain:        cfg.Domain,
		MaxReplayBody: cfg.Wake.MaxReplayBody,
	})
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.domains != nil {
		go func() {
			if failed := app.domains.SyncRoutes(ctx, cfg.Services); failed > 0 {
				logging.Warn("Cloudflare", "%d route(s) have no DNS record", failed)
			}
		}()
	}

	monitorDone := make(chan struct{})
	go func() {
		app.monitor.Run(ctx)
		close(monitorDone)
	}()

	servers := []*http.Server{{Addr: string(cfg.ProxyPort), Handler: proxyHandler}}
	if cfg.APIPort != "" {
		router := api.NewRouter(app.stateManager, app.orchestrator, app.containers, app.domains)
		servers = append(servers, &http.Server{Addr: string(cfg.APIPort), Handler: router})
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		name := "Proxy"
		if i > 0 {
			name = "API"
		}
		logging.Info("Server", "%s server starting on %s", name, srv.Addr)
		go func(srv *http.Server, name string) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}(srv, name)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Server", "Shutting down servers...")
	case runErr = <-errCh:
		logging.Error("Server", runErr, "Server failed, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Server", err, "Server on %s failed to shutdown gracefully", srv.Addr)
		}
	}
	<-monitorDone

	logging.Info("Server", "Server exited gracefully")
	return runErr
}
