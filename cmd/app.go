package cmd

import (
	"fmt"
	"os"

	"k8s.io/utils/clock"

	"wakeproxy/cloudflare"
	"wakeproxy/config"
	"wakeproxy/health"
	"wakeproxy/logging"
	"wakeproxy/manager"
	"wakeproxy/wake"
)

// application holds the components shared by the serve and sweep commands.
type application struct {
	config       config.Config
	stateManager *manager.StateManager
	runtime      *manager.DockerRuntime
	containers   *manager.ContainerManager
	tracker      *manager.AccessTracker
	orchestrator *wake.Orchestrator
	monitor      *manager.IdleMonitor
	domains      *cloudflare.Manager
}

// loadConfig resolves, loads and validates the config file, then sets up logging.
func loadConfig() (config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, fmt.Errorf("invalid logLevel: %w", err)
	}
	logging.Init(level, cfg.LogFormat, os.Stderr)
	logging.Info("Config", "Loaded %d route(s) from %s", len(cfg.Services), path)
	return cfg, nil
}

func newApplication(cfg config.Config) (*application, error) {
	clk := clock.RealClock{}
	sm := manager.NewStateManager(cfg.Services)

	runtime, err := manager.NewDockerRuntime(cfg.Wake.CommandTimeoutDuration())
	if err != nil {
		return nil, err
	}
	containers := manager.NewContainerManager(sm, runtime)

	tracker, err := manager.NewAccessTracker(cfg.StateDir, sm, clk)
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}

	prober := health.NewProber(clk, cfg.Wake.ProbeTimeoutDuration())
	orchestrator := wake.NewOrchestrator(sm, containers, prober, clk, wake.Options{
		Cooldown:      cfg.Wake.CooldownDuration(),
		ReadyTimeout:  cfg.Wake.ReadyTimeoutDuration(),
		ReadyInterval: cfg.Wake.ReadyIntervalDuration(),
	})
	monitor := manager.NewIdleMonitor(sm, tracker, containers, clk, cfg.IdleThresholdDuration(), cfg.CheckIntervalDuration())

	app := &application{
		config:       cfg,
		stateManager: sm,
		runtime:      runtime,
		containers:   containers,
		tracker:      tracker,
		orchestrator: orchestrator,
		monitor:      monitor,
	}

	// A base domain without credentials still gets local domain bookkeeping.
	if cfg.Cloudflare.BaseDomain != "" {
		client, err := cloudflare.NewClient(cfg.Cloudflare)
		if err != nil {
			_ = runtime.Close()
			return nil, err
		}
		app.domains = cloudflare.NewManager(client)
	}

	return app, nil
}

func (a *application) close() {
	if err := a.runtime.Close(); err != nil {
		logging.Warn("App", "Failed to close docker client: %v", err)
	}
}
