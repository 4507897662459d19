// Package main is the entry point for the conductor service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/opsmesh/conductor/internal/authz"
	"github.com/opsmesh/conductor/internal/config"
	"github.com/opsmesh/conductor/internal/dispatch"
	"github.com/opsmesh/conductor/internal/logging"
	"github.com/opsmesh/conductor/internal/observe"
	"github.com/opsmesh/conductor/internal/registry"
	"github.com/opsmesh/conductor/internal/remediation"
	"github.com/opsmesh/conductor/internal/server"
	"github.com/opsmesh/conductor/internal/telemetry"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for policy tokens and similar local overrides
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("Orchestration core for the multi-agent remediation platform"),
		kongVars(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Run starts the HTTP service and blocks until shutdown.
func (cmd *ServeCmd) Run() error {
	cfg, err := loadConfig(cmd.Config)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Server.Addr = cmd.Addr
	}
	if cmd.Catalog != "" {
		cfg.Registry.Path = cmd.Catalog
	}

	logger := logging.New()
	if cmd.Debug || cfg.Logging.Level == "debug" {
		logger.SetLevel(logging.LevelDebug)
	}
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Insecure: cfg.Telemetry.Insecure,
		Service:  "conductor",
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer shutdownTracing(context.Background())

	// Registry: loaded once, cached; load failure is not fatal here —
	// dispatch fails closed until the catalog becomes readable.
	reg := registry.New(cfg.Registry.Path)
	if agents, err := reg.Load(); err != nil {
		log.Warn("agent catalog unavailable, dispatch will fail closed", map[string]interface{}{
			"path":  cfg.Registry.Path,
			"error": err.Error(),
		})
	} else {
		log.Info("agent catalog loaded", map[string]interface{}{
			"path":   cfg.Registry.Path,
			"agents": len(agents),
		})
	}
	if cfg.Registry.Watch {
		go func() {
			if err := reg.Watch(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("catalog watcher stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	gate := authz.NewPolicyGate(cfg.Policy.URL, logger,
		authz.WithTimeout(cfg.PolicyTimeout()),
		authz.WithToken(cfg.PolicyToken()),
	)

	sink := buildSink(cfg, logger, log)

	caller := dispatch.NewHTTPAgentCaller(cfg.DispatchTimeout())
	router := dispatch.NewRouter(reg, gate, caller, sink, logger)
	machine := remediation.NewMachine(router, remediation.DefaultAgents(), logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(router, machine, reg, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSink assembles the observability sink chain from config.
func buildSink(cfg *config.Config, logger *logging.Logger, log *logging.Logger) observe.Sink {
	sinks := observe.MultiSink{observe.NewLoggerSink(logger)}
	if cfg.Events.NATSURL != "" {
		natsSink, err := observe.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			// Observability is best-effort; a missing broker never blocks startup.
			log.Warn("nats sink unavailable", map[string]interface{}{
				"url":   cfg.Events.NATSURL,
				"error": err.Error(),
			})
		} else {
			sinks = append(sinks, natsSink)
		}
	}
	return sinks
}

// Run validates a catalog file.
func (cmd *ValidateCmd) Run() error {
	reg := registry.New(cmd.Catalog)
	agents, err := reg.Load()
	if err != nil {
		return err
	}
	fmt.Printf("%s: OK (%d agents)\n", cmd.Catalog, len(agents))
	return nil
}

// Run shows version information.
func (cmd *VersionCmd) Run() error {
	fmt.Printf("conductor version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}

// loadConfig loads the config file, falling back to defaults when no file
// is present and none was requested explicitly.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if _, err := os.Stat("conductor.toml"); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadDefault()
}
