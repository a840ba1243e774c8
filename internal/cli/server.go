package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/norncorp/mimir/internal/config"
	"github.com/norncorp/mimir/internal/inventory"
	"github.com/norncorp/mimir/internal/provider"
	"github.com/norncorp/mimir/internal/serf"
	"github.com/norncorp/mimir/internal/service"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Mimir server",
	Long:  `Start the topology engine with its gossip mesh and metrics endpoint.`,
	RunE:  runServer,
}

var serverConfigPath string

func init() {
	serverCmd.Flags().StringVarP(&serverConfigPath, "config", "c", "", "path to configuration file (required)")
	serverCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(serverCmd)
}

// engine is the running set of components
type engine struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	devices  *inventory.DeviceStore
	links    *inventory.LinkStore
	manager  *service.Manager
	provider *provider.Provider
	mesh     *serf.Mesh
	metrics  *http.Server
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serverConfigPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting mimir server", zap.String("config", serverConfigPath))

	ctx := context.Background()
	e, err := startEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	logger.Info("shutdown signal received, stopping server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.stop(shutdownCtx)

	logger.Info("server stopped successfully")
	return nil
}

// startEngine wires the inventory, the query service, the recompute
// provider, the gossip mesh and the metrics endpoint, in that order
func startEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	e := &engine{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		devices:  inventory.NewDeviceStore(),
		links:    inventory.NewLinkStore(),
	}
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := seedInventory(cfg, e.devices, e.links); err != nil {
		return nil, err
	}

	var err error
	e.manager, err = service.NewManager(
		service.WithLogger(logger.Named("service")),
		service.WithCacheSize(*cfg.Engine.CacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create topology service: %w", err)
	}

	e.provider = provider.New(e.devices, e.links, e.manager,
		provider.WithLogger(logger.Named("provider")),
		provider.WithMetrics(provider.NewMetrics(e.registry)),
		provider.WithMaxEvents(*cfg.Engine.MaxEvents),
		provider.WithMaxIdle(time.Duration(*cfg.Engine.MaxIdleMs)*time.Millisecond),
		provider.WithMaxBatch(time.Duration(*cfg.Engine.MaxBatchMs)*time.Millisecond),
		provider.WithWorkers(*cfg.Engine.Workers),
		provider.WithInactiveLinks(*cfg.Engine.IncludeInactiveLinks),
	)
	if err := e.provider.Start(); err != nil {
		return nil, fmt.Errorf("failed to start topology provider: %w", err)
	}

	if cfg.Mesh != nil {
		if err := e.startMesh(ctx, cfg.Mesh); err != nil {
			e.provider.Stop()
			return nil, err
		}
	}

	if cfg.Metrics != nil {
		e.serveMetrics(cfg.Metrics.Listen)
	}

	return e, nil
}

func (e *engine) startMesh(ctx context.Context, cfg *config.MeshConfig) error {
	host, port, err := config.SplitListen(cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to parse mesh listen address: %w", err)
	}

	tags := map[string]string{}
	if *cfg.Observer {
		tags[serf.RoleTag] = serf.RoleObserver
	}

	e.mesh, err = serf.NewMesh(serf.MeshConfig{
		NodeName:  cfg.NodeName,
		BindAddr:  host,
		BindPort:  port,
		Tags:      tags,
		JoinAddrs: cfg.Join,
		Logger:    e.logger.Named("mesh"),
	}, e.devices, e.links)
	if err != nil {
		return fmt.Errorf("failed to create mesh: %w", err)
	}
	e.mesh.OnEvent(serf.LoggingEventHandler(e.logger.Named("mesh")))

	if err := e.mesh.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mesh: %w", err)
	}

	e.logger.Info("serf mesh started", zap.String("listen", cfg.Listen))
	return nil
}

func (e *engine) serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		e.registry,
		promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Timeout: 10 * time.Second}),
	))

	e.metrics = &http.Server{
		Addr:    listen,
		Handler: mux,
	}

	go func() {
		e.logger.Info("metrics endpoint started", zap.String("listen", listen))
		if err := e.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// stop shuts the components down in reverse start order
func (e *engine) stop(ctx context.Context) {
	if e.metrics != nil {
		if err := e.metrics.Shutdown(ctx); err != nil {
			e.logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}

	if e.mesh != nil {
		if err := e.mesh.Stop(); err != nil {
			e.logger.Warn("mesh shutdown error", zap.Error(err))
		}
	}

	e.provider.Stop()
}

// seedInventory loads the statically declared devices and links
func seedInventory(cfg *config.Config, devices *inventory.DeviceStore, links *inventory.LinkStore) error {
	for _, d := range cfg.Devices {
		devices.Upsert(d.Model())
	}
	for i, l := range cfg.Links {
		ls, err := l.Model()
		if err != nil {
			return fmt.Errorf("link %d: %w", i, err)
		}
		for _, link := range ls {
			links.Upsert(link)
		}
	}
	return nil
}
