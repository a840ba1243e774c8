package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"go.uber.org/zap/zapcore"

	"github.com/norncorp/mimir/internal/accumulator"
	"github.com/norncorp/mimir/internal/model"
	"github.com/norncorp/mimir/internal/provider"
	"github.com/norncorp/mimir/internal/service"
)

const (
	// DefaultMeshListen is the gossip address used when none is configured
	DefaultMeshListen = "0.0.0.0:7946"

	// DefaultLogLevel is the level used when none is configured
	DefaultLogLevel = "info"

	// DefaultLogFormat is the encoding used when none is configured
	DefaultLogFormat = "json"
)

// ParseFile parses a Mimir configuration file and fills in defaults
func ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(path, content)
}

// Parse decodes configuration source. The filename selects the syntax
// (.hcl or .json) and is used in diagnostics.
func Parse(filename string, content []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, content, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode HCL: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine == nil {
		cfg.Engine = &EngineConfig{}
	}
	e := cfg.Engine
	setDefault(&e.MaxEvents, accumulator.DefaultMaxItems)
	setDefault(&e.MaxIdleMs, int(accumulator.DefaultMaxIdle/time.Millisecond))
	setDefault(&e.MaxBatchMs, int(accumulator.DefaultMaxBatch/time.Millisecond))
	setDefault(&e.Workers, provider.DefaultWorkers)
	setDefault(&e.IncludeInactiveLinks, true)
	setDefault(&e.CacheSize, service.DefaultCacheSize)

	if cfg.Mesh != nil {
		if cfg.Mesh.Listen == "" {
			cfg.Mesh.Listen = DefaultMeshListen
		}
		setDefault(&cfg.Mesh.Observer, true)
	}

	if cfg.Log == nil {
		cfg.Log = &LogConfig{}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	for _, d := range cfg.Devices {
		setDefault(&d.Available, true)
	}
}

func setDefault[T any](field **T, value T) {
	if *field == nil {
		*field = &value
	}
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Engine == nil {
		return fmt.Errorf("engine block is required")
	}
	if *cfg.Engine.MaxEvents < 0 {
		return fmt.Errorf("engine.max_events must not be negative")
	}
	if *cfg.Engine.MaxIdleMs <= 0 {
		return fmt.Errorf("engine.max_idle_ms must be positive")
	}
	if *cfg.Engine.MaxBatchMs <= 0 {
		return fmt.Errorf("engine.max_batch_ms must be positive")
	}
	if *cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	if *cfg.Engine.CacheSize < 1 {
		return fmt.Errorf("engine.cache_size must be at least 1")
	}

	if cfg.Mesh != nil {
		if cfg.Mesh.NodeName == "" {
			return fmt.Errorf("mesh.node_name is required")
		}
		if _, _, err := SplitListen(cfg.Mesh.Listen); err != nil {
			return fmt.Errorf("mesh.listen: %w", err)
		}
	}

	if cfg.Metrics != nil && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required")
	}

	if cfg.Log != nil {
		if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
		if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
			return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
		}
	}

	seen := make(map[string]struct{}, len(cfg.Devices))
	for _, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("device id must not be empty")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("device %q declared twice", d.ID)
		}
		seen[d.ID] = struct{}{}
	}

	for i, l := range cfg.Links {
		if _, err := l.Model(); err != nil {
			return fmt.Errorf("link %d: %w", i, err)
		}
	}

	return nil
}

// SplitListen parses a host:port gossip address
func SplitListen(listen string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// Model returns the declared device
func (d *DeviceConfig) Model() model.Device {
	available := true
	if d.Available != nil {
		available = *d.Available
	}
	return model.Device{ID: model.DeviceID(d.ID), Available: available}
}

// Model returns the declared link, and its reverse when the link is
// bidirectional
func (l *LinkConfig) Model() ([]model.Link, error) {
	src, err := model.ParseConnectPoint(l.Src)
	if err != nil {
		return nil, fmt.Errorf("src: %w", err)
	}
	dst, err := model.ParseConnectPoint(l.Dst)
	if err != nil {
		return nil, fmt.Errorf("dst: %w", err)
	}

	link := model.NewLink(src, dst)
	if l.Type != "" {
		if link.Type, err = model.ParseLinkType(l.Type); err != nil {
			return nil, err
		}
	}
	if l.State != "" {
		if link.State, err = model.ParseLinkState(l.State); err != nil {
			return nil, err
		}
	}

	if !l.Bidirectional {
		return []model.Link{link}, nil
	}
	reverse := link
	reverse.Src, reverse.Dst = link.Dst, link.Src
	return []model.Link{link, reverse}, nil
}
