package config

// Config represents the root Mimir configuration
type Config struct {
	Engine  *EngineConfig   `hcl:"engine,block"`
	Mesh    *MeshConfig     `hcl:"mesh,block"`
	Metrics *MetricsConfig  `hcl:"metrics,block"`
	Log     *LogConfig      `hcl:"log,block"`
	Devices []*DeviceConfig `hcl:"device,block"`
	Links   []*LinkConfig   `hcl:"link,block"`
}

// EngineConfig tunes topology recomputation. Omitted attributes take the
// defaults applied by ParseFile.
type EngineConfig struct {
	// MaxEvents is the batch size that forces a recompute. A value of 1 or
	// less disables batching.
	MaxEvents *int `hcl:"max_events,optional"`

	// MaxIdleMs is the quiet period in milliseconds that closes a batch
	MaxIdleMs *int `hcl:"max_idle_ms,optional"`

	// MaxBatchMs is the maximum age in milliseconds of a batch
	MaxBatchMs *int `hcl:"max_batch_ms,optional"`

	// Workers is the number of recomputes that may run at once
	Workers *int `hcl:"workers,optional"`

	// IncludeInactiveLinks keeps inactive links in the topology graph
	IncludeInactiveLinks *bool `hcl:"include_inactive_links,optional"`

	// CacheSize is the number of cached disjoint path results
	CacheSize *int `hcl:"cache_size,optional"`
}

// MeshConfig represents the gossip mesh block
type MeshConfig struct {
	NodeName string   `hcl:"node_name"`
	Listen   string   `hcl:"listen,optional"`
	Join     []string `hcl:"join,optional"`

	// Observer keeps this node out of the device inventory
	Observer *bool `hcl:"observer,optional"`
}

// MetricsConfig represents the metrics block
type MetricsConfig struct {
	Listen string `hcl:"listen"`
}

// LogConfig represents the log block
type LogConfig struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// DeviceConfig declares a device that is known without discovery
type DeviceConfig struct {
	ID        string `hcl:"id,label"`
	Available *bool  `hcl:"available,optional"`
}

// LinkConfig declares a link that is known without discovery
type LinkConfig struct {
	Src           string `hcl:"src"`
	Dst           string `hcl:"dst"`
	Type          string `hcl:"type,optional"`
	State         string `hcl:"state,optional"`
	Bidirectional bool   `hcl:"bidirectional,optional"`
}
