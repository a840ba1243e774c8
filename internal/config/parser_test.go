package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/norncorp/mimir/internal/model"
)

const fullConfig = `
engine {
  max_events             = 200
  max_idle_ms            = 5
  max_batch_ms           = 100
  workers                = 4
  include_inactive_links = false
  cache_size             = 64
}

mesh {
  node_name = "mimir-1"
  listen    = "127.0.0.1:7950"
  join      = ["10.0.0.2:7946", "10.0.0.3:7946"]
  observer  = false
}

metrics {
  listen = ":9100"
}

log {
  level  = "debug"
  format = "console"
}

device "s1" {}

device "s2" {
  available = false
}

link {
  src           = "s1/1"
  dst           = "s2/1"
  bidirectional = true
}

link {
  src   = "s1/2"
  dst   = "s2/2"
  type  = "indirect"
  state = "inactive"
}
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "mimir.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseFile(t *testing.T) {
	cfg, err := ParseFile(writeConfig(t, fullConfig))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	require.Equal(t, 200, *cfg.Engine.MaxEvents)
	require.Equal(t, 5, *cfg.Engine.MaxIdleMs)
	require.Equal(t, 100, *cfg.Engine.MaxBatchMs)
	require.Equal(t, 4, *cfg.Engine.Workers)
	require.False(t, *cfg.Engine.IncludeInactiveLinks)
	require.Equal(t, 64, *cfg.Engine.CacheSize)

	require.Equal(t, "mimir-1", cfg.Mesh.NodeName)
	require.Equal(t, []string{"10.0.0.2:7946", "10.0.0.3:7946"}, cfg.Mesh.Join)
	require.False(t, *cfg.Mesh.Observer)
	require.Equal(t, ":9100", cfg.Metrics.Listen)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)

	require.Len(t, cfg.Devices, 2)
	require.Equal(t, model.Device{ID: "s1", Available: true}, cfg.Devices[0].Model())
	require.Equal(t, model.Device{ID: "s2"}, cfg.Devices[1].Model())

	links, err := cfg.Links[0].Model()
	require.NoError(t, err)
	s1p1 := model.NewConnectPoint("s1", 1)
	s2p1 := model.NewConnectPoint("s2", 1)
	require.Equal(t, []model.Link{model.NewLink(s1p1, s2p1), model.NewLink(s2p1, s1p1)}, links)

	links, err = cfg.Links[1].Model()
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, model.LinkIndirect, links[0].Type)
	require.Equal(t, model.LinkInactive, links[0].State)
}

func TestParseFileDefaults(t *testing.T) {
	cfg, err := ParseFile(writeConfig(t, `mesh { node_name = "mimir" }`))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	require.Equal(t, 1000, *cfg.Engine.MaxEvents)
	require.Equal(t, 10, *cfg.Engine.MaxIdleMs)
	require.Equal(t, 50, *cfg.Engine.MaxBatchMs)
	require.Equal(t, 8, *cfg.Engine.Workers)
	require.True(t, *cfg.Engine.IncludeInactiveLinks)
	require.Equal(t, 1024, *cfg.Engine.CacheSize)

	require.Equal(t, DefaultMeshListen, cfg.Mesh.Listen)
	require.True(t, *cfg.Mesh.Observer)
	require.Nil(t, cfg.Metrics)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestParseFileErrors(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file")

	_, err = ParseFile(writeConfig(t, `engine { max_events = "many" }`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode HCL")

	_, err = ParseFile(writeConfig(t, `bogus {}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:   "empty file",
			config: ``,
		},
		{
			name:   "batching disabled",
			config: `engine { max_events = 0 }`,
		},
		{
			name:    "negative max events",
			config:  `engine { max_events = -1 }`,
			wantErr: "engine.max_events",
		},
		{
			name:    "zero idle",
			config:  `engine { max_idle_ms = 0 }`,
			wantErr: "engine.max_idle_ms",
		},
		{
			name:    "zero batch",
			config:  `engine { max_batch_ms = 0 }`,
			wantErr: "engine.max_batch_ms",
		},
		{
			name:    "no workers",
			config:  `engine { workers = 0 }`,
			wantErr: "engine.workers",
		},
		{
			name:    "no cache",
			config:  `engine { cache_size = 0 }`,
			wantErr: "engine.cache_size",
		},
		{
			name:    "mesh without node name",
			config:  `mesh { node_name = "" }`,
			wantErr: "mesh.node_name",
		},
		{
			name:    "mesh with bad listen",
			config:  "mesh {\n node_name = \"m\"\n listen = \"nowhere\"\n}",
			wantErr: "mesh.listen",
		},
		{
			name:    "mesh with bad port",
			config:  "mesh {\n node_name = \"m\"\n listen = \"0.0.0.0:99999\"\n}",
			wantErr: "mesh.listen",
		},
		{
			name:    "metrics without listen",
			config:  `metrics { listen = "" }`,
			wantErr: "metrics.listen",
		},
		{
			name:    "bad log level",
			config:  `log { level = "chatty" }`,
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			config:  `log { format = "xml" }`,
			wantErr: "log.format",
		},
		{
			name:    "duplicate device",
			config:  "device \"s1\" {}\ndevice \"s1\" {}",
			wantErr: "declared twice",
		},
		{
			name:    "bad connect point",
			config:  "link {\n src = \"s1\"\n dst = \"s2/1\"\n}",
			wantErr: "link 0: src",
		},
		{
			name:    "bad link type",
			config:  "link {\n src = \"s1/1\"\n dst = \"s2/1\"\n type = \"wormhole\"\n}",
			wantErr: "unknown link type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseFile(writeConfig(t, tt.config))
			require.NoError(t, err)

			err = Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitListen(t *testing.T) {
	host, port, err := SplitListen("127.0.0.1:7946")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
	require.Equal(t, 7946, port)

	host, port, err = SplitListen(":0")
	require.NoError(t, err)
	require.Empty(t, host)
	require.Zero(t, port)

	_, _, err = SplitListen("127.0.0.1:http")
	require.Error(t, err)
}
