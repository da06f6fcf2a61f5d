package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() with missing file returned error: %v", err)
	}

	// Missing file yields defaults.
	def := Default()
	if cfg.Listen != def.Listen {
		t.Errorf("Load() Listen = %q, want default %q", cfg.Listen, def.Listen)
	}
}

func TestLoadMergesFileValues(t *testing.T) {
	content := `
[server]
hostname = "chat.example.org"

[chatd]
log_level = "debug"
listen = "127.0.0.1:9999"

[chatd.limits]
max_connections = 42

[chatd.redis]
address = "redis.internal:6380"
db = 3

[chatd.postgres]
url = "postgres://u:p@db.internal/chat"

[chatd.archive]
interval = "15m"

[chatd.timeouts]
heartbeat_timeout = "90s"
`
	path := filepath.Join(t.TempDir(), "chatd.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Hostname != "chat.example.org" {
		t.Errorf("Hostname = %q, want chat.example.org", cfg.Hostname)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q, want 127.0.0.1:9999", cfg.Listen)
	}
	if cfg.Limits.MaxConnections != 42 {
		t.Errorf("MaxConnections = %d, want 42", cfg.Limits.MaxConnections)
	}
	if cfg.Redis.Address != "redis.internal:6380" {
		t.Errorf("Redis.Address = %q, want redis.internal:6380", cfg.Redis.Address)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("Redis.DB = %d, want 3", cfg.Redis.DB)
	}
	if cfg.Postgres.URL != "postgres://u:p@db.internal/chat" {
		t.Errorf("Postgres.URL = %q", cfg.Postgres.URL)
	}
	if cfg.Archive.Interval != "15m" {
		t.Errorf("Archive.Interval = %q, want 15m", cfg.Archive.Interval)
	}
	if cfg.Timeouts.HeartbeatTimeout != "90s" {
		t.Errorf("HeartbeatTimeout = %q, want 90s", cfg.Timeouts.HeartbeatTimeout)
	}

	// Unset values keep their defaults.
	if cfg.Timeouts.HeartbeatInterval != "20s" {
		t.Errorf("HeartbeatInterval = %q, want default 20s", cfg.Timeouts.HeartbeatInterval)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatd.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() with malformed file succeeded, want error")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name       string
		flags      Flags
		wantListen string
		wantErr    bool
	}{
		{
			name:       "listen flag overrides",
			flags:      Flags{Listen: "10.0.0.1:7000"},
			wantListen: "10.0.0.1:7000",
		},
		{
			name:       "positional port only",
			flags:      Flags{Port: "9001"},
			wantListen: "0.0.0.0:9001",
		},
		{
			name:       "positional port and bind ip",
			flags:      Flags{Port: "9001", BindIP: "127.0.0.1"},
			wantListen: "127.0.0.1:9001",
		},
		{
			name:       "positional port overrides listen flag host kept",
			flags:      Flags{Listen: "10.0.0.1:7000", Port: "9001"},
			wantListen: "10.0.0.1:9001",
		},
		{
			name:    "non-numeric port rejected",
			flags:   Flags{Port: "nine"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ApplyFlags(Default(), &tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg.Listen != tt.wantListen {
				t.Errorf("Listen = %q, want %q", cfg.Listen, tt.wantListen)
			}
		})
	}
}

func TestApplyFlagsMetrics(t *testing.T) {
	cfg, err := ApplyFlags(Default(), &Flags{MetricsAddress: ":9200"})
	if err != nil {
		t.Fatalf("ApplyFlags() error: %v", err)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true after -metrics flag")
	}
	if cfg.Metrics.Address != ":9200" {
		t.Errorf("Metrics.Address = %q, want :9200", cfg.Metrics.Address)
	}
}
