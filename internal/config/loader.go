package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	LogLevel       string
	Listen         string
	MaxConnections int
	RedisAddress   string
	PostgresURL    string
	MetricsAddress string

	// Positional arguments: [port] [bind-ip].
	Port   string
	BindIP string
}

// ParseFlags parses command-line flags and returns a Flags struct.
// Positional arguments [port] and [bind-ip] are accepted after the
// flags for compatibility with the historical invocation.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./chatd.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "Listen address (host:port)")
	flag.IntVar(&f.MaxConnections, "max-connections", 0, "Maximum concurrent connections")
	flag.StringVar(&f.RedisAddress, "redis", "", "Redis address (host:port)")
	flag.StringVar(&f.PostgresURL, "postgres", "", "Postgres connection URL")
	flag.StringVar(&f.MetricsAddress, "metrics", "", "Metrics listen address (enables metrics)")

	flag.Parse()

	args := flag.Args()
	if len(args) > 0 {
		f.Port = args[0]
	}
	if len(args) > 1 {
		f.BindIP = args[1]
	}

	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
// The loader reads from both [server] (shared settings) and [chatd]
// (specific settings), with [chatd] values taking precedence.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// First merge shared server config into defaults
	cfg = mergeServerConfig(cfg, fileConfig.Server)

	// Then merge chatd-specific config (takes precedence)
	cfg = mergeConfig(cfg, fileConfig.Chatd)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) (Config, error) {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.Listen != "" {
		cfg.Listen = f.Listen
	}

	// Positional [port] [bind-ip] override whatever the listen address
	// resolved to so far.
	if f.Port != "" {
		if _, err := strconv.Atoi(f.Port); err != nil {
			return cfg, fmt.Errorf("invalid port %q", f.Port)
		}
		host := "0.0.0.0"
		if f.BindIP != "" {
			host = f.BindIP
		} else if h, _, err := net.SplitHostPort(cfg.Listen); err == nil && h != "" {
			host = h
		}
		cfg.Listen = net.JoinHostPort(host, f.Port)
	}

	if f.MaxConnections > 0 {
		cfg.Limits.MaxConnections = f.MaxConnections
	}

	if f.RedisAddress != "" {
		cfg.Redis.Address = f.RedisAddress
	}

	if f.PostgresURL != "" {
		cfg.Postgres.URL = f.PostgresURL
	}

	if f.MetricsAddress != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = f.MetricsAddress
	}

	return cfg, nil
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f)
}

// mergeServerConfig merges shared server settings into the config.
func mergeServerConfig(dst Config, src ServerConfig) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	return dst
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.Hostname != "" {
		dst.Hostname = src.Hostname
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.Listen != "" {
		dst.Listen = src.Listen
	}

	if src.Timeouts.HeartbeatInterval != "" {
		dst.Timeouts.HeartbeatInterval = src.Timeouts.HeartbeatInterval
	}

	if src.Timeouts.HeartbeatTimeout != "" {
		dst.Timeouts.HeartbeatTimeout = src.Timeouts.HeartbeatTimeout
	}

	if src.Timeouts.Read != "" {
		dst.Timeouts.Read = src.Timeouts.Read
	}

	if src.Limits.MaxConnections > 0 {
		dst.Limits.MaxConnections = src.Limits.MaxConnections
	}

	if src.Redis.Address != "" {
		dst.Redis.Address = src.Redis.Address
	}

	if src.Redis.Password != "" {
		dst.Redis.Password = src.Redis.Password
	}

	if src.Redis.DB != 0 {
		dst.Redis.DB = src.Redis.DB
	}

	if src.Postgres.URL != "" {
		dst.Postgres.URL = src.Postgres.URL
	}

	if src.Archive.Disabled {
		dst.Archive.Disabled = src.Archive.Disabled
	}

	if src.Archive.Interval != "" {
		dst.Archive.Interval = src.Archive.Interval
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}

	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}

	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	if src.Email.Enabled {
		dst.Email.Enabled = src.Email.Enabled
	}

	if src.Email.Host != "" {
		dst.Email.Host = src.Email.Host
	}

	if src.Email.Port != 0 {
		dst.Email.Port = src.Email.Port
	}

	if src.Email.Username != "" {
		dst.Email.Username = src.Email.Username
	}

	if src.Email.Password != "" {
		dst.Email.Password = src.Email.Password
	}

	if src.Email.From != "" {
		dst.Email.From = src.Email.From
	}

	return dst
}
