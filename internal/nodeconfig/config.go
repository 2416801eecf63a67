// Package nodeconfig loads the node's runtime configuration from a YAML
// file plus environment-variable overrides, in the shape of the
// teacher's internal/config package.
package nodeconfig

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the node's top-level runtime configuration.
type Config struct {
	Listener  ListenerConfig  `yaml:"listener"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	AdminFeed AdminFeedConfig `yaml:"admin_feed"`
	Identity  IdentityConfig  `yaml:"identity"`
}

// ListenerConfig configures the portal's inlet TCP listener.
type ListenerConfig struct {
	Address   string `yaml:"address"`
	PeerAddr  string `yaml:"peer_address"`
}

// LogConfig configures the slog handler level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig, when URL is non-empty, wires a RedisMailboxStore so other
// node processes can see this node's live addresses.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig configures the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// AdminFeedConfig configures the read-only websocket admin status feed.
type AdminFeedConfig struct {
	Address  string `yaml:"address"`
	Interval int    `yaml:"interval_sec"`
}

// IdentityConfig names which vault/identity this node's StateDirectory
// should resolve; empty strings mean "the default."
type IdentityConfig struct {
	VaultName    string `yaml:"vault_name"`
	IdentityName string `yaml:"identity_name"`
}

// Default returns the configuration a node runs with when no file is
// supplied, matching the teacher's pattern of a reasonable zero-config
// starting point rather than requiring every field.
func Default() Config {
	return Config{
		Listener: ListenerConfig{Address: "127.0.0.1:4000"},
		Log:      LogConfig{Level: "info"},
		Metrics:  MetricsConfig{Address: "127.0.0.1:9090"},
		AdminFeed: AdminFeedConfig{
			Address:  "127.0.0.1:4001",
			Interval: 5,
		},
	}
}

// Load reads path as YAML into a Default() base, then layers environment
// variable overrides on top, mirroring the teacher's LoadConfig +
// applyEnvOverrides split. An empty path skips the file read and starts
// from Default() alone.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("nodeconfig: open %s: %w", path, err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("nodeconfig: decode %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets operators override individual fields without
// editing the YAML file, exactly as the teacher's config layer does.
func (c *Config) applyEnvOverrides() {
	c.Listener.Address = getEnv("RELAY_LISTEN_ADDRESS", c.Listener.Address)
	c.Listener.PeerAddr = getEnv("RELAY_PEER_ADDRESS", c.Listener.PeerAddr)
	c.Log.Level = getEnv("RELAY_LOG_LEVEL", c.Log.Level)
	c.Redis.URL = getEnv("RELAY_REDIS_URL", c.Redis.URL)
	c.Metrics.Address = getEnv("RELAY_METRICS_ADDRESS", c.Metrics.Address)
	c.AdminFeed.Address = getEnv("RELAY_ADMIN_FEED_ADDRESS", c.AdminFeed.Address)
	if v := getEnvInt("RELAY_ADMIN_FEED_INTERVAL_SEC", 0); v > 0 {
		c.AdminFeed.Interval = v
	}
	c.Identity.VaultName = getEnv("RELAY_VAULT_NAME", c.Identity.VaultName)
	c.Identity.IdentityName = getEnv("RELAY_IDENTITY_NAME", c.Identity.IdentityName)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
