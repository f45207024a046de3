package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fastdispatch/internal/domain/docsum"
	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

// Topology sources.
const (
	TopologyStatic = "static"
	TopologyRedis  = "redis"
)

// Config holds the fastdispatch service configuration.
type Config struct {
	HTTP        HTTPConfig         `yaml:"http"`
	Logging     LoggingConfig      `yaml:"logging"`
	Dispatch    DispatchConfig     `yaml:"dispatch"`
	Cache       CacheConfig        `yaml:"cache"`
	Topology    TopologyConfig     `yaml:"topology"`
	DocumentDBs []DocumentDBConfig `yaml:"documentdbs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds admin HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// APIKeys guard mutating admin routes. Empty disables auth.
	APIKeys []string `yaml:"api_keys"`
}

// BackendConfig addresses the dispatch node.
type BackendConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DispatchConfig holds dispatcher and backend connection settings.
type DispatchConfig struct {
	Name                 string        `yaml:"name"`
	Backend              BackendConfig `yaml:"backend"`
	SelfHostname         string        `yaml:"self_hostname"`
	ContainerClusterSize int           `yaml:"container_cluster_size"`
	DialTimeoutMs        int           `yaml:"dial_timeout_ms"`
	MaxIdleConns         int           `yaml:"max_idle_conns"`
	DefaultSummary       string        `yaml:"default_summary"`
	PingTimeoutMs        int           `yaml:"ping_timeout_ms"`
	PingIntervalSec      int           `yaml:"ping_interval_sec"` // generation watch, 0 uses the default
}

// CacheConfig holds response cache settings. A zero capacity disables the cache.
type CacheConfig struct {
	CapacityMB int `yaml:"capacity_mb"`
	TTLSec     int `yaml:"ttl_sec"`
}

// RedisConfig holds topology store connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// NodeConfig is one statically configured search node.
type NodeConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Group   int    `yaml:"group"`
	Working *bool  `yaml:"working"`
}

// TopologyConfig selects where the cluster layout comes from.
type TopologyConfig struct {
	Source     string       `yaml:"source"` // static (default), redis
	RefreshSec int          `yaml:"refresh_sec"`
	KeyPrefix  string       `yaml:"key_prefix"`
	Nodes      []NodeConfig `yaml:"nodes"`
	Redis      RedisConfig  `yaml:"redis"`
}

// FieldConfig is one summary field.
type FieldConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// SummaryClassConfig is one summary class of a document database.
type SummaryClassConfig struct {
	ID      uint32        `yaml:"id"`
	Name    string        `yaml:"name"`
	Dynamic bool          `yaml:"dynamic"`
	Fields  []FieldConfig `yaml:"fields"`
}

// RankProfileConfig is one rank profile of a document database.
type RankProfileConfig struct {
	Name               string `yaml:"name"`
	HasSummaryFeatures bool   `yaml:"has_summary_features"`
}

// DocumentDBConfig describes one document database served by the cluster.
type DocumentDBConfig struct {
	Name           string               `yaml:"name"`
	SummaryClasses []SummaryClassConfig `yaml:"summary_classes"`
	RankProfiles   []RankProfileConfig  `yaml:"rank_profiles"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references in data and decodes it.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Dispatch.Name == "" {
		c.Dispatch.Name = "dispatch"
	}
	if c.Dispatch.DialTimeoutMs <= 0 {
		c.Dispatch.DialTimeoutMs = 1000
	}
	if c.Dispatch.MaxIdleConns <= 0 {
		c.Dispatch.MaxIdleConns = 8
	}
	if c.Dispatch.DefaultSummary == "" {
		c.Dispatch.DefaultSummary = "default"
	}
	if c.Dispatch.PingTimeoutMs <= 0 {
		c.Dispatch.PingTimeoutMs = 1000
	}
	if c.Dispatch.PingIntervalSec <= 0 {
		c.Dispatch.PingIntervalSec = 5
	}
	if c.Dispatch.SelfHostname == "" {
		c.Dispatch.SelfHostname, _ = os.Hostname()
	}
	if c.Topology.Source == "" {
		c.Topology.Source = TopologyStatic
	}
	if c.Topology.RefreshSec <= 0 {
		c.Topology.RefreshSec = 30
	}
	if c.Topology.KeyPrefix == "" {
		c.Topology.KeyPrefix = "fastdispatch:"
	}
	if c.Topology.Redis.ReadinessTimeout <= 0 {
		c.Topology.Redis.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Dispatch.Backend.Host == "" {
		return fmt.Errorf("dispatch.backend.host is required")
	}
	if p := c.Dispatch.Backend.Port; p <= 0 || p > 65535 {
		return fmt.Errorf("dispatch.backend.port must be between 1 and 65535, got %d", p)
	}
	if c.Cache.CapacityMB < 0 {
		return fmt.Errorf("cache.capacity_mb must not be negative, got %d", c.Cache.CapacityMB)
	}
	switch c.Topology.Source {
	case TopologyStatic:
		for i, n := range c.Topology.Nodes {
			if n.Host == "" || n.Port <= 0 {
				return fmt.Errorf("topology.nodes[%d] needs host and port", i)
			}
		}
	case TopologyRedis:
		if len(c.Topology.Redis.Addrs) == 0 {
			return fmt.Errorf("topology.redis.addrs is required")
		}
	default:
		return fmt.Errorf("topology.source must be %q or %q, got %q", TopologyStatic, TopologyRedis, c.Topology.Source)
	}
	if _, err := c.Databases(); err != nil {
		return err
	}
	return nil
}

// Databases builds the document database descriptions.
func (c *Config) Databases() ([]*docsum.Database, error) {
	dbs := make([]*docsum.Database, 0, len(c.DocumentDBs))
	for _, d := range c.DocumentDBs {
		defs := make([]docsum.Definition, 0, len(d.SummaryClasses))
		seen := make(map[uint32]bool, len(d.SummaryClasses))
		for _, sc := range d.SummaryClasses {
			if seen[sc.ID] {
				return nil, fmt.Errorf("documentdbs.%s: duplicate summary class id %d", d.Name, sc.ID)
			}
			seen[sc.ID] = true
			def := docsum.Definition{ID: sc.ID, Name: sc.Name, Dynamic: sc.Dynamic}
			for _, f := range sc.Fields {
				t, err := docsum.ParseFieldType(f.Type)
				if err != nil {
					return nil, fmt.Errorf("documentdbs.%s.%s.%s: %w", d.Name, sc.Name, f.Name, err)
				}
				def.Fields = append(def.Fields, docsum.Field{Name: f.Name, Type: t})
			}
			defs = append(defs, def)
		}
		profiles := make([]docsum.RankProfile, 0, len(d.RankProfiles))
		for _, p := range d.RankProfiles {
			profiles = append(profiles, docsum.RankProfile{Name: p.Name, HasSummaryFeatures: p.HasSummaryFeatures})
		}
		dbs = append(dbs, docsum.NewDatabase(d.Name, defs, profiles))
	}
	return dbs, nil
}

// StaticNodes returns the configured node list.
func (c *Config) StaticNodes() []topology.Node {
	nodes := make([]topology.Node, 0, len(c.Topology.Nodes))
	for _, n := range c.Topology.Nodes {
		working := n.Working == nil || *n.Working
		nodes = append(nodes, topology.Node{Hostname: n.Host, Port: n.Port, Group: n.Group, Working: working})
	}
	return nodes
}

// DialTimeout returns the backend dial timeout.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Dispatch.DialTimeoutMs) * time.Millisecond
}

// PingTimeout returns the backend ping timeout.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.Dispatch.PingTimeoutMs) * time.Millisecond
}

// PingInterval returns how often the dispatch backend is pinged for its
// index generation.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.Dispatch.PingIntervalSec) * time.Second
}

// CacheTTL returns the response cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// TopologyRefresh returns the topology reload interval.
func (c *Config) TopologyRefresh() time.Duration {
	return time.Duration(c.Topology.RefreshSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
