// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Audit     AuditConfig     `yaml:"audit"`
	Shares    SharesConfig    `yaml:"shares"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Threat    ThreatConfig    `yaml:"threat"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type StoreConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuditConfig struct {
	Type       string `yaml:"type"` // "memory" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
	MaxEntries int    `yaml:"max_entries"` // memory sink bound
}

type SharesConfig struct {
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	MaxTTL           time.Duration `yaml:"max_ttl"`
	DefaultMaxAccess int           `yaml:"default_max_access"`
	MaxMaxAccess     int           `yaml:"max_max_access"`
	Retention        time.Duration `yaml:"retention"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
}

type RateLimitConfig struct {
	CreateLimit  int64         `yaml:"create_limit"`
	CreateWindow time.Duration `yaml:"create_window"`
	AccessLimit  int64         `yaml:"access_limit"`
	AccessWindow time.Duration `yaml:"access_window"`
}

type ThreatConfig struct {
	WeightRateLimit     int           `yaml:"weight_rate_limit"`
	WeightFailedLookup  int           `yaml:"weight_failed_lookup"`
	WeightSuspicious    int           `yaml:"weight_suspicious"`
	MediumScore         int           `yaml:"medium_score"`
	HighScore           int           `yaml:"high_score"`
	CriticalScore       int           `yaml:"critical_score"`
	DecayWindow         time.Duration `yaml:"decay_window"`
	AutoBlacklistFor    time.Duration `yaml:"auto_blacklist_for"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	SuspiciousThreshold int           `yaml:"suspicious_threshold"`
	SuspiciousWindow    time.Duration `yaml:"suspicious_window"`
	CreationCeiling     int           `yaml:"creation_ceiling"`
	StoreTimeout        time.Duration `yaml:"store_timeout"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Audit: AuditConfig{
			Type:       "memory",
			SQLitePath: "audit.db",
			MaxEntries: 100000,
		},
		Shares: SharesConfig{
			DefaultTTL:       24 * time.Hour,
			MaxTTL:           30 * 24 * time.Hour,
			DefaultMaxAccess: 0, // unlimited unless the owner asks
			MaxMaxAccess:     10000,
			Retention:        24 * time.Hour,
			CleanupInterval:  time.Minute,
		},
		RateLimit: RateLimitConfig{
			CreateLimit:  10,
			CreateWindow: time.Hour,
			AccessLimit:  100,
			AccessWindow: time.Hour,
		},
		Threat: ThreatConfig{
			WeightRateLimit:     1,
			WeightFailedLookup:  1,
			WeightSuspicious:    5,
			MediumScore:         5,
			HighScore:           10,
			CriticalScore:       20,
			DecayWindow:         15 * time.Minute,
			AutoBlacklistFor:    time.Hour,
			SweepInterval:       time.Minute,
			SuspiciousThreshold: 50,
			SuspiciousWindow:    10 * time.Minute,
			CreationCeiling:     200,
			StoreTimeout:        2 * time.Second,
			RetryBackoff:        100 * time.Millisecond,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}

	if v := os.Getenv("AUDIT_TYPE"); v != "" {
		c.Audit.Type = v
	}
	if v := os.Getenv("AUDIT_SQLITE_PATH"); v != "" {
		c.Audit.SQLitePath = v
	}

	if v := os.Getenv("DEFAULT_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Shares.DefaultTTL = ttl
		}
	}
	if v := os.Getenv("MAX_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			c.Shares.MaxTTL = ttl
		}
	}

	if v := os.Getenv("RATE_LIMIT_CREATE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.CreateLimit = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_ACCESS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.RateLimit.AccessLimit = n
		}
	}

	if v := os.Getenv("THREAT_CRITICAL_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Threat.CriticalScore = n
		}
	}
	if v := os.Getenv("THREAT_AUTO_BLACKLIST"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Threat.AutoBlacklistFor = d
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}

	if c.Store.Type != "memory" && c.Store.Type != "redis" {
		return fmt.Errorf("invalid store type: %s (must be 'memory' or 'redis')", c.Store.Type)
	}

	if c.Store.Type == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when store type is 'redis'")
	}

	if c.Audit.Type != "memory" && c.Audit.Type != "sqlite" {
		return fmt.Errorf("invalid audit type: %s (must be 'memory' or 'sqlite')", c.Audit.Type)
	}

	if c.Audit.Type == "sqlite" && c.Audit.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required when audit type is 'sqlite'")
	}

	if c.Shares.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive")
	}

	if c.Shares.MaxTTL < c.Shares.DefaultTTL {
		return fmt.Errorf("max_ttl must be >= default_ttl")
	}

	if c.Shares.DefaultMaxAccess < 0 || c.Shares.MaxMaxAccess < 0 {
		return fmt.Errorf("access limits must be non-negative")
	}

	if c.RateLimit.CreateLimit < 1 || c.RateLimit.AccessLimit < 1 {
		return fmt.Errorf("rate limits must be at least 1")
	}

	if c.RateLimit.CreateWindow <= 0 || c.RateLimit.AccessWindow <= 0 {
		return fmt.Errorf("rate limit windows must be positive")
	}

	if c.Threat.CriticalScore <= c.Threat.HighScore || c.Threat.HighScore <= c.Threat.MediumScore {
		return fmt.Errorf("threat thresholds must be strictly increasing (medium < high < critical)")
	}

	if c.Threat.DecayWindow <= 0 || c.Threat.AutoBlacklistFor <= 0 {
		return fmt.Errorf("threat decay_window and auto_blacklist_for must be positive")
	}

	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
