package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full application configuration loaded from file/env.
type Config struct {
	LogLevel  string      `mapstructure:"log_level"`
	LogFormat string      `mapstructure:"log_format"`
	LogFile   string      `mapstructure:"log_file"`
	Jira      JiraConfig  `mapstructure:"jira"`
	Cache     CacheConfig `mapstructure:"cache"`
	Query     QueryConfig `mapstructure:"query"`
}

// JiraConfig holds the tracker site, credentials and the search used to fill the cache.
type JiraConfig struct {
	ServiceCredentials `mapstructure:",squash"`
	Site               string   `mapstructure:"site"`
	Client             string   `mapstructure:"client"`
	JQL                string   `mapstructure:"jql"`
	Projects           []string `mapstructure:"projects"`
	PageSize           int      `mapstructure:"page_size"`
	Limit              int      `mapstructure:"limit"`
}

// ServiceCredentials describes authentication for the Jira site.
type ServiceCredentials struct {
	Email      string `mapstructure:"email"`
	APIToken   string `mapstructure:"api_token"`
	OAuthToken string `mapstructure:"oauth_token"`
}

// CacheConfig selects the cache and lock backend and their policies.
type CacheConfig struct {
	Backend        string        `mapstructure:"backend"`
	Key            string        `mapstructure:"key"`
	Dir            string        `mapstructure:"dir"`
	TTL            time.Duration `mapstructure:"ttl"`
	RefreshOnHit   string        `mapstructure:"refresh_on_hit"`
	LockPath       string        `mapstructure:"lock_path"`
	LockStaleAfter time.Duration `mapstructure:"lock_stale_after"`
	SQLitePath     string        `mapstructure:"sqlite_path"`
	Redis          RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueryConfig tunes the dispatcher and fuzzy ranker.
type QueryConfig struct {
	MinLength  int `mapstructure:"min_length"`
	MaxResults int `mapstructure:"max_results"`
	NewDefault int `mapstructure:"new_default"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	ClientREST = "rest"
	ClientSDK  = "sdk"

	RefreshAlways = "always"
	RefreshStale  = "stale"
)

// DefaultJQL lists open tickets newest first.
const DefaultJQL = "status != Closed ORDER BY created DESC"

// Load reads configuration from the provided directory or file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if path != "" {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			v.AddConfigPath(path)
		} else {
			v.SetConfigFile(path)
		}
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ticketq")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.applyNetrcDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	cacheDir := filepath.Join(os.TempDir(), "ticketq")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "ticketq")
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("jira.site", "")
	v.SetDefault("jira.email", "")
	v.SetDefault("jira.api_token", "")
	v.SetDefault("jira.oauth_token", "")
	v.SetDefault("jira.client", ClientREST)
	v.SetDefault("jira.jql", DefaultJQL)
	v.SetDefault("jira.page_size", 100)
	v.SetDefault("jira.limit", 200)

	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.key", "tickets")
	v.SetDefault("cache.dir", cacheDir)
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.refresh_on_hit", RefreshAlways)
	v.SetDefault("cache.lock_path", filepath.Join(os.TempDir(), "ticketq.lock"))
	v.SetDefault("cache.lock_stale_after", time.Hour)
	v.SetDefault("cache.sqlite_path", "")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "ticketq")

	v.SetDefault("query.min_length", 4)
	v.SetDefault("query.max_results", 5)
	v.SetDefault("query.new_default", 10)
}

// SearchJQL returns the JQL used to fill the cache, scoped to the configured projects.
func (j JiraConfig) SearchJQL() string {
	jql := strings.TrimSpace(j.JQL)
	if jql == "" {
		jql = DefaultJQL
	}
	if len(j.Projects) == 0 {
		return jql
	}
	scope := fmt.Sprintf("project in (%s)", strings.Join(j.Projects, ","))
	if strings.HasPrefix(strings.ToUpper(jql), "ORDER BY") {
		return scope + " " + jql
	}
	return scope + " AND " + jql
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Jira.Site) == "" {
		return fmt.Errorf("config: jira.site is required")
	}

	if err := c.Jira.ServiceCredentials.validate("jira"); err != nil {
		return err
	}

	switch c.Jira.Client {
	case ClientREST, ClientSDK:
	default:
		return fmt.Errorf("config: unknown jira.client %q", c.Jira.Client)
	}

	if c.Jira.PageSize <= 0 {
		return fmt.Errorf("config: jira.page_size must be positive")
	}
	if c.Jira.Limit <= 0 {
		return fmt.Errorf("config: jira.limit must be positive")
	}

	switch c.Cache.Backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}

	switch c.Cache.RefreshOnHit {
	case RefreshAlways, RefreshStale:
	default:
		return fmt.Errorf("config: unknown cache.refresh_on_hit %q", c.Cache.RefreshOnHit)
	}

	if c.Cache.Key == "" {
		return fmt.Errorf("config: cache.key is required")
	}
	if c.Cache.LockStaleAfter <= 0 {
		return fmt.Errorf("config: cache.lock_stale_after must be positive")
	}
	if c.Cache.SQLitePath == "" {
		c.Cache.SQLitePath = filepath.Join(c.Cache.Dir, "ticketq.db")
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func (s ServiceCredentials) validate(name string) error {
	if s.OAuthToken == "" && (s.Email == "" || s.APIToken == "") {
		return fmt.Errorf("config: %s requires either oauth_token or email/api_token", name)
	}
	return nil
}
