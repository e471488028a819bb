// Package config loads docquery configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional config
// file (YAML, JSON or TOML, chosen by extension), and DOCQUERY_* environment
// variables. Nested keys map to env names by upper-casing and replacing
// dots with underscores: query.default_page_size is
// DOCQUERY_QUERY_DEFAULT_PAGE_SIZE.
//
// Config does not:
//   - Open connections
//   - Construct components
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCQUERY"

// Config is the full configuration.
type Config struct {
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	Query     QueryConfig     `mapstructure:"query"`
	Execution ExecutionConfig `mapstructure:"execution"`
}

// CassandraConfig locates the shredded document table.
type CassandraConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Table       string        `mapstructure:"table"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	LocalDC     string        `mapstructure:"local_dc"`
}

// QueryConfig bounds what a single request may do.
type QueryConfig struct {
	MaxInOperatorValueSize int `mapstructure:"max_in_operator_value_size"`
	DefaultPageSize        int `mapstructure:"default_page_size"`
	MaxSortReadLimit       int `mapstructure:"max_sort_read_limit"`
	MaxCountLimit          int `mapstructure:"max_count_limit"`
	MaxDeleteCount         int `mapstructure:"max_delete_count"`
	MaxConjunctions        int `mapstructure:"max_conjunctions"`
}

// ExecutionConfig tunes statement execution.
type ExecutionConfig struct {
	LWTRetries          int           `mapstructure:"lwt_retries"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	MaxConcurrency      int           `mapstructure:"max_concurrency"`
	StatementsPerSecond float64       `mapstructure:"statements_per_second"` // 0 = unlimited
	WorkerPoolSize      int           `mapstructure:"worker_pool_size"`      // 0 = no shared pool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cassandra: CassandraConfig{
			Hosts:       []string{"127.0.0.1"},
			Port:        9042,
			Keyspace:    "docquery",
			Table:       "documents",
			Consistency: "LOCAL_QUORUM",
			Timeout:     10 * time.Second,
		},
		Query: QueryConfig{
			MaxInOperatorValueSize: 100,
			DefaultPageSize:        20,
			MaxSortReadLimit:       10000,
			MaxCountLimit:          1000,
			MaxDeleteCount:         20,
			MaxConjunctions:        64,
		},
		Execution: ExecutionConfig{
			LWTRetries:     3,
			RetryDelay:     10 * time.Millisecond,
			MaxConcurrency: 16,
		},
	}
}

// Load reads configuration from path (optional, "" skips the file) and the
// environment, then validates it.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// Watch loads path and calls onChange with the re-decoded configuration
// every time the file changes. A change that fails to decode or validate
// is reported through err and the previous configuration stays in effect
// for the caller to decide.
func Watch(path string, onChange func(cfg Config, err error)) (Config, error) {
	if path == "" {
		return Config{}, errors.New("watch: config file path required")
	}
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// setDefaults registers every key, which also makes AutomaticEnv see keys
// that no file sets.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("cassandra.hosts", d.Cassandra.Hosts)
	v.SetDefault("cassandra.port", d.Cassandra.Port)
	v.SetDefault("cassandra.keyspace", d.Cassandra.Keyspace)
	v.SetDefault("cassandra.table", d.Cassandra.Table)
	v.SetDefault("cassandra.consistency", d.Cassandra.Consistency)
	v.SetDefault("cassandra.timeout", d.Cassandra.Timeout)
	v.SetDefault("cassandra.username", d.Cassandra.Username)
	v.SetDefault("cassandra.password", d.Cassandra.Password)
	v.SetDefault("cassandra.local_dc", d.Cassandra.LocalDC)

	v.SetDefault("query.max_in_operator_value_size", d.Query.MaxInOperatorValueSize)
	v.SetDefault("query.default_page_size", d.Query.DefaultPageSize)
	v.SetDefault("query.max_sort_read_limit", d.Query.MaxSortReadLimit)
	v.SetDefault("query.max_count_limit", d.Query.MaxCountLimit)
	v.SetDefault("query.max_delete_count", d.Query.MaxDeleteCount)
	v.SetDefault("query.max_conjunctions", d.Query.MaxConjunctions)

	v.SetDefault("execution.lwt_retries", d.Execution.LWTRetries)
	v.SetDefault("execution.retry_delay", d.Execution.RetryDelay)
	v.SetDefault("execution.max_concurrency", d.Execution.MaxConcurrency)
	v.SetDefault("execution.statements_per_second", d.Execution.StatementsPerSecond)
	v.SetDefault("execution.worker_pool_size", d.Execution.WorkerPoolSize)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(c.Cassandra.Hosts) > 0, "cassandra.hosts: at least one host required")
	check(c.Cassandra.Port > 0 && c.Cassandra.Port < 65536, "cassandra.port: %d out of range", c.Cassandra.Port)
	check(c.Cassandra.Keyspace != "", "cassandra.keyspace: required")
	check(c.Cassandra.Table != "", "cassandra.table: required")
	check(c.Cassandra.Timeout >= 0, "cassandra.timeout: must not be negative")

	check(c.Query.MaxInOperatorValueSize > 0, "query.max_in_operator_value_size: must be positive")
	check(c.Query.DefaultPageSize > 0, "query.default_page_size: must be positive")
	check(c.Query.MaxSortReadLimit > 0, "query.max_sort_read_limit: must be positive")
	check(c.Query.MaxCountLimit > 0, "query.max_count_limit: must be positive")
	check(c.Query.MaxDeleteCount > 0, "query.max_delete_count: must be positive")
	check(c.Query.MaxConjunctions > 0, "query.max_conjunctions: must be positive")

	check(c.Execution.LWTRetries >= 0, "execution.lwt_retries: must not be negative")
	check(c.Execution.RetryDelay >= 0, "execution.retry_delay: must not be negative")
	check(c.Execution.MaxConcurrency >= 0, "execution.max_concurrency: must not be negative")
	check(c.Execution.StatementsPerSecond >= 0, "execution.statements_per_second: must not be negative")
	check(c.Execution.WorkerPoolSize >= 0, "execution.worker_pool_size: must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
