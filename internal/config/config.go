// Package config loads and validates the query cache configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/electwix/querycache/internal/cachekey"
	"github.com/electwix/querycache/internal/eviction"
	"github.com/electwix/querycache/internal/invalidation"
	"github.com/electwix/querycache/internal/logging"
)

// Driver identifies the database driver used by the CLI.
type Driver string

const (
	// DriverSQLite targets modernc.org/sqlite.
	DriverSQLite Driver = "sqlite"
	// DriverPgx targets github.com/jackc/pgx/v5.
	DriverPgx Driver = "pgx"
)

var validDrivers = map[Driver]struct{}{
	DriverSQLite: {},
	DriverPgx:    {},
}

// CacheConfig selects the eviction policy and key seed.
type CacheConfig struct {
	Policy   string `toml:"policy" yaml:"policy"`
	Capacity int    `toml:"capacity" yaml:"capacity"`
	HashSeed uint32 `toml:"hash_seed" yaml:"hash_seed"`
}

// InvalidationConfig configures the cross-process invalidation bus. The bus
// is disabled when RedisAddr is empty.
type InvalidationConfig struct {
	Channel   string `toml:"channel" yaml:"channel"`
	RedisAddr string `toml:"redis_addr" yaml:"redis_addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Verbose bool   `toml:"verbose" yaml:"verbose"`
	Format  string `toml:"format" yaml:"format"`
}

// DatabaseConfig names the database the CLI queries.
type DatabaseConfig struct {
	Driver Driver `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

// Config mirrors the expected TOML or YAML schema.
type Config struct {
	Cache        CacheConfig         `toml:"cache" yaml:"cache"`
	Views        map[string][]string `toml:"views" yaml:"views"`
	Invalidation InvalidationConfig  `toml:"invalidation" yaml:"invalidation"`
	Logging      LoggingConfig       `toml:"logging" yaml:"logging"`
	Database     DatabaseConfig      `toml:"database" yaml:"database"`
}

// Default returns the configuration used when no file is given: an unbounded
// cache with the default seed, text logging and no invalidation bus.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Policy:   eviction.KindNone,
			HashSeed: cachekey.DefaultSeed,
		},
		Invalidation: InvalidationConfig{Channel: invalidation.DefaultChannel},
		Logging:      LoggingConfig{Format: logging.FormatText},
		Database:     DatabaseConfig{Driver: DriverSQLite},
	}
}

// LoadOptions tunes config loading behavior.
type LoadOptions struct {
	Strict bool
}

// Result wraps a loaded configuration alongside any non-fatal warnings.
type Result struct {
	Config   Config
	Warnings []string
}

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension; anything other than
// .yaml or .yml is TOML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatTOML
}

// Load reads, decodes and validates a configuration file.
func Load(path string, opts LoadOptions) (Result, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := Decode(data, FormatOf(path), opts)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	for i, w := range res.Warnings {
		res.Warnings[i] = path + ": " + w
	}
	return res, nil
}

// Decode parses data over Default and validates the result.
func Decode(data []byte, format Format, opts LoadOptions) (Result, error) {
	var res Result

	cfg := Default()
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return res, err
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return res, err
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return res, err
		}
		if err := toml.Unmarshal(data, &raw); err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("unsupported config format %q", format)
	}

	if unknown := collectUnknownKeys(raw); len(unknown) > 0 {
		message := "unknown configuration keys: " + strings.Join(unknown, ", ")
		if opts.Strict {
			return res, errors.New(message)
		}
		res.Warnings = append(res.Warnings, message)
	}

	if err := cfg.Validate(); err != nil {
		return res, err
	}
	res.Config = cfg
	return res, nil
}

// known lists the accepted keys of every section. A nil set accepts any key.
var known = map[string]map[string]struct{}{
	"cache":        {"policy": {}, "capacity": {}, "hash_seed": {}},
	"views":        nil,
	"invalidation": {"channel": {}, "redis_addr": {}},
	"logging":      {"verbose": {}, "format": {}},
	"database":     {"driver": {}, "dsn": {}},
}

func collectUnknownKeys(raw map[string]any) []string {
	unknown := make([]string, 0)
	for key, value := range raw {
		fields, ok := known[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		record, ok := value.(map[string]any)
		if !ok || fields == nil {
			continue
		}
		for field := range record {
			if _, ok := fields[field]; !ok {
				unknown = append(unknown, key+"."+field)
			}
		}
	}
	slices.Sort(unknown)
	return unknown
}

// Validate checks field values and their combinations.
func (c Config) Validate() error {
	var errs []error
	if c.Cache.Capacity < 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must not be negative, got %d", c.Cache.Capacity))
	} else if _, err := eviction.New(c.Cache.Policy, c.Cache.Capacity); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	for view, tables := range c.Views {
		if strings.TrimSpace(view) == "" {
			errs = append(errs, errors.New("views: empty view name"))
			continue
		}
		if len(tables) == 0 {
			errs = append(errs, fmt.Errorf("views.%s must list at least one table", view))
		}
		for _, table := range tables {
			if strings.TrimSpace(table) == "" {
				errs = append(errs, fmt.Errorf("views.%s: empty table name", view))
			}
		}
	}

	if c.Invalidation.RedisAddr != "" && c.Invalidation.Channel == "" {
		errs = append(errs, errors.New("invalidation.channel is required with invalidation.redis_addr"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Logging.Format))
	}

	if c.Database.Driver != "" {
		if _, ok := validDrivers[c.Database.Driver]; !ok {
			errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
		}
	}
	return errors.Join(errs...)
}
