// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads plughost configuration.
//
// Values are layered in order: built-in defaults, the YAML config file, then
// command-line flags that were explicitly set. The file is validated against
// the generated JSON Schema before it is merged.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/plughost/internal/loader"
	"github.com/holomush/plughost/internal/logging"
	"github.com/holomush/plughost/internal/xdg"
)

// Config is the complete plughost configuration.
type Config struct {
	Log     LogConfig     `koanf:"log" json:"log,omitempty"`
	Plugins PluginsConfig `koanf:"plugins" json:"plugins,omitempty"`
	Loaders []Route       `koanf:"loaders" json:"loaders,omitempty" jsonschema:"description=Ordered backend routes; the first pattern matching a file name wins"`
	Open    OpenConfig    `koanf:"open" json:"open,omitempty"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// PluginsConfig selects the images to load and the load policy.
type PluginsConfig struct {
	Dir           string   `koanf:"dir" json:"dir,omitempty" jsonschema:"description=Directory scanned for images accepted by a loader route"`
	Paths         []string `koanf:"paths" json:"paths,omitempty" jsonschema:"description=Images loaded in order after the directory scan"`
	UniqueNames   bool     `koanf:"unique_names" json:"unique_names,omitempty"`
	ABIConstraint string   `koanf:"abi_constraint" json:"abi_constraint,omitempty" jsonschema:"description=Semantic version constraint every image's contract version must satisfy"`
}

// Route maps a file name pattern to a loader backend.
type Route struct {
	Pattern string `koanf:"pattern" json:"pattern" jsonschema:"minLength=1"`
	Backend string `koanf:"backend" json:"backend" jsonschema:"enum=native,enum=cabi,enum=lua,enum=process"`
}

// OpenConfig controls retries of failed image opens.
type OpenConfig struct {
	Retries uint64 `koanf:"retries" json:"retries,omitempty" jsonschema:"minimum=0"`
	Backoff string `koanf:"backoff" json:"backoff,omitempty" jsonschema:"pattern=^[0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h)$"`
}

// MetricsConfig configures the metrics and health server.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Listen address for /metrics and /healthz; empty disables the server"`
}

// DefaultRoutes is the default loader routing table. The C-ABI pattern must
// precede the generic shared object pattern.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: "*.lua", Backend: loader.BackendLua},
		{Pattern: "*.cabi.so", Backend: loader.BackendCABI},
		{Pattern: "*.so", Backend: loader.BackendNative},
		{Pattern: "*.plugin", Backend: loader.BackendProcess},
	}
}

func defaults() (map[string]any, error) {
	dir, err := xdg.PluginsDir()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"log.format":             logging.FormatJSON,
		"log.level":              "info",
		"plugins.dir":            dir,
		"plugins.paths":          []string{},
		"plugins.unique_names":   false,
		"plugins.abi_constraint": "",
		"open.retries":           0,
		"open.backoff":           "100ms",
		"metrics.addr":           "",
	}, nil
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":     "log.format",
	"log-level":      "log.level",
	"plugins-dir":    "plugins.dir",
	"unique-names":   "plugins.unique_names",
	"abi-constraint": "plugins.abi_constraint",
	"retries":        "open.retries",
	"metrics-addr":   "metrics.addr",
}

// Load builds the configuration. When path is empty the default config file
// is read if it exists; an explicit path must exist. Only flags in fs that
// were set on the command line override file values. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defs, err := defaults()
	if err != nil {
		return nil, oops.In("config").Wrap(err)
	}
	for key, val := range defs {
		if err := k.Set(key, val); err != nil {
			return nil, oops.In("config").With("key", key).Wrap(err)
		}
	}

	explicit := path != ""
	if !explicit {
		if path, err = xdg.ConfigFile(); err != nil {
			return nil, oops.In("config").Wrap(err)
		}
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Wrap(err)
	}
	if len(cfg.Loaders) == 0 {
		cfg.Loaders = DefaultRoutes()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.In("config").With("path", path).Wrap(err)
	}
	if err := ValidateSchema(data); err != nil {
		return oops.In("config").
			With("path", path).
			Hint("run gen-schema to see the accepted keys").
			Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.In("config").With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return err
	}
	if _, err := c.ABIConstraint(); err != nil {
		return err
	}
	if _, err := c.Backoff(); err != nil {
		return err
	}
	for i, r := range c.Loaders {
		switch r.Backend {
		case loader.BackendNative, loader.BackendCABI, loader.BackendLua, loader.BackendProcess:
		default:
			return oops.In("config").
				With("route", i).
				With("backend", r.Backend).
				Errorf("unknown loader backend %q", r.Backend)
		}
		if r.Pattern == "" {
			return oops.In("config").With("route", i).Errorf("loader route has an empty pattern")
		}
	}
	return nil
}

// ABIConstraint parses the configured contract version constraint.
// Returns nil when none is configured.
func (c *Config) ABIConstraint() (*semver.Constraints, error) {
	if c.Plugins.ABIConstraint == "" {
		return nil, nil
	}
	constraint, err := semver.NewConstraint(c.Plugins.ABIConstraint)
	if err != nil {
		return nil, oops.In("config").
			With("abi_constraint", c.Plugins.ABIConstraint).
			Hint("use a constraint such as ^1.0").
			Wrap(err)
	}
	return constraint, nil
}

// Backoff parses the initial retry backoff.
func (c *Config) Backoff() (time.Duration, error) {
	if c.Open.Backoff == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Open.Backoff)
	if err != nil {
		return 0, oops.In("config").With("backoff", c.Open.Backoff).Wrap(err)
	}
	return d, nil
}
