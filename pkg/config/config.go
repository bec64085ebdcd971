// Package config loads qguard settings in layers: built-in defaults, an
// optional JSON file, then QGUARD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jmylchreest/qguard/pkg/ollama"
	"github.com/jmylchreest/qguard/pkg/refine"
	"github.com/jmylchreest/qguard/pkg/rules"
	"github.com/jmylchreest/qguard/pkg/watcher"
)

// Environment variables. Nested keys are joined with a double underscore:
// QGUARD_RULES__STRUCTURAL__MAX_FUNCTION_LENGTH=80.
const (
	EnvPrefix     = "QGUARD_"
	EnvConfigPath = "QGUARD_CONFIG"
	envSeparator  = "__"
)

// DefaultStoreDir is relative to the project root.
const DefaultStoreDir = ".qguard"

// Config is the full qguard configuration.
type Config struct {
	Rules  RulesConfig   `koanf:"rules"`
	Refine RefineConfig  `koanf:"refine"`
	Ollama ollama.Config `koanf:"ollama"`
	Store  StoreConfig   `koanf:"store"`
	Watch  WatchConfig   `koanf:"watch"`
	Log    LogConfig     `koanf:"log"`
}

type RulesConfig struct {
	Structural rules.Spec `koanf:"structural"`
	Generic    rules.Spec `koanf:"generic"`
}

type RefineConfig struct {
	MaxIterations int `koanf:"max_iterations"`
	// Concurrency bounds parallel work in check and batch refinement;
	// zero means GOMAXPROCS.
	Concurrency int `koanf:"concurrency"`
	// MinScore is the default quality gate for check; zero disables it.
	MinScore float64 `koanf:"min_score"`
}

type StoreConfig struct {
	Dir      string `koanf:"dir"`
	Disabled bool   `koanf:"disabled"`
}

type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func specDefaults(prefix string, s rules.Spec) map[string]any {
	return map[string]any{
		prefix + ".max_function_length": s.MaxFunctionLength,
		prefix + ".max_class_length":    s.MaxClassLength,
		prefix + ".max_file_length":     s.MaxFileLength,
		prefix + ".max_complexity":      s.MaxComplexity,
		prefix + ".max_parameters":      s.MaxParameters,
		prefix + ".max_line_length":     s.MaxLineLength,
		prefix + ".require_docstrings":  s.RequireDocstrings,
		prefix + ".require_type_hints":  s.RequireTypeHints,
		prefix + ".forbidden_patterns":  s.ForbiddenPatterns,
		prefix + ".security_patterns":   s.SecurityPatterns,
	}
}

func defaults() map[string]any {
	d := map[string]any{
		"refine.max_iterations": refine.DefaultMaxIterations,
		"refine.concurrency":    0,
		"refine.min_score":      0.0,
		"ollama.url":            ollama.DefaultURL,
		"ollama.model":          ollama.DefaultModel,
		"ollama.temperature":    0.2,
		"ollama.timeout":        ollama.DefaultTimeout.String(),
		"ollama.max_retries":    3,
		"store.dir":             DefaultStoreDir,
		"store.disabled":        false,
		"watch.debounce":        watcher.DefaultDebounceDelay.String(),
		"log.level":             "warn",
		"log.format":            "console",
	}
	for k, v := range specDefaults("rules.structural", rules.DefaultSpec(rules.TierStructural)) {
		d[k] = v
	}
	for k, v := range specDefaults("rules.generic", rules.DefaultSpec(rules.TierGeneric)) {
		d[k] = v
	}
	return d
}

// envKey maps QGUARD_OLLAMA__MODEL to ollama.model. The config path
// variable itself is not a setting.
func envKey(k, v string) (string, any) {
	if k == EnvConfigPath {
		return "", nil
	}
	k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.ReplaceAll(k, envSeparator, "."), v
}

// Load builds the configuration. path names a JSON file; when empty,
// QGUARD_CONFIG is consulted, and with neither only defaults and the
// environment apply. A named file that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{Prefix: EnvPrefix, TransformFunc: envKey}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late. Rule thresholds
// are checked when the catalog is compiled.
func (c *Config) Validate() error {
	switch {
	case c.Refine.MaxIterations < 0:
		return fmt.Errorf("refine.max_iterations must not be negative")
	case c.Refine.Concurrency < 0:
		return fmt.Errorf("refine.concurrency must not be negative")
	case c.Refine.MinScore < 0 || c.Refine.MinScore > 100:
		return fmt.Errorf("refine.min_score must be within [0, 100]")
	case c.Log.Format != "console" && c.Log.Format != "json":
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Catalog compiles the configured rules.
func (c *Config) Catalog() (*rules.Catalog, error) {
	return rules.NewCatalog(map[rules.Tier]rules.Spec{
		rules.TierStructural: c.Rules.Structural,
		rules.TierGeneric:    c.Rules.Generic,
	})
}
