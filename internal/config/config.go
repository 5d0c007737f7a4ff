// Package config provides configuration loading and discovery for tsls.
//
// Load reads configuration from these sources, in priority order
// (highest to lowest):
//  1. Environment variables (TSLS_* prefix)
//  2. Config file (closest .tsls.toml or tsls.toml)
//  3. Built-in defaults
//
// There is no CLI-flag layer; LoadWithEditorSettings additionally layers
// in editor-sent settings.
//
// Config file discovery follows a cascading pattern similar to Ruff:
// starting from the workspace root, walk up the filesystem until a config
// file is found. The closest config wins (no merging).
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/wharflab/tsls/internal/tsproto"
)

// ConfigFileNames defines the config file names to search for, in priority order.
var ConfigFileNames = []string{".tsls.toml", "tsls.toml"}

// EnvPrefix is the prefix for environment variables.
const EnvPrefix = "TSLS_"

// Config represents the complete tsls configuration.
type Config struct {
	// Validate controls which languages this adapter synchronizes and
	// validates at all; a language with validation disabled is never
	// opened against the back-end.
	Validate ValidateConfig `koanf:"validate"`

	// Diagnostics controls GetErr scheduling: project-wide vs per-file
	// requests, and the debounce bounds spec.md §4.H's triggerDiagnostics
	// clamps delay into.
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`

	// ConfigFile is the path to the config file that was loaded (if any).
	// This is metadata, not loaded from config.
	ConfigFile string `koanf:"-"`
}

// ValidateConfig gates synchronization per language id.
type ValidateConfig struct {
	JavaScript bool `koanf:"javascript"`
	TypeScript bool `koanf:"typescript"`
}

// DiagnosticsConfig configures GetErr scheduling.
type DiagnosticsConfig struct {
	// EnableProjectDiagnostics selects geterrForProject over geterr when
	// the back-end also advertises the semantic capability.
	EnableProjectDiagnostics bool `koanf:"enable-project"`

	// BaseDelayMs is the default delay of the orchestrator's Delayer (the
	// delay Delayer.Trigger uses). The orchestrator's own scheduling always
	// passes an explicit delay: the clamped per-buffer delay or
	// AllFilesDelayMs.
	BaseDelayMs int `koanf:"base-delay-ms"`

	// MinDelayMs/MaxDelayMs bound the per-call delay
	// clamp(ceil(lineCount/20), MinDelayMs, MaxDelayMs) from spec.md §4.H.
	MinDelayMs int `koanf:"min-delay-ms"`
	MaxDelayMs int `koanf:"max-delay-ms"`

	// AllFilesDelayMs is the delay used when requesting diagnostics for
	// every open buffer at once (spec.md §4.H requestAllDiagnostics).
	AllFilesDelayMs int `koanf:"all-files-delay-ms"`
}

// Delays returns the base, min, max, and all-files delay bounds that
// internal/orchestrator clamps and schedules against directly.
func (d DiagnosticsConfig) Delays() (base, min, max, allFiles int) {
	return d.BaseDelayMs, d.MinDelayMs, d.MaxDelayMs, d.AllFilesDelayMs
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Validate: ValidateConfig{
			JavaScript: true,
			TypeScript: true,
		},
		Diagnostics: DiagnosticsConfig{
			EnableProjectDiagnostics: false,
			BaseDelayMs:              300,
			MinDelayMs:               300,
			MaxDelayMs:               800,
			AllFilesDelayMs:          200,
		},
	}
}

// ToTsConfiguration projects the subset of Config the tsclient.Client
// interface exposes to diagnostics.GetErrRequest.
func (c *Config) ToTsConfiguration() tsproto.Configuration {
	return tsproto.Configuration{EnableProjectDiagnostics: c.Diagnostics.EnableProjectDiagnostics}
}

// Load loads configuration for a workspace root path.
// It discovers the closest config file, loads it, and applies
// environment variable overrides.
func Load(workspaceRoot string) (*Config, error) {
	return loadWithConfigPath(Discover(workspaceRoot))
}

// LoadFromFile loads configuration from a specific config file path.
// Unlike Load, it does not perform config discovery.
func LoadFromFile(configPath string) (*Config, error) {
	return loadWithConfigPath(configPath)
}

// loadWithConfigPath is an internal helper that loads config with an optional config file path.
func loadWithConfigPath(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}

	// 2. Load config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, err
		}
	}

	// 3. Load environment variables (TSLS_* prefix)
	// TSLS_DIAGNOSTICS_BASE_DELAY_MS -> diagnostics.base-delay-ms
	if err := k.Load(env.Provider(".", env.Opt{Prefix: EnvPrefix, TransformFunc: envKeyTransform}), nil); err != nil {
		return nil, err
	}

	// 4. Unmarshal into config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFile = configPath
	return cfg, nil
}

// knownHyphenatedKeys maps dot-separated patterns to their hyphenated equivalents.
// Add new entries here when adding settings with hyphenated names.
var knownHyphenatedKeys = map[string]string{
	"enable.project":     "enable-project",
	"base.delay.ms":      "base-delay-ms",
	"min.delay.ms":       "min-delay-ms",
	"max.delay.ms":       "max-delay-ms",
	"all.files.delay.ms": "all-files-delay-ms",
}

// envKeyTransform converts environment variable names to config keys.
// TSLS_VALIDATE_TYPESCRIPT -> validate.typescript
// TSLS_DIAGNOSTICS_BASE_DELAY_MS -> diagnostics.base-delay-ms
func envKeyTransform(key, value string) (string, any) {
	s := strings.TrimPrefix(key, EnvPrefix)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", ".")
	for pattern, replacement := range knownHyphenatedKeys {
		s = strings.ReplaceAll(s, pattern, replacement)
	}
	return s, value
}

// Discover finds the closest config file starting from workspaceRoot,
// walking up the directory tree.
// Returns empty string if no config file is found.
func Discover(workspaceRoot string) string {
	absPath, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return ""
	}

	dir := absPath
	if info, statErr := os.Stat(absPath); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(absPath)
	}

	for {
		for _, name := range ConfigFileNames {
			configPath := filepath.Join(dir, name)
			if fileExists(configPath) {
				return configPath
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
