package config

import (
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigurationPreference controls how editor-provided settings (an LSP
// client's workspace/didChangeConfiguration payload) interact with
// filesystem config discovery.
type ConfigurationPreference string

const (
	ConfigurationPreferenceEditorFirst     ConfigurationPreference = "editorFirst"
	ConfigurationPreferenceFilesystemFirst ConfigurationPreference = "filesystemFirst"
	ConfigurationPreferenceEditorOnly      ConfigurationPreference = "editorOnly"
)

func normalizeConfigurationPreference(p ConfigurationPreference) ConfigurationPreference {
	switch p {
	case ConfigurationPreferenceEditorFirst, ConfigurationPreferenceFilesystemFirst, ConfigurationPreferenceEditorOnly:
		return p
	default:
		return ConfigurationPreferenceEditorFirst
	}
}

// LoadWithEditorSettings loads configuration for workspaceRoot with an
// optional editor-settings map layered in according to preference.
//
// editorSettings is expected to use the same nested shape as the TOML
// config file, e.g.:
//
//	editorSettings := map[string]any{
//	  "diagnostics": map[string]any{"enable-project": true},
//	}
//
// Precedence:
//
//   - editorFirst: defaults → filesystem config → env → editorSettings
//   - filesystemFirst: defaults → editorSettings → filesystem config → env
//   - editorOnly: defaults → env → editorSettings (filesystem discovery skipped)
func LoadWithEditorSettings(workspaceRoot string, editorSettings map[string]any, preference ConfigurationPreference) (*Config, error) {
	preference = normalizeConfigurationPreference(preference)

	configPath := ""
	if preference != ConfigurationPreferenceEditorOnly {
		configPath = Discover(workspaceRoot)
	}
	return loadWithConfigPathAndEditorSettings(configPath, editorSettings, preference)
}

func loadWithConfigPathAndEditorSettings(
	configPath string,
	editorSettings map[string]any,
	preference ConfigurationPreference,
) (*Config, error) {
	preference = normalizeConfigurationPreference(preference)

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}

	switch preference {
	case ConfigurationPreferenceEditorOnly:
		if err := loadEnv(k); err != nil {
			return nil, err
		}
		if err := loadEditorSettings(k, editorSettings); err != nil {
			return nil, err
		}
	case ConfigurationPreferenceFilesystemFirst:
		if err := loadEditorSettings(k, editorSettings); err != nil {
			return nil, err
		}
		if err := loadConfigFile(k, configPath); err != nil {
			return nil, err
		}
		if err := loadEnv(k); err != nil {
			return nil, err
		}
	case ConfigurationPreferenceEditorFirst:
		if err := loadConfigFile(k, configPath); err != nil {
			return nil, err
		}
		if err := loadEnv(k); err != nil {
			return nil, err
		}
		if err := loadEditorSettings(k, editorSettings); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFile = configPath
	return cfg, nil
}

func loadConfigFile(k *koanf.Koanf, configPath string) error {
	if configPath == "" {
		return nil
	}
	return k.Load(file.Provider(configPath), toml.Parser())
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKeyTransform,
	}), nil)
}

func loadEditorSettings(k *koanf.Koanf, editorSettings map[string]any) error {
	if len(editorSettings) == 0 {
		return nil
	}
	return k.Load(confmap.Provider(editorSettings, "."), nil)
}
