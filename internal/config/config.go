package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fakegpu/internal/configdir"
)

const (
	systemConfigFile = "config.yaml"
	userConfigDir    = ".fakegpu"
	userConfigFile   = "config.yaml"
)

// Load loads and merges configuration from system and user files
// Priority: defaults < system config < user config
func Load() (Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Try to load system config
	systemPath := filepath.Join(configdir.ConfigDir(), systemConfigFile)
	if err := mergeConfigFile(&cfg, systemPath); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to load system config: %w", err)
		}
		// System config not existing is OK, continue with defaults
	}

	// Try to load user config
	homeDir, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(homeDir, userConfigDir, userConfigFile)
		if err := mergeConfigFile(&cfg, userPath); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to load user config: %w", err)
			}
			// User config not existing is OK
		}
	}

	// Validate the merged configuration
	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// LoadFrom loads configuration from a specific file path
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := mergeConfigFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	// Validate
	if validationErrors := cfg.Validate(); len(validationErrors) > 0 {
		return cfg, fmt.Errorf("config.validation.error: %v", formatValidationErrors(validationErrors))
	}

	return cfg, nil
}

// mergeConfigFile reads a YAML file and merges it into the existing config
func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is constructed from trusted sources
	if err != nil {
		return err
	}

	// Parse YAML
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Merge non-zero values from overlay into cfg
	mergeConfig(cfg, &overlay)

	return nil
}

// mergeConfig merges non-zero values from src into dst. Bool fields
// overwrite unconditionally since YAML cannot distinguish false from unset.
func mergeConfig(dst, src *Config) {
	if src.Profile.DeviceCount != 0 {
		dst.Profile.DeviceCount = src.Profile.DeviceCount
	}
	if src.Profile.DeviceName != "" {
		dst.Profile.DeviceName = src.Profile.DeviceName
	}
	if src.Profile.DriverVersion != "" {
		dst.Profile.DriverVersion = src.Profile.DriverVersion
	}
	if src.Profile.CudaDriverVersion != 0 {
		dst.Profile.CudaDriverVersion = src.Profile.CudaDriverVersion
	}
	if src.Profile.MemoryMiB != 0 {
		dst.Profile.MemoryMiB = src.Profile.MemoryMiB
	}
	if src.Profile.UUIDSeed != "" {
		dst.Profile.UUIDSeed = src.Profile.UUIDSeed
	}

	if src.Tree.Root != "" {
		dst.Tree.Root = src.Tree.Root
	}

	dst.Serve.Enabled = src.Serve.Enabled
	if src.Serve.Addr != "" {
		dst.Serve.Addr = src.Serve.Addr
	}

	if src.Lease.TimeoutSeconds != 0 {
		dst.Lease.TimeoutSeconds = src.Lease.TimeoutSeconds
	}

	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.File != "" {
		dst.Logging.File = src.Logging.File
	}

	if src.Trace.LogFile != "" {
		dst.Trace.LogFile = src.Trace.LogFile
	}
}

// formatValidationErrors formats validation errors for display
func formatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	if len(errors) == 1 {
		return errors[0].Error()
	}
	result := fmt.Sprintf("%d validation errors:\n", len(errors))
	for _, err := range errors {
		result += "  - " + err.Error() + "\n"
	}
	return result
}

// SystemConfigPath returns the path to the system configuration file
func SystemConfigPath() string {
	return filepath.Join(configdir.ConfigDir(), systemConfigFile)
}

// UserConfigPath returns the path to the user configuration file
func UserConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, userConfigFile)
}
