package config

// Config represents the complete fakegpu configuration
type Config struct {
	Profile ProfileConfig `yaml:"profile"`
	Tree    TreeConfig    `yaml:"tree"`
	Serve   ServeConfig   `yaml:"serve"`
	Lease   LeaseConfig   `yaml:"lease"`
	Logging LoggingConfig `yaml:"logging"`
	Trace   TraceConfig   `yaml:"trace"`
}

// ProfileConfig describes the emulated hardware profile. It is read once
// at process start; the registry a running shim exposes never changes.
type ProfileConfig struct {
	DeviceCount       int    `yaml:"device_count"`
	DeviceName        string `yaml:"device_name"`
	DriverVersion     string `yaml:"driver_version"`
	CudaDriverVersion int    `yaml:"cuda_driver_version"`
	MemoryMiB         int    `yaml:"memory_mib"`
	UUIDSeed          string `yaml:"uuid_seed"`
}

// TreeConfig controls the pseudo device tree publisher.
type TreeConfig struct {
	Root string `yaml:"root"`
}

// ServeConfig controls the inspection HTTP server.
type ServeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LeaseConfig controls the publish lease.
type LeaseConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TraceConfig controls the persistent shim call log. An empty file path
// disables it; the stderr trace stays governed by FAKE_NVML_LOG.
type TraceConfig struct {
	LogFile string `yaml:"log_file"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}
