package config

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Profile: ProfileConfig{
			DeviceCount:       4,
			DeviceName:        "NVIDIA Tesla T4",
			DriverVersion:     "535.104.05",
			CudaDriverVersion: 12020,
			MemoryMiB:         16384,
			UUIDSeed:          "fakegpu",
		},
		Tree: TreeConfig{
			Root: "/run/fakegpu/nvidia",
		},
		Serve: ServeConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9535",
		},
		Lease: LeaseConfig{
			TimeoutSeconds: 300, // 5 minutes
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Trace: TraceConfig{
			LogFile: "",
		},
	}
}
