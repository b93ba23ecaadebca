package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Buffer limits from the emulated management API. Names longer than the
// device-name buffer would always read back truncated, so they are
// rejected up front.
const (
	maxDeviceNameLen    = 63
	maxDriverVersionLen = 79
	maxDeviceCount      = 64
)

// Validate checks if the configuration is valid
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProfile()...)
	errors = append(errors, c.validateTree()...)
	errors = append(errors, c.validateServe()...)
	errors = append(errors, c.validateLease()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateProfile() []ValidationError {
	var errors []ValidationError

	if c.Profile.DeviceCount < 1 || c.Profile.DeviceCount > maxDeviceCount {
		errors = append(errors, ValidationError{
			Path:    "profile.device_count",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", maxDeviceCount, c.Profile.DeviceCount),
		})
	}

	if c.Profile.DeviceName == "" {
		errors = append(errors, ValidationError{
			Path:    "profile.device_name",
			Message: "must not be empty",
		})
	} else if len(c.Profile.DeviceName) > maxDeviceNameLen {
		errors = append(errors, ValidationError{
			Path:    "profile.device_name",
			Message: fmt.Sprintf("must be at most %d bytes, got %d", maxDeviceNameLen, len(c.Profile.DeviceName)),
		})
	}

	if !isValidVersionFormat(c.Profile.DriverVersion) {
		errors = append(errors, ValidationError{
			Path:    "profile.driver_version",
			Message: fmt.Sprintf("must be dotted digits like 535.104.05, got '%s'", c.Profile.DriverVersion),
		})
	} else if len(c.Profile.DriverVersion) > maxDriverVersionLen {
		errors = append(errors, ValidationError{
			Path:    "profile.driver_version",
			Message: fmt.Sprintf("must be at most %d bytes, got %d", maxDriverVersionLen, len(c.Profile.DriverVersion)),
		})
	}

	// CUDA driver versions encode major*1000 + minor*10, e.g. 12020 for 12.2.
	if c.Profile.CudaDriverVersion < 1000 || c.Profile.CudaDriverVersion > 99990 {
		errors = append(errors, ValidationError{
			Path:    "profile.cuda_driver_version",
			Message: fmt.Sprintf("must be an encoded version between 1000 and 99990, got %d", c.Profile.CudaDriverVersion),
		})
	}

	if c.Profile.MemoryMiB < 1 {
		errors = append(errors, ValidationError{
			Path:    "profile.memory_mib",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Profile.MemoryMiB),
		})
	}

	return errors
}

func (c *Config) validateTree() []ValidationError {
	if filepath.IsAbs(c.Tree.Root) {
		return nil
	}

	return []ValidationError{{
		Path:    "tree.root",
		Message: fmt.Sprintf("must be an absolute path, got '%s'", c.Tree.Root),
	}}
}

func (c *Config) validateServe() []ValidationError {
	if !c.Serve.Enabled && c.Serve.Addr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(c.Serve.Addr); err != nil {
		return []ValidationError{{
			Path:    "serve.addr",
			Message: fmt.Sprintf("must be host:port, got '%s'", c.Serve.Addr),
		}}
	}

	return nil
}

func (c *Config) validateLease() []ValidationError {
	if c.Lease.TimeoutSeconds >= 10 {
		return nil
	}

	return []ValidationError{{
		Path:    "lease.timeout_seconds",
		Message: fmt.Sprintf("must be at least 10, got %d", c.Lease.TimeoutSeconds),
	}}
}

func (c *Config) validateLogging() []ValidationError {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, c.Logging.Level) {
		return nil
	}

	return []ValidationError{{
		Path:    "logging.level",
		Message: fmt.Sprintf("must be one of %v, got '%s'", validLevels, c.Logging.Level),
	}}
}

// contains checks if a string is in a slice
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// isValidVersionFormat accepts dotted decimal strings like "535.104.05".
func isValidVersionFormat(v string) bool {
	if v == "" {
		return false
	}
	parts := strings.Split(v, ".")
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
