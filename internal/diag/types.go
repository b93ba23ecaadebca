package diag

import (
	"path/filepath"
	"time"

	"fakegpu/internal/configdir"
	"fakegpu/internal/fakenvml"
	"fakegpu/internal/fsutil"
	"fakegpu/internal/inventory"
	"fakegpu/internal/lease"
)

// Manifest represents the diagnostic package manifest
type Manifest struct {
	Timestamp      string         `json:"timestamp"`
	Host           string         `json:"host"`
	FakegpuVersion string         `json:"fakegpu_version"`
	Files          []ManifestFile `json:"files"`
}

// ManifestFile represents a file in the diagnostic package
type ManifestFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// Config configures diagnostic collection
type Config struct {
	ConfigPath   string
	StateDir     string
	TreeRoot     string
	TraceLogPath string
	LogFile      string
	OutputPath   string
	TraceTail    int
	Profile      fakenvml.Profile
	Version      string
}

// NewConfig creates a default diagnostic config
func NewConfig(version string) *Config {
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)
	return &Config{
		ConfigPath:   filepath.Join(configdir.ConfigDir(), "config.yaml"),
		StateDir:     stateDir,
		TreeRoot:     "/run/fakegpu/nvidia",
		TraceLogPath: "",
		LogFile:      "",
		OutputPath:   generateOutputPath(),
		TraceTail:    200,
		Profile:      fakenvml.DefaultProfile(),
		Version:      version,
	}
}

// StateFiles lists the state directory artifacts worth bundling
func (c *Config) StateFiles() []string {
	return []string{
		filepath.Join(c.StateDir, inventory.ReportFileName),
		filepath.Join(c.StateDir, lease.LeaseFileName),
	}
}

func generateOutputPath() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	return "fakegpu-diag-" + timestamp + ".zip"
}
