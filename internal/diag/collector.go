package diag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fakegpu/internal/fakenvml"
	"fakegpu/internal/inventory"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
)

// Collector gathers diagnostic artifacts
type Collector struct {
	config   *Config
	redactor *Redactor
	logger   *logging.Logger
}

// NewCollector creates a new diagnostic collector
func NewCollector(config *Config, logger *logging.Logger) *Collector {
	return &Collector{
		config:   config,
		redactor: NewRedactor(),
		logger:   logger,
	}
}

// CollectConfig gathers and redacts the configuration file
func (c *Collector) CollectConfig() (map[string][]byte, error) {
	files := make(map[string][]byte)

	if _, err := os.Stat(c.config.ConfigPath); os.IsNotExist(err) {
		c.logger.Warn("diag.collect.config.missing", "Config file not found", map[string]interface{}{
			"path": c.config.ConfigPath,
		})
		return files, nil
	}

	content, err := os.ReadFile(c.config.ConfigPath)
	if err != nil {
		c.logger.Error("diag.collect.config.read_error", "Failed to read config file", map[string]interface{}{
			"path":  c.config.ConfigPath,
			"error": err.Error(),
		})
		return files, fmt.Errorf("failed to read config: %w", err)
	}

	files["config/config.yaml"] = []byte(c.redactor.Redact(string(content)))

	c.logger.Info("diag.collect.config.complete", "Config collection complete", map[string]interface{}{
		"redacted": true,
	})

	return files, nil
}

// CollectState gathers the persisted state artifacts. The lease file
// passes through the redactor so the bundle never contains a usable
// release token.
func (c *Collector) CollectState() (map[string][]byte, error) {
	files := make(map[string][]byte)

	for _, path := range c.config.StateFiles() {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("diag.collect.state.read_error", "Failed to read state file", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
			continue
		}
		files["state/"+filepath.Base(path)] = []byte(c.redactor.Redact(string(content)))
	}

	c.logger.Info("diag.collect.state.complete", "State collection complete", map[string]interface{}{
		"file_count": len(files),
	})

	return files, nil
}

// CollectTree gathers every file of the published device tree
func (c *Collector) CollectTree() (map[string][]byte, error) {
	files := make(map[string][]byte)

	if _, err := os.Stat(c.config.TreeRoot); os.IsNotExist(err) {
		c.logger.Warn("diag.collect.tree.missing", "Device tree not published", map[string]interface{}{
			"path": c.config.TreeRoot,
		})
		return files, nil
	}

	err := filepath.Walk(c.config.TreeRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			c.logger.Warn("diag.collect.tree.walk_error", "Error accessing file", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return nil // Continue walking
		}

		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("diag.collect.tree.read_error", "Failed to read tree file", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return nil // Continue with other files
		}

		relPath, err := filepath.Rel(c.config.TreeRoot, path)
		if err != nil {
			relPath = filepath.Base(path)
		}

		files["tree/"+relPath] = content
		return nil
	})

	if err != nil {
		return files, fmt.Errorf("failed to walk device tree: %w", err)
	}

	c.logger.Info("diag.collect.tree.complete", "Tree collection complete", map[string]interface{}{
		"file_count": len(files),
	})

	return files, nil
}

// CollectTrace gathers the tail of the persistent shim trace log
func (c *Collector) CollectTrace() (map[string][]byte, error) {
	files := make(map[string][]byte)

	if c.config.TraceLogPath == "" {
		return files, nil
	}

	traceLog := metrics.NewTraceLog(c.config.TraceLogPath, c.logger)
	records, err := traceLog.Tail(c.config.TraceTail)
	if err != nil {
		c.logger.Warn("diag.collect.trace.read_error", "Failed to read trace log", map[string]interface{}{
			"path":  c.config.TraceLogPath,
			"error": err.Error(),
		})
		return files, nil
	}
	if len(records) == 0 {
		return files, nil
	}

	var content []byte
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		content = append(content, line...)
		content = append(content, '\n')
	}

	files["trace/"+filepath.Base(c.config.TraceLogPath)] = content

	c.logger.Info("diag.collect.trace.complete", "Trace collection complete", map[string]interface{}{
		"record_count": len(records),
	})

	return files, nil
}

// CollectLogs gathers the agent log file when one is configured
func (c *Collector) CollectLogs() (map[string][]byte, error) {
	files := make(map[string][]byte)

	if c.config.LogFile == "" {
		return files, nil
	}

	content, err := os.ReadFile(c.config.LogFile)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("diag.collect.logs.read_error", "Failed to read log file", map[string]interface{}{
				"path":  c.config.LogFile,
				"error": err.Error(),
			})
		}
		return files, nil
	}

	files["logs/"+filepath.Base(c.config.LogFile)] = []byte(c.redactor.Redact(string(content)))

	c.logger.Info("diag.collect.logs.complete", "Log collection complete", map[string]interface{}{
		"file_count": len(files),
	})

	return files, nil
}

// CollectProbe runs a fresh shim through the inventory collector so the
// bundle shows what a consumer would see right now
func (c *Collector) CollectProbe() (map[string][]byte, error) {
	files := make(map[string][]byte)

	shim := fakenvml.New(fakenvml.WithProfile(c.config.Profile))
	report := inventory.NewCollector(shim, c.logger).Collect()

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return files, fmt.Errorf("failed to marshal probe report: %w", err)
	}

	files["probe/gpu_report.json"] = reportJSON

	c.logger.Info("diag.collect.probe.complete", "Live probe complete", map[string]interface{}{
		"library_ok":   report.LibraryOk,
		"device_count": len(report.Devices),
	})

	return files, nil
}

// CollectSystemInfo gathers host and version information
func (c *Collector) CollectSystemInfo() (map[string][]byte, error) {
	files := make(map[string][]byte)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	sysInfo := map[string]interface{}{
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"host":            hostname,
		"pid":             os.Getpid(),
		"fakegpu_version": c.config.Version,
	}

	sysInfoJSON, err := json.MarshalIndent(sysInfo, "", "  ")
	if err != nil {
		return files, fmt.Errorf("failed to marshal system info: %w", err)
	}

	files["system_info.json"] = sysInfoJSON

	c.logger.Info("diag.collect.sysinfo.complete", "System info collection complete", nil)

	return files, nil
}

// CalculateSHA256 computes SHA256 hash of data
func CalculateSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
