package diag

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"fakegpu/internal/logging"
)

// Packager creates diagnostic ZIP packages
type Packager struct {
	config    *Config
	collector *Collector
	logger    *logging.Logger
}

// NewPackager creates a new diagnostic packager
func NewPackager(config *Config, logger *logging.Logger) *Packager {
	return &Packager{
		config:    config,
		collector: NewCollector(config, logger),
		logger:    logger,
	}
}

// CreatePackage creates a complete diagnostic package. Every collector
// failure is logged and skipped so a broken artifact never blocks the
// rest of the bundle.
func (p *Packager) CreatePackage() (string, error) {
	p.logger.Info("diag.package.start", "Creating diagnostic package", map[string]interface{}{
		"output": p.config.OutputPath,
	})

	allFiles := make(map[string][]byte)

	collectors := []struct {
		name    string
		collect func() (map[string][]byte, error)
	}{
		{"config", p.collector.CollectConfig},
		{"state", p.collector.CollectState},
		{"tree", p.collector.CollectTree},
		{"trace", p.collector.CollectTrace},
		{"logs", p.collector.CollectLogs},
		{"probe", p.collector.CollectProbe},
		{"sysinfo", p.collector.CollectSystemInfo},
	}

	for _, entry := range collectors {
		files, err := entry.collect()
		if err != nil {
			p.logger.Error("diag.package.collect_error", "Failed to collect artifacts", map[string]interface{}{
				"collector": entry.name,
				"error":     err.Error(),
			})
			// Continue with partial package
		}
		for path, content := range files {
			allFiles[path] = content
		}
	}

	// Create manifest
	manifest, err := p.createManifest(allFiles)
	if err != nil {
		return "", fmt.Errorf("failed to create manifest: %w", err)
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	allFiles["diag_manifest.json"] = manifestJSON

	// Create ZIP file
	if err := p.createZIP(allFiles); err != nil {
		return "", fmt.Errorf("failed to create ZIP: %w", err)
	}

	p.logger.Info("diag.package.complete", "Diagnostic package created", map[string]interface{}{
		"output":     p.config.OutputPath,
		"file_count": len(allFiles),
	})

	return p.config.OutputPath, nil
}

// createManifest generates the diagnostic manifest
func (p *Packager) createManifest(files map[string][]byte) (*Manifest, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	manifest := &Manifest{
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Host:           hostname,
		FakegpuVersion: p.config.Version,
		Files:          make([]ManifestFile, 0, len(files)),
	}

	for _, path := range sortedPaths(files) {
		content := files[path]
		manifest.Files = append(manifest.Files, ManifestFile{
			Path:      path,
			SizeBytes: int64(len(content)),
			SHA256:    CalculateSHA256(content),
		})
	}

	return manifest, nil
}

// createZIP creates the ZIP archive
func (p *Packager) createZIP(files map[string][]byte) error {
	zipFile, err := os.Create(p.config.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := zipFile.Close(); closeErr != nil {
			p.logger.Warn("diag.package.zipfile.close_error", "Failed to close ZIP file", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	zipWriter := zip.NewWriter(zipFile)
	defer func() {
		if closeErr := zipWriter.Close(); closeErr != nil {
			p.logger.Error("diag.package.zip.close_error", "Failed to close ZIP writer", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	for _, path := range sortedPaths(files) {
		writer, err := zipWriter.Create(path)
		if err != nil {
			p.logger.Warn("diag.package.zip.file_error", "Failed to add file to ZIP", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}

		if _, err := writer.Write(files[path]); err != nil {
			p.logger.Warn("diag.package.zip.write_error", "Failed to write file to ZIP", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
	}

	return nil
}

func sortedPaths(files map[string][]byte) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
