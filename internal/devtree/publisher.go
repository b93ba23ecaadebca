package devtree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fakegpu/internal/logging"
)

const (
	// DefaultRoot is where the tree lands when no override is
	// configured. Consumers bind-mount it over /proc/driver/nvidia.
	DefaultRoot = "/run/fakegpu/nvidia"

	// VersionFileName is the driver presence file under the root.
	VersionFileName = "version"

	// GPUsDirName holds one subdirectory per fabricated device.
	GPUsDirName = "gpus"

	// InformationFileName is the per-device summary file.
	InformationFileName = "information"
)

var (
	// ErrAlreadyPublished is returned by Publish when the root exists.
	ErrAlreadyPublished = errors.New("device tree already published")

	// ErrNotPublished is returned by Remove when there is nothing to remove.
	ErrNotPublished = errors.New("device tree not published")
)

// Device describes one entry under the gpus directory. BusID is the
// legacy dotted form and doubles as the directory name.
type Device struct {
	BusID string
	Model string
	UUID  string
	Minor int
}

// Tree holds everything Publish materializes on disk.
type Tree struct {
	DriverVersion string
	Devices       []Device
}

// Status reports what is currently visible under the root.
type Status struct {
	Published     bool     `json:"published"`
	Root          string   `json:"root"`
	DriverVersion string   `json:"driver_version,omitempty"`
	BusIDs        []string `json:"bus_ids,omitempty"`
}

// Publisher materializes and removes the driver presence tree. Both
// transitions go through a rename, so consuming tools never observe a
// half-built or half-removed tree.
type Publisher struct {
	root   string
	logger *logging.Logger
}

// NewPublisher creates a publisher rooted at root, or at DefaultRoot
// when root is empty.
func NewPublisher(root string, logger *logging.Logger) *Publisher {
	if root == "" {
		root = DefaultRoot
	}
	return &Publisher{
		root:   root,
		logger: logger,
	}
}

// Root returns the publish target directory.
func (p *Publisher) Root() string {
	return p.root
}

// Publish builds the tree in a staging directory next to the root and
// renames it into place.
func (p *Publisher) Publish(tree Tree) error {
	if _, err := os.Stat(p.root); err == nil {
		return ErrAlreadyPublished
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat tree root: %w", err)
	}

	parent := filepath.Dir(p.root)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create tree parent: %w", err)
	}

	staging := p.sibling("staging")
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear stale staging directory: %w", err)
	}

	if err := buildTree(staging, tree); err != nil {
		p.discard(staging, "tree.staging_cleanup_failed")
		return err
	}

	if err := os.Rename(staging, p.root); err != nil {
		p.discard(staging, "tree.staging_cleanup_failed")
		return fmt.Errorf("failed to publish tree: %w", err)
	}

	p.logger.Info("tree.published", "Device tree published", map[string]interface{}{
		"root":           p.root,
		"driver_version": tree.DriverVersion,
		"devices":        len(tree.Devices),
	})

	return nil
}

// Remove unpublishes the tree. The root is renamed aside first so the
// whole subtree disappears in one step, then deleted for real.
func (p *Publisher) Remove() error {
	if _, err := os.Stat(p.root); err != nil {
		if os.IsNotExist(err) {
			return ErrNotPublished
		}
		return fmt.Errorf("failed to stat tree root: %w", err)
	}

	doomed := p.sibling("removing")
	if err := os.RemoveAll(doomed); err != nil {
		return fmt.Errorf("failed to clear previous removal directory: %w", err)
	}

	if err := os.Rename(p.root, doomed); err != nil {
		return fmt.Errorf("failed to unpublish tree: %w", err)
	}

	// The tree is already invisible; a leftover here only wastes disk.
	p.discard(doomed, "tree.removal_incomplete")

	p.logger.Info("tree.removed", "Device tree removed", map[string]interface{}{
		"root": p.root,
	})

	return nil
}

// Status inspects the root without modifying anything.
func (p *Publisher) Status() (Status, error) {
	st := Status{Root: p.root}

	if _, err := os.Stat(p.root); err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("failed to stat tree root: %w", err)
	}
	st.Published = true

	if data, err := os.ReadFile(filepath.Join(p.root, VersionFileName)); err == nil {
		st.DriverVersion = parseVersionLine(string(data))
	}

	entries, err := os.ReadDir(filepath.Join(p.root, GPUsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("failed to list gpus directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			st.BusIDs = append(st.BusIDs, entry.Name())
		}
	}

	return st, nil
}

// sibling builds a hidden work directory name next to the root, unique
// per process so concurrent publishers on different roots cannot collide.
func (p *Publisher) sibling(phase string) string {
	name := fmt.Sprintf(".%s.%s-%d", filepath.Base(p.root), phase, os.Getpid())
	return filepath.Join(filepath.Dir(p.root), name)
}

func (p *Publisher) discard(dir, event string) {
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Warn(event, "Failed to remove work directory", map[string]interface{}{
			"path":  dir,
			"error": err.Error(),
		})
	}
}

func buildTree(dir string, tree Tree) error {
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	version := fmt.Sprintf("Driver Version: %s\n", tree.DriverVersion)
	if err := os.WriteFile(filepath.Join(dir, VersionFileName), []byte(version), 0o444); err != nil {
		return fmt.Errorf("failed to write version file: %w", err)
	}

	gpusDir := filepath.Join(dir, GPUsDirName)
	if err := os.Mkdir(gpusDir, 0o755); err != nil {
		return fmt.Errorf("failed to create gpus directory: %w", err)
	}

	for _, dev := range tree.Devices {
		if err := validateBusID(dev.BusID); err != nil {
			return err
		}
		devDir := filepath.Join(gpusDir, dev.BusID)
		if err := os.Mkdir(devDir, 0o755); err != nil {
			return fmt.Errorf("failed to create device directory %s: %w", dev.BusID, err)
		}
		infoPath := filepath.Join(devDir, InformationFileName)
		if err := os.WriteFile(infoPath, []byte(dev.information()), 0o444); err != nil {
			return fmt.Errorf("failed to write information file for %s: %w", dev.BusID, err)
		}
	}

	return nil
}

// validateBusID keeps directory names to a single path element.
func validateBusID(busID string) error {
	if busID == "" || busID == "." || busID == ".." {
		return fmt.Errorf("invalid bus id %q", busID)
	}
	if strings.ContainsAny(busID, `/\`) {
		return fmt.Errorf("invalid bus id %q", busID)
	}
	return nil
}

// information renders the per-device summary in the column layout the
// real driver uses for its information files.
func (d Device) information() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %s\n", "Model:", d.Model)
	fmt.Fprintf(&b, "%-16s %s\n", "GPU UUID:", d.UUID)
	fmt.Fprintf(&b, "%-16s %s\n", "Bus Type:", "PCIe")
	fmt.Fprintf(&b, "%-16s %s\n", "Bus Location:", d.BusID)
	fmt.Fprintf(&b, "%-16s %d\n", "Device Minor:", d.Minor)
	return b.String()
}

func parseVersionLine(s string) string {
	const prefix = "Driver Version: "
	return strings.TrimPrefix(strings.TrimSpace(s), prefix)
}
