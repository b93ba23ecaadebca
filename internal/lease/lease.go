package lease

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fakegpu/internal/fsutil"
	"fakegpu/internal/logging"
)

const (
	// LeaseFileName is the name of the presence lease file
	LeaseFileName = "presence_lease.json"

	// DefaultTimeout is the default lease timeout duration
	// After this duration without a renewal the lease counts as stale
	DefaultTimeout = 5 * time.Minute
)

// ErrNotHeld is returned by Renew when no lease file exists.
var ErrNotHeld = errors.New("presence lease not held")

// Manager manages acquisition and release of the presence lease
type Manager struct {
	stateDir string
	logger   *logging.Logger
	timeout  time.Duration
}

// NewManager creates a new presence lease manager
func NewManager(stateDir string, logger *logging.Logger) *Manager {
	return &Manager{
		stateDir: stateDir,
		logger:   logger,
		timeout:  DefaultTimeout,
	}
}

// SetTimeout overrides the staleness timeout.
func (m *Manager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		m.timeout = timeout
	}
}

// leasePath returns the full path to the lease file
func (m *Manager) leasePath() string {
	return filepath.Join(m.stateDir, LeaseFileName)
}

// Acquire attempts to take the presence lease for this process.
// A live lease held by another process is an error; a stale one is
// cleared automatically.
func (m *Manager) Acquire() (*Lease, error) {
	existing, err := m.load()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read existing lease: %w", err)
	}

	if existing != nil {
		// The same process may re-acquire; it gets its lease back.
		if existing.PID == os.Getpid() {
			m.logger.Info("lease.already_held", "Presence lease already held by this process", map[string]interface{}{
				"token": existing.Token,
			})
			return existing, nil
		}

		if existing.Stale(m.timeout) {
			m.logger.Warn("lease.stale_detected", "Stale presence lease detected", map[string]interface{}{
				"holder_pid":  existing.PID,
				"holder_host": existing.Hostname,
				"age_seconds": existing.Age().Seconds(),
			})
			if err := m.clear(); err != nil {
				return nil, fmt.Errorf("failed to clear stale lease: %w", err)
			}
		} else {
			return nil, fmt.Errorf("presence lease is held by pid %d on %s (renewed %s ago)",
				existing.PID, existing.Hostname, existing.Age().Round(time.Second))
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	now := time.Now().UTC()
	fresh := &Lease{
		Token:      uuid.NewString(),
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredTS: now,
		RenewedTS:  now,
	}

	if err := m.save(fresh); err != nil {
		return nil, fmt.Errorf("failed to save lease: %w", err)
	}

	m.logger.Info("lease.acquired", "Presence lease acquired", map[string]interface{}{
		"token": fresh.Token,
		"pid":   fresh.PID,
	})

	return fresh, nil
}

// Renew pushes the renewal timestamp forward. Only the token holder may
// renew.
func (m *Manager) Renew(token string) (*Lease, error) {
	existing, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotHeld
		}
		return nil, fmt.Errorf("failed to read existing lease: %w", err)
	}

	if existing.Token != token {
		return nil, fmt.Errorf("cannot renew lease: held by pid %d with a different token", existing.PID)
	}

	existing.RenewedTS = time.Now().UTC()
	if err := m.save(existing); err != nil {
		return nil, fmt.Errorf("failed to save renewed lease: %w", err)
	}

	return existing, nil
}

// Release removes the lease. Only the token holder may release; a
// missing lease is not an error.
func (m *Manager) Release(token string) error {
	existing, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("lease.release.no_lease", "No presence lease to release", nil)
			return nil
		}
		return fmt.Errorf("failed to read existing lease: %w", err)
	}

	if existing.Token != token {
		return fmt.Errorf("cannot release lease: held by pid %d with a different token", existing.PID)
	}

	if err := m.clear(); err != nil {
		return fmt.Errorf("failed to remove lease file: %w", err)
	}

	m.logger.Info("lease.released", "Presence lease released", map[string]interface{}{
		"token": token,
	})

	return nil
}

// ForceRelease removes the lease regardless of holder. Recovery use only.
func (m *Manager) ForceRelease() error {
	existing, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("lease.force_release.no_lease", "No presence lease to force release", nil)
			return nil
		}
		return fmt.Errorf("failed to read existing lease: %w", err)
	}

	m.logger.Warn("lease.stolen", "Presence lease forcibly removed", map[string]interface{}{
		"holder_pid":  existing.PID,
		"holder_host": existing.Hostname,
		"age_seconds": existing.Age().Seconds(),
	})

	return m.clear()
}

// Status returns the current lease, or nil when none is held.
func (m *Manager) Status() (*Lease, error) {
	existing, err := m.load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lease: %w", err)
	}
	return existing, nil
}

// Held reports whether a live (non-stale) lease exists.
func (m *Manager) Held() (bool, error) {
	existing, err := m.Status()
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if existing.Stale(m.timeout) {
		m.logger.Warn("lease.stale_on_check", "Stale lease detected during check", map[string]interface{}{
			"holder_pid":  existing.PID,
			"age_seconds": existing.Age().Seconds(),
		})
		return false, nil
	}

	return true, nil
}

func (m *Manager) clear() error {
	if err := os.Remove(m.leasePath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// load loads the lease from disk
func (m *Manager) load() (*Lease, error) {
	data, err := os.ReadFile(m.leasePath())
	if err != nil {
		return nil, err
	}

	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease: %w", err)
	}

	return &l, nil
}

// save saves the lease to disk
func (m *Manager) save(l *Lease) error {
	if err := os.MkdirAll(m.stateDir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lease: %w", err)
	}

	if err := fsutil.AtomicWriteFile(m.leasePath(), data, 0o600, m.logger); err != nil {
		return fmt.Errorf("failed to write lease file: %w", err)
	}

	return nil
}
