package lease

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fakegpu/internal/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logging.NewLogger(logging.LevelInfo)
	return NewManager(t.TempDir(), logger)
}

// plantForeignLease writes a lease owned by some other process.
func plantForeignLease(t *testing.T, m *Manager, renewed time.Time) *Lease {
	t.Helper()
	foreign := &Lease{
		Token:      "foreign-token",
		PID:        os.Getpid() + 99999,
		Hostname:   "otherhost",
		AcquiredTS: renewed,
		RenewedTS:  renewed,
	}
	if err := m.save(foreign); err != nil {
		t.Fatalf("Failed to plant lease: %v", err)
	}
	return foreign
}

func TestNewManager(t *testing.T) {
	logger := logging.NewLogger(logging.LevelInfo)
	manager := NewManager("/tmp", logger)

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}

	if manager.timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %v, got: %v", DefaultTimeout, manager.timeout)
	}
}

func TestAcquire_Success(t *testing.T) {
	manager := newTestManager(t)

	l, err := manager.Acquire()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if l.Token == "" {
		t.Error("Expected a non-empty token")
	}
	if l.PID != os.Getpid() {
		t.Errorf("Expected pid %d, got: %d", os.Getpid(), l.PID)
	}

	// Verify lease file exists
	leasePath := filepath.Join(manager.stateDir, LeaseFileName)
	if _, statErr := os.Stat(leasePath); os.IsNotExist(statErr) {
		t.Error("Lease file was not created")
	}
}

func TestAcquire_SameProcessReacquires(t *testing.T) {
	manager := newTestManager(t)

	first, err := manager.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	second, err := manager.Acquire()
	if err != nil {
		t.Fatalf("Expected re-acquire by the same process to succeed, got: %v", err)
	}

	if second.Token != first.Token {
		t.Errorf("Expected the original token back, got %q then %q", first.Token, second.Token)
	}
}

func TestAcquire_HeldByOtherProcess(t *testing.T) {
	manager := newTestManager(t)

	plantForeignLease(t, manager, time.Now().UTC())

	if _, err := manager.Acquire(); err == nil {
		t.Error("Expected error when a live lease is held elsewhere, got nil")
	}
}

func TestAcquire_StaleLease(t *testing.T) {
	manager := newTestManager(t)
	manager.SetTimeout(100 * time.Millisecond)

	plantForeignLease(t, manager, time.Now().UTC().Add(-time.Second))

	l, err := manager.Acquire()
	if err != nil {
		t.Fatalf("Expected stale lease to be cleared, got error: %v", err)
	}

	if l.PID != os.Getpid() {
		t.Errorf("Expected lease owned by this process, got pid: %d", l.PID)
	}
}

func TestRenew_Success(t *testing.T) {
	manager := newTestManager(t)

	l, err := manager.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	before := l.RenewedTS
	time.Sleep(10 * time.Millisecond)

	renewed, err := manager.Renew(l.Token)
	if err != nil {
		t.Fatalf("Expected renew to succeed, got: %v", err)
	}

	if !renewed.RenewedTS.After(before) {
		t.Errorf("Expected renewal timestamp to advance, got %v then %v", before, renewed.RenewedTS)
	}
	if renewed.AcquiredTS != l.AcquiredTS {
		t.Error("Expected acquisition timestamp unchanged by renewal")
	}
}

func TestRenew_WrongToken(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.Acquire(); err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Renew("not-the-token"); err == nil {
		t.Error("Expected error when renewing with the wrong token, got nil")
	}
}

func TestRenew_NotHeld(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.Renew("any"); !errors.Is(err, ErrNotHeld) {
		t.Errorf("Expected ErrNotHeld, got: %v", err)
	}
}

func TestRelease_Success(t *testing.T) {
	manager := newTestManager(t)

	l, err := manager.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if err := manager.Release(l.Token); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	status, err := manager.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != nil {
		t.Errorf("Expected no lease after release, got: %+v", status)
	}
}

func TestRelease_WrongToken(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.Acquire(); err != nil {
		t.Fatal(err)
	}

	if err := manager.Release("not-the-token"); err == nil {
		t.Error("Expected error when wrong token tries to release, got nil")
	}
}

func TestRelease_NoLease(t *testing.T) {
	manager := newTestManager(t)

	// Release when no lease exists - should not error
	if err := manager.Release("any"); err != nil {
		t.Errorf("Expected no error when releasing non-existent lease, got: %v", err)
	}
}

func TestForceRelease(t *testing.T) {
	manager := newTestManager(t)

	plantForeignLease(t, manager, time.Now().UTC())

	if err := manager.ForceRelease(); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}

	status, err := manager.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != nil {
		t.Errorf("Expected no lease after force release, got: %+v", status)
	}
}

func TestHeld(t *testing.T) {
	manager := newTestManager(t)

	// Initially not held
	held, err := manager.Held()
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Error("Expected not held initially")
	}

	l, err := manager.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	held, err = manager.Held()
	if err != nil {
		t.Fatal(err)
	}
	if !held {
		t.Error("Expected held after acquire")
	}

	if err := manager.Release(l.Token); err != nil {
		t.Fatal(err)
	}

	held, err = manager.Held()
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Error("Expected not held after release")
	}
}

func TestHeld_StaleLease(t *testing.T) {
	manager := newTestManager(t)
	manager.SetTimeout(100 * time.Millisecond)

	plantForeignLease(t, manager, time.Now().UTC().Add(-time.Second))

	held, err := manager.Held()
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Error("Expected stale lease to be considered not held")
	}
}

func TestAcquire_TokensDiffer(t *testing.T) {
	first := newTestManager(t)
	second := newTestManager(t)

	a, err := first.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	if a.Token == b.Token {
		t.Error("Expected distinct tokens for distinct leases")
	}
}
