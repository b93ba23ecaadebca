package tui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fakegpu/internal/logging"
)

func TestUIStateManager_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.LevelError)
	manager := NewUIStateManager(tmpDir, logger)

	state := &UIState{
		CurrentScreen: ScreenStatus,
		Selection:     2,
		LastError:     "test error",
		Updated:       time.Now().UTC(),
	}

	if err := manager.Save(state); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	loaded, err := manager.Load()
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}

	if loaded.CurrentScreen != ScreenStatus {
		t.Errorf("Expected screen status, got %s", loaded.CurrentScreen)
	}

	if loaded.Selection != 2 {
		t.Errorf("Expected selection 2, got %d", loaded.Selection)
	}

	if loaded.LastError != "test error" {
		t.Errorf("Expected error 'test error', got %s", loaded.LastError)
	}
}

func TestUIStateManager_LoadNonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.LevelError)
	manager := NewUIStateManager(tmpDir, logger)

	// Load without a state file should return the default state
	state, err := manager.Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if state.CurrentScreen != ScreenMenu {
		t.Errorf("Expected default screen menu, got %s", state.CurrentScreen)
	}

	if state.Selection != 0 {
		t.Errorf("Expected default selection 0, got %d", state.Selection)
	}

	if state.LastError != "" {
		t.Errorf("Expected empty error, got %s", state.LastError)
	}
}

func TestUIStateManager_AtomicWrite(t *testing.T) {
	tmpDir := t.TempDir()
	logger := logging.NewLogger(logging.LevelError)
	manager := NewUIStateManager(tmpDir, logger)

	state := &UIState{
		CurrentScreen: ScreenMenu,
		Selection:     0,
		LastError:     "",
		Updated:       time.Now().UTC(),
	}

	if err := manager.Save(state); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}

	// Temp file must not survive a successful save
	tmpPath := filepath.Join(tmpDir, UIStateFileName+".tmp")
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Error("Temp file should not exist after save")
	}

	statePath := filepath.Join(tmpDir, UIStateFileName)
	if _, err := os.Stat(statePath); err != nil {
		t.Errorf("State file should exist: %v", err)
	}
}
