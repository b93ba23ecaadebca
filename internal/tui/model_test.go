package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"fakegpu/internal/config"
	"fakegpu/internal/devtree"
	"fakegpu/internal/fakenvml"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
)

func newTestModel(t *testing.T) Model {
	t.Helper()

	tmp := t.TempDir()
	t.Setenv("FAKEGPU_STATE_DIR", tmp)

	cfg := config.DefaultConfig()
	cfg.Profile.DeviceCount = 2
	cfg.Tree.Root = filepath.Join(tmp, "nvidia")
	cfg.Trace.LogFile = filepath.Join(tmp, "shim_trace.jsonl")

	profile := fakenvml.DefaultProfile()
	profile.DeviceCount = 2

	logger := logging.NewLogger(logging.LevelError)
	return NewModel(cfg, profile, "0.9.0-test", logger)
}

func TestNewModel(t *testing.T) {
	m := newTestModel(t)

	if m.startTime.IsZero() {
		t.Error("Expected startTime to be set, got zero time")
	}

	if m.quitting {
		t.Error("Expected quitting to be false initially")
	}

	if m.currentScreen != ScreenMenu {
		t.Errorf("Expected menu screen initially, got %s", m.currentScreen)
	}
}

func TestModelInit(t *testing.T) {
	m := newTestModel(t)
	cmd := m.Init()

	if cmd != nil {
		t.Error("Expected Init to return nil command")
	}
}

func TestModelUpdate_QuitOnQ(t *testing.T) {
	m := newTestModel(t)

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updatedModel, cmd := m.Update(msg)

	updatedM, ok := updatedModel.(Model)
	if !ok {
		t.Fatal("Expected Model type from Update")
	}

	if !updatedM.quitting {
		t.Error("Expected quitting to be true after 'q' key")
	}

	if cmd == nil {
		t.Error("Expected quit command to be returned")
	}
}

func TestModelUpdate_QuitOnCtrlC(t *testing.T) {
	m := newTestModel(t)

	msg := tea.KeyMsg{Type: tea.KeyCtrlC}
	updatedModel, cmd := m.Update(msg)

	updatedM, ok := updatedModel.(Model)
	if !ok {
		t.Fatal("Expected Model type from Update")
	}

	if !updatedM.quitting {
		t.Error("Expected quitting to be true after Ctrl+C")
	}

	if cmd == nil {
		t.Error("Expected quit command to be returned")
	}
}

func TestModelUpdate_OtherKey(t *testing.T) {
	m := newTestModel(t)

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'z'}}
	updatedModel, cmd := m.Update(msg)

	updatedM, ok := updatedModel.(Model)
	if !ok {
		t.Fatal("Expected Model type from Update")
	}

	if updatedM.quitting {
		t.Error("Expected quitting to remain false for non-quit key")
	}

	if cmd != nil {
		t.Error("Expected no command for non-quit key")
	}
}

func TestModelUpdate_ShortcutToStatus(t *testing.T) {
	m := newTestModel(t)

	msg := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'1'}}
	updatedModel, _ := m.Update(msg)

	updatedM, ok := updatedModel.(Model)
	if !ok {
		t.Fatal("Expected Model type from Update")
	}

	if updatedM.currentScreen != ScreenStatus {
		t.Errorf("Expected status screen after '1', got %s", updatedM.currentScreen)
	}
}

func TestModelUpdate_EscReturnsToMenu(t *testing.T) {
	m := newTestModel(t)
	m.currentScreen = ScreenDevices

	msg := tea.KeyMsg{Type: tea.KeyEsc}
	updatedModel, _ := m.Update(msg)

	updatedM, ok := updatedModel.(Model)
	if !ok {
		t.Fatal("Expected Model type from Update")
	}

	if updatedM.currentScreen != ScreenMenu {
		t.Errorf("Expected menu screen after Esc, got %s", updatedM.currentScreen)
	}
}

func TestModelView_Quitting(t *testing.T) {
	m := newTestModel(t)
	m.quitting = true
	view := m.View()

	if view != "" {
		t.Errorf("Expected empty view when quitting, got: %s", view)
	}
}

func TestModelView_Menu(t *testing.T) {
	m := newTestModel(t)
	view := m.View()

	expectedStrings := []string{"fakegpu", "Status", "Devices", "Tree", "Trace", "Diagnostics"}
	for _, expected := range expectedStrings {
		if !strings.Contains(view, expected) {
			t.Errorf("Expected menu view to contain %q", expected)
		}
	}
}

func TestModelView_StatusScreen(t *testing.T) {
	m := newTestModel(t)
	m.currentScreen = ScreenStatus
	view := m.View()

	expectedStrings := []string{"Presence Lease", "Device Tree", "Hardware Profile", "Not held", "Not published"}
	for _, expected := range expectedStrings {
		if !strings.Contains(view, expected) {
			t.Errorf("Expected status view to contain %q.\nView: %s", expected, view)
		}
	}
}

func TestModelView_DevicesScreen(t *testing.T) {
	m := newTestModel(t)
	m.currentScreen = ScreenDevices
	view := m.View()

	if !strings.Contains(view, "NVIDIA Tesla T4") {
		t.Errorf("Expected devices view to list the emulated model.\nView: %s", view)
	}
	if !strings.Contains(view, "GPU-") {
		t.Error("Expected devices view to show device UUIDs")
	}
	if !strings.Contains(view, "0000:01:00.0") {
		t.Error("Expected devices view to show bus IDs")
	}
}

func TestModelView_TreeScreen_Published(t *testing.T) {
	m := newTestModel(t)

	publisher := devtree.NewPublisher(m.cfg.Tree.Root, m.logger)
	tree := devtree.Tree{
		DriverVersion: "535.104.05",
		Devices: []devtree.Device{
			{BusID: "0000:01:00.0", Model: "NVIDIA Tesla T4", UUID: "GPU-test", Minor: 0},
		},
	}
	if err := publisher.Publish(tree); err != nil {
		t.Fatalf("Failed to publish tree: %v", err)
	}

	m = m.refresh()
	m.currentScreen = ScreenTree
	view := m.View()

	if !strings.Contains(view, "535.104.05") {
		t.Errorf("Expected tree view to show driver version.\nView: %s", view)
	}
	if !strings.Contains(view, "gpus/0000:01:00.0") {
		t.Error("Expected tree view to list GPU directories")
	}
}

func TestModelView_TraceScreen(t *testing.T) {
	m := newTestModel(t)

	traceLog := metrics.NewTraceLog(m.cfg.Trace.LogFile, m.logger)
	traceLog.Trace("nvmlInit_v2", "enter")
	traceLog.Trace("nvmlInit_v2", "exit: 2 devices")

	m = m.refresh()
	m.currentScreen = ScreenTrace
	view := m.View()

	if !strings.Contains(view, "nvmlInit_v2") {
		t.Errorf("Expected trace view to show shim calls.\nView: %s", view)
	}
}

func TestModel_Refresh(t *testing.T) {
	m := newTestModel(t)

	m = m.refresh()

	if m.statusMessage == "" {
		t.Error("Expected refresh to set a status message")
	}
	if !m.hasReport {
		t.Error("Expected refresh to load a device report")
	}
}

func TestModel_GenerateBundle(t *testing.T) {
	outDir := t.TempDir()
	t.Chdir(outDir)

	m := newTestModel(t)
	m = m.generateBundle()

	if !strings.Contains(m.diagResult, "Bundle written to") {
		t.Fatalf("Expected bundle success message, got: %s", m.diagResult)
	}

	bundleName := strings.TrimPrefix(m.diagResult, "Bundle written to ")
	if _, err := os.Stat(filepath.Join(outDir, bundleName)); err != nil {
		t.Errorf("Expected bundle file to exist: %v", err)
	}
}
