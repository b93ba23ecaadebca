package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fakegpu/internal/config"
	"fakegpu/internal/devtree"
	"fakegpu/internal/diag"
	"fakegpu/internal/fakenvml"
	"fakegpu/internal/fsutil"
	"fakegpu/internal/inventory"
	"fakegpu/internal/lease"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
)

// Model represents the TUI application state
type Model struct {
	startTime time.Time
	quitting  bool

	logger   *logging.Logger
	cfg      config.Config
	profile  fakenvml.Profile
	version  string
	stateDir string

	// UI State
	currentScreen Screen
	selection     int
	lastError     string
	stateManager  *UIStateManager

	// Status Screen State
	leaseInfo *lease.Lease
	leaseErr  string
	treeInfo  devtree.Status
	treeErr   string

	// Devices Screen State
	report    inventory.Report
	hasReport bool

	// Trace Screen State
	traceRecords []metrics.TraceRecord
	traceErr     string

	// Diagnostics Screen State
	diagResult string

	statusMessage string
}

const down = "down"

// traceDisplayCount bounds the trace screen to a terminal-friendly tail
const traceDisplayCount = 15

// NewModel creates a new TUI model with preloaded system insights
func NewModel(cfg config.Config, profile fakenvml.Profile, version string, logger *logging.Logger) Model {
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)

	m := Model{
		startTime:     time.Now(),
		logger:        logger,
		cfg:           cfg,
		profile:       profile,
		version:       version,
		stateDir:      stateDir,
		currentScreen: ScreenMenu,
		selection:     0,
		stateManager:  NewUIStateManager(stateDir, logger),
	}

	// Load persisted UI state
	if state, err := m.stateManager.Load(); err == nil {
		m.currentScreen = state.CurrentScreen
		m.selection = state.Selection
		m.lastError = state.LastError
	}

	// Load system state
	m.loadStatus()
	m.loadDevices()
	m.loadTrace()

	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if next, handled, cmd := m.handleQuitKeys(keyMsg.String()); handled {
		return next, cmd
	}

	if next, handled := m.handleEscapeKey(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled := m.handleMenuNavigationKeys(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled := m.handleMenuSelectionKey(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled := m.handleShortcutKeys(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled := m.handleRefreshKey(keyMsg.String()); handled {
		return next, nil
	}

	if next, handled := m.handleDiagScreenKeys(keyMsg.String()); handled {
		return next, nil
	}

	return m, nil
}

func (m Model) handleQuitKeys(key string) (tea.Model, bool, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		m.saveState()
		return m, true, tea.Quit
	}
	return m, false, nil
}

func (m Model) handleEscapeKey(key string) (tea.Model, bool) {
	if key == "esc" && m.currentScreen != ScreenMenu {
		m = m.returnToMenu()
		m.saveState()
		return m, true
	}
	return m, false
}

func (m Model) handleMenuNavigationKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenMenu {
		return m, false
	}

	switch key {
	case "up", "k":
		return m.navigateUp(), true
	case down, "j":
		return m.navigateDown(), true
	}
	return m, false
}

func (m Model) handleMenuSelectionKey(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenMenu {
		return m, false
	}

	if key == "enter" || key == " " {
		updated := m.selectMenuItem()
		updated.saveState()
		return updated, true
	}
	return m, false
}

func (m Model) handleShortcutKeys(key string) (tea.Model, bool) {
	switch key {
	case "1", "2", "3", "4", "5", "?":
		updated := m.selectMenuByKey(key)
		updated.saveState()
		return updated, true
	}
	return m, false
}

func (m Model) handleRefreshKey(key string) (tea.Model, bool) {
	if key != "r" {
		return m, false
	}

	switch m.currentScreen {
	case ScreenStatus, ScreenDevices, ScreenTree, ScreenTrace:
		return m.refresh(), true
	}
	return m, false
}

func (m Model) handleDiagScreenKeys(key string) (tea.Model, bool) {
	if m.currentScreen != ScreenDiagnostics {
		return m, false
	}

	if key == "g" {
		return m.generateBundle(), true
	}
	return m, false
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case ScreenMenu:
		return m.renderMenu()
	case ScreenStatus:
		return m.renderStatusScreen()
	case ScreenDevices:
		return m.renderDevicesScreen()
	case ScreenTree:
		return m.renderTreeScreen()
	case ScreenTrace:
		return m.renderTraceScreen()
	case ScreenDiagnostics:
		return m.renderDiagnosticsScreen()
	case ScreenHelp:
		return m.renderHelpScreen()
	default:
		return m.renderMenu()
	}
}

// saveState persists the current UI state
func (m *Model) saveState() {
	state := &UIState{
		CurrentScreen: m.currentScreen,
		Selection:     m.selection,
		LastError:     m.lastError,
		Updated:       time.Now().UTC(),
	}

	if err := m.stateManager.Save(state); err != nil {
		m.logger.Warn("tui.state.save_failed", "Failed to save UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// leaseTimeout returns the configured staleness window
func (m Model) leaseTimeout() time.Duration {
	if m.cfg.Lease.TimeoutSeconds > 0 {
		return time.Duration(m.cfg.Lease.TimeoutSeconds) * time.Second
	}
	return lease.DefaultTimeout
}

// loadStatus loads lease and tree state
func (m *Model) loadStatus() {
	leases := lease.NewManager(m.stateDir, m.logger)
	held, err := leases.Status()
	if err != nil {
		m.leaseErr = err.Error()
		m.leaseInfo = nil
	} else {
		m.leaseInfo = held
		m.leaseErr = ""
	}

	publisher := devtree.NewPublisher(m.cfg.Tree.Root, m.logger)
	status, err := publisher.Status()
	if err != nil {
		m.treeErr = err.Error()
		return
	}
	m.treeInfo = status
	m.treeErr = ""
}

// loadDevices probes a fresh shim for the devices screen
func (m *Model) loadDevices() {
	shim := fakenvml.New(fakenvml.WithProfile(m.profile))
	m.report = inventory.NewCollector(shim, m.logger).Collect()
	m.hasReport = true
}

// loadTrace loads the tail of the shim trace log
func (m *Model) loadTrace() {
	if m.cfg.Trace.LogFile == "" {
		m.traceRecords = nil
		m.traceErr = "Trace log disabled (set trace.log_file in the config)"
		return
	}

	traceLog := metrics.NewTraceLog(m.cfg.Trace.LogFile, m.logger)
	records, err := traceLog.Tail(traceDisplayCount)
	if err != nil {
		m.traceRecords = nil
		m.traceErr = err.Error()
		return
	}
	m.traceRecords = records
	m.traceErr = ""
}

// refresh refreshes all system state
func (m Model) refresh() Model {
	m.loadStatus()
	m.loadDevices()
	m.loadTrace()
	m.statusMessage = "Refreshed system state"
	m.lastError = ""
	return m
}

// generateBundle creates a diagnostic support bundle
func (m Model) generateBundle() Model {
	diagCfg := diag.NewConfig(m.version)
	diagCfg.TreeRoot = m.cfg.Tree.Root
	diagCfg.TraceLogPath = m.cfg.Trace.LogFile
	diagCfg.LogFile = m.cfg.Logging.File
	diagCfg.Profile = m.profile

	packager := diag.NewPackager(diagCfg, m.logger)
	path, err := packager.CreatePackage()
	if err != nil {
		m.diagResult = fmt.Sprintf("Failed to create bundle: %v", err)
		m.lastError = m.diagResult
		return m
	}

	m.diagResult = "Bundle written to " + path
	m.lastError = ""
	return m
}

// prettyDuration formats a duration for display
func (m Model) prettyDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Truncate(time.Second).String()
}
