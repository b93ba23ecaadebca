package tui

import "time"

// Screen represents different TUI screens
type Screen string

const (
	// ScreenMenu is the main menu screen
	ScreenMenu Screen = "menu"
	// ScreenStatus shows lease and tree status
	ScreenStatus Screen = "status"
	// ScreenDevices shows the emulated device registry
	ScreenDevices Screen = "devices"
	// ScreenTree shows the published device tree
	ScreenTree Screen = "tree"
	// ScreenTrace shows recent shim calls
	ScreenTrace Screen = "trace"
	// ScreenDiagnostics creates support bundles
	ScreenDiagnostics Screen = "diagnostics"
	// ScreenHelp shows help overlay
	ScreenHelp Screen = "help"
)

// MenuItem represents a menu item
type MenuItem struct {
	Key         string // Number key or letter
	Label       string // Display label
	Description string // Short description
	Screen      Screen // Target screen
}

// UIState represents the persisted UI state
type UIState struct {
	CurrentScreen Screen    `json:"menu"`       // Current screen
	Selection     int       `json:"selection"`  // Current menu selection index
	LastError     string    `json:"last_error"` // Last error message
	Updated       time.Time `json:"updated"`    // Last update timestamp
}

// DefaultMenuItems returns the default main menu items
func DefaultMenuItems() []MenuItem {
	return []MenuItem{
		{Key: "1", Label: "Status", Description: "Lease and tree status", Screen: ScreenStatus},
		{Key: "2", Label: "Devices", Description: "Emulated device registry", Screen: ScreenDevices},
		{Key: "3", Label: "Tree", Description: "Published device tree", Screen: ScreenTree},
		{Key: "4", Label: "Trace", Description: "Recent shim calls", Screen: ScreenTrace},
		{Key: "5", Label: "Diagnostics", Description: "Create a support bundle", Screen: ScreenDiagnostics},
		{Key: "?", Label: "Help", Description: "Show help", Screen: ScreenHelp},
	}
}
