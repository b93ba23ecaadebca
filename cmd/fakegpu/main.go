package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fakegpu/internal/agent"
	"fakegpu/internal/config"
	"fakegpu/internal/devtree"
	"fakegpu/internal/diag"
	"fakegpu/internal/fakenvml"
	"fakegpu/internal/fsutil"
	"fakegpu/internal/inventory"
	"fakegpu/internal/lease"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
	"fakegpu/internal/server"
	"fakegpu/internal/tui"
)

const (
	version         = "0.1.0-dev"
	confirmationYes = "yes"
)

func main() {
	if len(os.Args) <= 1 {
		runTUI()
		return
	}

	command := strings.ToLower(os.Args[1])
	if handler, ok := commandHandlers()[command]; ok {
		handler()
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage()
	os.Exit(1)
}

func commandHandlers() map[string]func() {
	return map[string]func(){
		"up":      runUp,
		"down":    runDown,
		"status":  runStatus,
		"check":   runCheck,
		"serve":   runServe,
		"diag":    runDiag,
		"config":  runConfig,
		"unlock":  runUnlock,
		"version": runVersion,
		"help":    printUsage,
		"--help":  printUsage,
		"-h":      printUsage,
	}
}

func runVersion() {
	fmt.Printf("fakegpu version %s\n", version)
}

// loadConfigOrDefaults loads the merged system/user configuration. A
// missing or invalid config degrades to the built-in defaults so the
// read-only commands stay usable on an unconfigured host.
func loadConfigOrDefaults() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: using default configuration: %v\n", err)
		return config.DefaultConfig()
	}
	return cfg
}

// newLogger builds the event logger described by the configuration
func newLogger(cfg config.Config) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	if cfg.Logging.File != "" {
		logger, err := logging.NewFileLogger(level, cfg.Logging.File)
		if err == nil {
			return logger
		}
		fmt.Fprintf(os.Stderr, "Warning: falling back to stderr logging: %v\n", err)
	}

	return logging.NewLogger(level)
}

// runTUI starts the interactive TUI mode
func runTUI() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)

	startTime := time.Now()
	logger.Info("app.started", "Application started", map[string]interface{}{
		"version": version,
		"ts":      startTime.UTC().Format(time.RFC3339),
	})

	profile := agent.BuildProfile(cfg.Profile)
	p := tea.NewProgram(tui.NewModel(cfg, profile, version, logger))

	// Run the program and capture exit reason
	finalModel, err := p.Run()
	exitReason := "normal"

	if err != nil {
		exitReason = "error"
		logger.Error("app.error", "Application error", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}

	// Ensure we got our model type back
	_ = finalModel

	logger.Info("app.exited", "Application exited", map[string]interface{}{
		"ts":     time.Now().UTC().Format(time.RFC3339),
		"reason": exitReason,
	})
}

// runUp runs the presence agent in the foreground until a signal stops it
func runUp() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)

	profile := agent.BuildProfile(cfg.Profile)

	fmt.Println("Starting fakegpu presence agent...")
	fmt.Printf("  Devices:   %d x %s\n", profile.DeviceCount, profile.DeviceName)
	fmt.Printf("  Driver:    %s\n", profile.DriverVersion)
	fmt.Printf("  Tree root: %s\n", cfg.Tree.Root)
	if cfg.Serve.Enabled {
		fmt.Printf("  API:       http://%s\n", cfg.Serve.Addr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop. The device tree and lease are removed on exit.")
	fmt.Println()

	a := agent.NewAgent(cfg, logger)
	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Agent failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Presence agent stopped, published state removed")
}

// runDown removes published presence state left behind by a crashed or
// killed agent: the device tree and the presence lease.
func runDown() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)

	skipConfirm := false
	for _, arg := range os.Args[2:] {
		if arg == "--yes" || arg == "-y" {
			skipConfirm = true
		}
	}

	leases := lease.NewManager(stateDir, logger)
	if cfg.Lease.TimeoutSeconds > 0 {
		leases.SetTimeout(time.Duration(cfg.Lease.TimeoutSeconds) * time.Second)
	}

	current, err := leases.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to read presence lease: %v\n", err)
		os.Exit(1)
	}

	live, err := leases.Held()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to check presence lease: %v\n", err)
		os.Exit(1)
	}

	// A live lease means an agent still renews it; taking the state
	// down under it only makes the agent republish on its next tick.
	if live && current.PID != os.Getpid() && !skipConfirm {
		fmt.Printf("Presence lease is held by pid %d on %s (renewed %s ago).\n",
			current.PID, current.Hostname, current.Age().Round(time.Second))
		fmt.Println("⚠️  Warning: the owning agent appears to be alive and will re-publish the tree.")
		fmt.Println("   Stop it first, or continue to force the state down anyway.")
		fmt.Println()
		if !confirm("Are you sure you want to continue? (yes/no): ") {
			fmt.Println("Aborted.")
			return
		}
	}

	publisher := devtree.NewPublisher(cfg.Tree.Root, logger)
	if err := publisher.Remove(); err != nil {
		if errors.Is(err, devtree.ErrNotPublished) {
			fmt.Printf("Device tree is not published at %s\n", publisher.Root())
		} else {
			fmt.Fprintf(os.Stderr, "❌ Failed to remove device tree: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("✓ Device tree removed from %s\n", publisher.Root())
	}

	if current == nil {
		fmt.Println("No presence lease to release.")
		return
	}

	if err := leases.ForceRelease(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to release presence lease: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Presence lease released")
}

// runStatus displays the lease, tree, and profile state
func runStatus() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)

	profile := agent.BuildProfile(cfg.Profile)

	fmt.Println("=== fakegpu Status ===")
	fmt.Println()

	fmt.Println("Presence Lease:")
	leases := lease.NewManager(stateDir, logger)
	timeout := lease.DefaultTimeout
	if cfg.Lease.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Lease.TimeoutSeconds) * time.Second
		leases.SetTimeout(timeout)
	}
	current, err := leases.Status()
	switch {
	case err != nil:
		fmt.Printf("  ❌ Error: %v\n", err)
	case current == nil:
		fmt.Println("  Not held")
	default:
		state := "LIVE"
		if current.Stale(timeout) {
			state = "STALE"
		}
		fmt.Printf("  Holder:   pid %d on %s (%s)\n", current.PID, current.Hostname, state)
		fmt.Printf("  Acquired: %s\n", current.AcquiredTS.Format(time.RFC3339))
		fmt.Printf("  Renewed:  %s ago\n", current.Age().Round(time.Second))
	}
	fmt.Println()

	fmt.Println("Device Tree:")
	publisher := devtree.NewPublisher(cfg.Tree.Root, logger)
	status, err := publisher.Status()
	switch {
	case err != nil:
		fmt.Printf("  ❌ Error: %v\n", err)
	case !status.Published:
		fmt.Printf("  Not published (root: %s)\n", status.Root)
	default:
		fmt.Printf("  ✓ Published at %s\n", status.Root)
		fmt.Printf("  Driver Version: %s\n", status.DriverVersion)
		fmt.Printf("  Devices: %d\n", len(status.BusIDs))
		for _, busID := range status.BusIDs {
			fmt.Printf("    - %s\n", busID)
		}
	}
	fmt.Println()

	fmt.Println("Hardware Profile:")
	fmt.Printf("  %d x %s (driver %s, CUDA %d)\n",
		profile.DeviceCount, profile.DeviceName, profile.DriverVersion, profile.CudaDriverVersion)
}

// runCheck probes the emulated management library the way host tooling
// would and prints the resulting inventory
func runCheck() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)

	fmt.Println("Probing emulated management library...")
	fmt.Println()

	profile := agent.BuildProfile(cfg.Profile)
	shim := fakenvml.New(fakenvml.WithProfile(profile))
	collector := inventory.NewCollector(shim, logger)
	report := collector.Collect()

	fmt.Println("=== GPU Inventory Report ===")
	if !report.LibraryOk {
		fmt.Printf("❌ Library Status: FAILED\n")
		fmt.Printf("   Error: %s\n", report.ErrorMessage)
		os.Exit(1)
	}

	fmt.Printf("✓ Library Status: OK\n")
	fmt.Printf("  Driver Version: %s\n", report.DriverVersion)
	fmt.Printf("  NVML Version:   %s\n", report.NVMLVersion)
	fmt.Printf("  CUDA Version:   %d\n", report.CUDAVersion)
	fmt.Printf("  GPU Count:      %d\n", len(report.Devices))
	fmt.Println()

	for _, dev := range report.Devices {
		fmt.Printf("  GPU %d:\n", dev.Index)
		fmt.Printf("    Name:       %s\n", dev.Name)
		fmt.Printf("    UUID:       %s\n", dev.UUID)
		fmt.Printf("    Bus ID:     %s\n", dev.BusID)
		fmt.Printf("    Minor:      %d\n", dev.Minor)
		fmt.Printf("    Memory:     %d MiB\n", dev.MemoryMiB)
		fmt.Printf("    Capability: %s\n", dev.ComputeCapability)
		fmt.Printf("    Brand:      %s\n", dev.Brand)
	}

	// Save detailed report if requested
	if len(os.Args) > 2 && os.Args[2] == "--save" {
		stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)
		if err := fsutil.EnsureStateDirectory(stateDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create state directory: %v\n", err)
			os.Exit(1)
		}
		reportPath := filepath.Join(stateDir, inventory.ReportFileName)
		if err := collector.SaveReport(report, reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		fmt.Printf("Detailed report saved to: %s\n", reportPath)
	}
}

// runServe runs the inspection HTTP API in the foreground without
// publishing any presence state
func runServe() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)

	profile := agent.BuildProfile(cfg.Profile)
	recorder := metrics.NewRecorder()

	var traceLog *metrics.TraceLog
	tracers := []fakenvml.Tracer{fakenvml.EnvTracer{}, recorder}
	if cfg.Trace.LogFile != "" {
		traceLog = metrics.NewTraceLog(cfg.Trace.LogFile, logger)
		tracers = append(tracers, traceLog)
	}

	shim := fakenvml.New(
		fakenvml.WithProfile(profile),
		fakenvml.WithTracer(fakenvml.Tracers(tracers...)),
	)
	collector := inventory.NewCollector(shim, logger)
	publisher := devtree.NewPublisher(cfg.Tree.Root, logger)
	leases := lease.NewManager(stateDir, logger)
	if cfg.Lease.TimeoutSeconds > 0 {
		leases.SetTimeout(time.Duration(cfg.Lease.TimeoutSeconds) * time.Second)
	}

	api := server.NewAPI(collector, publisher, leases, traceLog, recorder, logger)
	srv := server.New(cfg.Serve.Addr, api)

	fmt.Printf("Inspection API listening on http://%s\n", srv.Addr())
	fmt.Println("Press Ctrl+C to stop.")

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Server failed: %v\n", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Server shutdown failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("✓ Inspection server stopped")
}

// runDiag creates a diagnostic package
func runDiag() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)

	diagCfg := diag.NewConfig(version)
	diagCfg.TreeRoot = cfg.Tree.Root
	diagCfg.TraceLogPath = cfg.Trace.LogFile
	diagCfg.LogFile = cfg.Logging.File
	diagCfg.Profile = agent.BuildProfile(cfg.Profile)

	// Parse command line options for custom paths
	if len(os.Args) > 2 {
		for i := 2; i < len(os.Args); i++ {
			if os.Args[i] == "--output" && i+1 < len(os.Args) {
				diagCfg.OutputPath = os.Args[i+1]
				i++
			}
		}
	}

	fmt.Println("Creating diagnostic package...")
	fmt.Printf("  Version: %s\n", diagCfg.Version)
	fmt.Printf("  Output:  %s\n", diagCfg.OutputPath)
	fmt.Println()

	packager := diag.NewPackager(diagCfg, logger)
	zipPath, err := packager.CreatePackage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create diagnostic package: %v\n", err)
		os.Exit(1)
	}

	fileInfo, err := os.Stat(zipPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Package created but failed to get file info: %v\n", err)
		fmt.Printf("✓ Diagnostic package created: %s\n", zipPath)
		return
	}

	fmt.Printf("✓ Diagnostic package created successfully\n")
	fmt.Printf("  Path: %s\n", zipPath)
	fmt.Printf("  Size: %s\n", formatBytes(fileInfo.Size()))
	fmt.Println()
	fmt.Println("The package contains:")
	fmt.Println("  • Configuration (secrets redacted)")
	fmt.Println("  • State files (lease token redacted) and the published device tree")
	fmt.Println("  • Shim trace tail and agent log, when configured")
	fmt.Println("  • A live probe of the emulated management library")
	fmt.Println("  • Manifest with file checksums (diag_manifest.json)")
	fmt.Println()
	fmt.Println("You can share this package for troubleshooting.")
}

// runConfig performs configuration file validation
func runConfig() {
	logger := logging.NewLogger(logging.LevelInfo)

	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: fakegpu config <subcommand>\n")
		fmt.Fprintf(os.Stderr, "Subcommands:\n")
		fmt.Fprintf(os.Stderr, "  test [path]  Test configuration file for validity\n")
		os.Exit(1)
	}

	subcommand := strings.ToLower(os.Args[2])

	switch subcommand {
	case "test":
		runConfigTest(logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", subcommand)
		fmt.Fprintf(os.Stderr, "Valid subcommands: test\n")
		os.Exit(1)
	}
}

// runConfigTest validates configuration file(s)
func runConfigTest(logger *logging.Logger) {
	var cfg config.Config
	var configErr error

	// Check if specific path provided
	if len(os.Args) > 3 {
		path := os.Args[3]
		fmt.Printf("Testing configuration file: %s\n", path)
		cfg, configErr = config.LoadFrom(path)
	} else {
		// Test default system/user merge
		fmt.Println("Testing configuration (system + user merge):")
		systemPath := config.SystemConfigPath()
		userPath := config.UserConfigPath()
		fmt.Printf("  System config: %s\n", systemPath)
		if userPath != "" {
			fmt.Printf("  User config:   %s\n", userPath)
		}
		fmt.Println()

		cfg, configErr = config.Load()
	}

	if configErr != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation FAILED:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", configErr)

		logger.Error("config.validation.error", "Configuration validation failed", map[string]interface{}{
			"error": configErr.Error(),
		})
		os.Exit(1)
	}

	fmt.Println("✓ Configuration is VALID")
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Device Count:    %d\n", cfg.Profile.DeviceCount)
	fmt.Printf("  Device Name:     %s\n", cfg.Profile.DeviceName)
	fmt.Printf("  Driver Version:  %s\n", cfg.Profile.DriverVersion)
	fmt.Printf("  CUDA Version:    %d\n", cfg.Profile.CudaDriverVersion)
	fmt.Printf("  Memory:          %d MiB\n", cfg.Profile.MemoryMiB)
	fmt.Printf("  Tree Root:       %s\n", cfg.Tree.Root)
	fmt.Printf("  Serve Enabled:   %t\n", cfg.Serve.Enabled)
	fmt.Printf("  Serve Addr:      %s\n", cfg.Serve.Addr)
	fmt.Printf("  Lease Timeout:   %ds\n", cfg.Lease.TimeoutSeconds)
	fmt.Printf("  Log Level:       %s\n", cfg.Logging.Level)

	logger.Info("config.validation.ok", "Configuration validation passed", map[string]interface{}{
		"device_count": cfg.Profile.DeviceCount,
		"tree_root":    cfg.Tree.Root,
	})
}

// runUnlock forcibly releases the presence lease
func runUnlock() {
	cfg := loadConfigOrDefaults()
	logger := newLogger(cfg)
	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)

	leases := lease.NewManager(stateDir, logger)
	if cfg.Lease.TimeoutSeconds > 0 {
		leases.SetTimeout(time.Duration(cfg.Lease.TimeoutSeconds) * time.Second)
	}

	current, err := leases.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to get presence lease status: %v\n", err)
		os.Exit(1)
	}

	if current == nil {
		fmt.Println("Presence lease is not held.")
		return
	}

	fmt.Printf("Current lease holder: pid %d on %s\n", current.PID, current.Hostname)
	fmt.Printf("Lease acquired: %s\n", current.AcquiredTS.Format(time.RFC3339))
	fmt.Printf("Last renewed: %s ago\n", current.Age().Round(time.Second))
	fmt.Println()

	fmt.Println("⚠️  Warning: force-releasing a live lease lets a second publisher take over")
	fmt.Println("   while the original agent still believes it owns the presence state.")
	fmt.Println()

	if !confirm("Are you sure you want to force release? (yes/no): ") {
		fmt.Println("Aborted.")
		return
	}

	if err := leases.ForceRelease(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to force release lease: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Presence lease forcibly released")
	fmt.Println()
	fmt.Println("Another agent can now publish presence state on this host.")
}

// confirm prompts for a yes/no answer and returns true only on "yes"
func confirm(prompt string) bool {
	fmt.Print(prompt)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	return strings.ToLower(response) == confirmationYes
}

// formatBytes formats bytes to human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`fakegpu - NVIDIA GPU presence emulator (version %s)

Usage:
  fakegpu                      Start the interactive TUI (default)
  fakegpu up                   Run the presence agent (lease, shim, device tree, optional API)
  fakegpu down [--yes]         Remove the device tree and release the presence lease
  fakegpu status               Show lease, device tree and profile status
  fakegpu check [--save]       Probe the emulated management library and print the inventory
  fakegpu serve                Run the inspection HTTP API in the foreground
  fakegpu diag [--output path] Create a diagnostic package (ZIP with redacted state)
  fakegpu config test [path]   Test configuration file for validity (defaults to system/user configs)
  fakegpu unlock               Force-release the presence lease (recovery)
  fakegpu version              Print version information
  fakegpu help                 Show this help message

Environment:
  FAKEGPU_CONFIG_DIR  Configuration directory (default: /etc/fakegpu)
  FAKEGPU_STATE_DIR   State directory (default: /var/lib/fakegpu)
  FAKE_NVML_LOG       When set, every shim call is traced to stderr

The agent publishes a driver-shaped directory tree (bind-mount it over
/proc/driver/nvidia) and answers management library probes with a fixed
hardware profile. Nothing it does touches real GPU hardware.
`, version)
}
