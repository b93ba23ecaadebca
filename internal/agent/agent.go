// Package agent provides the long-running fakegpu presence daemon. It
// holds the presence lease, keeps the management shim initialized and
// the pseudo device tree published until it is told to stop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"fakegpu/internal/config"
	"fakegpu/internal/devtree"
	"fakegpu/internal/fakenvml"
	"fakegpu/internal/fsutil"
	"fakegpu/internal/inventory"
	"fakegpu/internal/lease"
	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
	"fakegpu/internal/server"
)

// Agent represents the background presence service
type Agent struct {
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	tickRate  time.Duration
	startTime time.Time

	stateDir  string
	profile   fakenvml.Profile
	shim      *fakenvml.Shim
	collector *inventory.Collector
	publisher *devtree.Publisher
	leases    *lease.Manager
	traceLog  *metrics.TraceLog
	recorder  *metrics.Recorder
	srv       *server.Server

	leaseToken string
}

// NewAgent creates a new agent instance from the given configuration
func NewAgent(cfg config.Config, logger *logging.Logger) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	stateDir := fsutil.GetStateDir(fsutil.DefaultStateDir)
	recorder := metrics.NewRecorder()

	// Every shim call is mirrored to stderr (env-gated), the Prometheus
	// counters and, when configured, the persistent trace log.
	var traceLog *metrics.TraceLog
	tracers := []fakenvml.Tracer{fakenvml.EnvTracer{}, recorder}
	if cfg.Trace.LogFile != "" {
		traceLog = metrics.NewTraceLog(cfg.Trace.LogFile, logger)
		tracers = append(tracers, traceLog)
	}

	profile := BuildProfile(cfg.Profile)
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

	var srv *server.Server
	if cfg.Serve.Enabled {
		api := server.NewAPI(collector, publisher, leases, traceLog, recorder, logger)
		srv = server.New(cfg.Serve.Addr, api)
	}

	return &Agent{
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		tickRate:  10 * time.Second,
		startTime: time.Now(),
		stateDir:  stateDir,
		profile:   profile,
		shim:      shim,
		collector: collector,
		publisher: publisher,
		leases:    leases,
		traceLog:  traceLog,
		recorder:  recorder,
		srv:       srv,
	}
}

// Run starts the agent and blocks until a shutdown signal arrives
func (a *Agent) Run() error {
	a.logger.Info("agent.started", "Agent service started", map[string]interface{}{
		"pid":          os.Getpid(),
		"tick_rate":    a.tickRate.String(),
		"device_count": a.profile.DeviceCount,
		"tree_root":    a.publisher.Root(),
	})

	if err := a.start(); err != nil {
		return err
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Ticker for periodic tasks
	ticker := time.NewTicker(a.tickRate)
	defer ticker.Stop()

	// Main event loop
	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("agent.context_cancelled", "Agent context cancelled", nil)
			a.stop()
			return a.ctx.Err()

		case sig := <-sigChan:
			a.logger.Info("agent.signal_received", "Received signal", map[string]interface{}{
				"signal": sig.String(),
			})

			switch sig {
			case syscall.SIGHUP:
				a.refresh()
			case syscall.SIGTERM, syscall.SIGINT:
				a.logger.Info("agent.shutdown", "Initiating graceful shutdown", nil)
				return a.Shutdown()
			}

		case <-ticker.C:
			uptime := time.Since(a.startTime)
			a.logger.Debug("agent.heartbeat", "Agent heartbeat", map[string]interface{}{
				"uptime_seconds": uptime.Seconds(),
			})

			if err := a.heartbeat(); err != nil {
				a.logger.Error("agent.lease.lost", "Presence lease lost, shutting down", map[string]interface{}{
					"error": err.Error(),
				})
				return a.Shutdown()
			}
		}
	}
}

// start acquires the lease, wakes the shim and publishes the tree
func (a *Agent) start() error {
	held, err := a.leases.Acquire()
	if err != nil {
		return fmt.Errorf("failed to acquire presence lease: %w", err)
	}
	a.leaseToken = held.Token
	a.recorder.SetLeaseHeld(true)

	if ret := a.shim.InitV2(); ret != nvml.SUCCESS {
		a.releaseLease()
		return fmt.Errorf("failed to initialize management library: %s", fakenvml.ErrorString(ret))
	}
	a.recorder.SetDeviceCount(a.profile.DeviceCount)

	a.saveReport()

	if err := a.publishTree(); err != nil {
		a.shutdownShim()
		a.releaseLease()
		return err
	}

	if a.srv != nil {
		go func() {
			if err := a.srv.Run(); err != nil {
				a.logger.Error("agent.server.failed", "Inspection server failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
		a.logger.Info("agent.server.started", "Inspection server listening", map[string]interface{}{
			"addr": a.srv.Addr(),
		})
	}

	return nil
}

// heartbeat renews the lease and re-publishes the tree if it vanished.
// A renewal rejection means another process took over; the returned
// error tells the caller to stand down.
func (a *Agent) heartbeat() error {
	if _, err := a.leases.Renew(a.leaseToken); err != nil {
		if !errors.Is(err, lease.ErrNotHeld) {
			return err
		}
		a.logger.Warn("agent.lease.vanished", "Presence lease file disappeared, re-acquiring", nil)
		held, err := a.leases.Acquire()
		if err != nil {
			return err
		}
		a.leaseToken = held.Token
	}

	status, err := a.publisher.Status()
	if err != nil {
		a.logger.Warn("agent.tree.status_failed", "Failed to check device tree", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if !status.Published {
		a.logger.Warn("agent.tree.vanished", "Device tree disappeared, re-publishing", nil)
		if err := a.publishTree(); err != nil {
			a.logger.Error("agent.tree.republish_failed", "Failed to re-publish device tree", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return nil
}

// refresh re-snapshots the inventory and restores the tree on SIGHUP
func (a *Agent) refresh() {
	a.logger.Info("agent.refresh", "Refreshing published artifacts", nil)
	a.saveReport()
	if err := a.heartbeat(); err != nil {
		a.logger.Warn("agent.refresh.lease", "Lease could not be refreshed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// publishTree writes the device tree, replacing a left-over copy from
// a crashed predecessor if one is found.
func (a *Agent) publishTree() error {
	tree := BuildTree(a.profile)

	err := a.publisher.Publish(tree)
	if errors.Is(err, devtree.ErrAlreadyPublished) {
		a.logger.Warn("agent.tree.stale", "Replacing left-over device tree", map[string]interface{}{
			"root": a.publisher.Root(),
		})
		if err := a.publisher.Remove(); err != nil {
			return fmt.Errorf("failed to remove stale device tree: %w", err)
		}
		err = a.publisher.Publish(tree)
	}
	if err != nil {
		return fmt.Errorf("failed to publish device tree: %w", err)
	}

	a.recorder.SetTreePublished(true)
	return nil
}

// saveReport snapshots the inventory into the state directory
func (a *Agent) saveReport() {
	report := a.collector.Collect()
	path := filepath.Join(a.stateDir, inventory.ReportFileName)
	if err := a.collector.SaveReport(report, path); err != nil {
		a.logger.Warn("agent.report.save_failed", "Failed to save inventory report", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// stop tears down everything start set up, in reverse order
func (a *Agent) stop() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Warn("agent.server.shutdown_failed", "Inspection server shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		cancel()
	}

	if err := a.publisher.Remove(); err != nil && !errors.Is(err, devtree.ErrNotPublished) {
		a.logger.Warn("agent.tree.remove_failed", "Failed to remove device tree", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.recorder.SetTreePublished(false)

	a.shutdownShim()
	a.releaseLease()
}

func (a *Agent) shutdownShim() {
	if ret := a.shim.Shutdown(); ret != nvml.SUCCESS && ret != nvml.ERROR_UNINITIALIZED {
		a.logger.Warn("agent.shim.shutdown_failed", "Management library shutdown failed", map[string]interface{}{
			"error": fakenvml.ErrorString(ret),
		})
	}
	a.recorder.SetDeviceCount(0)
}

func (a *Agent) releaseLease() {
	if a.leaseToken == "" {
		return
	}
	if err := a.leases.Release(a.leaseToken); err != nil {
		a.logger.Warn("agent.lease.release_failed", "Failed to release presence lease", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.leaseToken = ""
	a.recorder.SetLeaseHeld(false)
}

// Shutdown performs graceful shutdown of the agent
func (a *Agent) Shutdown() error {
	a.logger.Info("agent.stopping", "Stopping agent service", nil)

	a.stop()
	a.cancel()

	uptime := time.Since(a.startTime)
	a.logger.Info("agent.stopped", "Agent service stopped", map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),
	})

	return nil
}

// HealthCheck performs a health check of the agent
func (a *Agent) HealthCheck() error {
	// Check if context is still valid
	select {
	case <-a.ctx.Done():
		return fmt.Errorf("agent context is cancelled")
	default:
		return nil
	}
}

// BuildProfile maps the configured hardware profile onto the shim
// defaults. Zero values keep the default so a partial config stays
// usable.
func BuildProfile(cfg config.ProfileConfig) fakenvml.Profile {
	profile := fakenvml.DefaultProfile()
	if cfg.DeviceCount > 0 {
		profile.DeviceCount = cfg.DeviceCount
	}
	if cfg.DeviceName != "" {
		profile.DeviceName = cfg.DeviceName
	}
	if cfg.DriverVersion != "" {
		profile.DriverVersion = cfg.DriverVersion
	}
	if cfg.CudaDriverVersion > 0 {
		profile.CudaDriverVersion = cfg.CudaDriverVersion
	}
	if cfg.MemoryMiB > 0 {
		profile.MemoryBytes = uint64(cfg.MemoryMiB) * 1024 * 1024
	}
	if cfg.UUIDSeed != "" {
		profile.UUIDSeed = cfg.UUIDSeed
	}
	return profile
}

// BuildTree derives the publishable device tree from a profile
func BuildTree(profile fakenvml.Profile) devtree.Tree {
	devices := make([]devtree.Device, 0, profile.DeviceCount)
	for i := 0; i < profile.DeviceCount; i++ {
		devices = append(devices, devtree.Device{
			BusID: profile.LegacyBusID(i),
			Model: profile.DeviceName,
			UUID:  profile.DeviceUUID(i),
			Minor: i,
		})
	}
	return devtree.Tree{
		DriverVersion: profile.DriverVersion,
		Devices:       devices,
	}
}
