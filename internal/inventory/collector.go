package inventory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"fakegpu/internal/fakenvml"
	"fakegpu/internal/fsutil"
	"fakegpu/internal/logging"
)

// ReportFileName is the inventory report file in the state directory.
const ReportFileName = "gpu_report.json"

// Collector walks the management library and assembles a Report.
type Collector struct {
	lib    ManagementLibrary
	logger *logging.Logger
}

// NewCollector creates a collector over the given shim.
func NewCollector(shim *fakenvml.Shim, logger *logging.Logger) *Collector {
	return &Collector{
		lib:    NewShimLibrary(shim),
		logger: logger,
	}
}

// NewCollectorWithLibrary creates a collector with a custom library (for testing)
func NewCollectorWithLibrary(lib ManagementLibrary, logger *logging.Logger) *Collector {
	return &Collector{
		lib:    lib,
		logger: logger,
	}
}

// Collect initializes the library if needed, reads every device, and
// returns the assembled report. A library someone else already
// initialized is left initialized on return.
func (c *Collector) Collect() Report {
	c.logger.Info("inventory.collect.start", "Starting inventory collection", nil)

	report := Report{
		CollectedTS: time.Now().UTC(),
		Devices:     make([]DeviceInfo, 0),
	}

	ret := c.lib.Init()
	ownsInit := ret == nvml.SUCCESS
	if ret != nvml.SUCCESS && ret != nvml.ERROR_ALREADY_INITIALIZED {
		report.LibraryOk = false
		report.ErrorMessage = fmt.Sprintf("Failed to initialize management library: %v", fakenvml.ErrorString(ret))
		c.logger.Warn("inventory.init.failed", "Management library initialization failed", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}
	if ownsInit {
		defer c.lib.Shutdown()
	}

	report.LibraryOk = true

	driverVersion, ret := c.lib.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		c.logger.Warn("inventory.driver_version.failed", "Failed to get driver version", map[string]interface{}{
			"error": fakenvml.ErrorString(ret),
		})
	} else {
		report.DriverVersion = driverVersion
	}

	nvmlVersion, ret := c.lib.SystemGetNVMLVersion()
	if ret != nvml.SUCCESS {
		c.logger.Warn("inventory.nvml_version.failed", "Failed to get library version", map[string]interface{}{
			"error": fakenvml.ErrorString(ret),
		})
	} else {
		report.NVMLVersion = nvmlVersion
	}

	cudaVersion, ret := c.lib.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		c.logger.Warn("inventory.cuda_version.failed", "Failed to get CUDA version", map[string]interface{}{
			"error": fakenvml.ErrorString(ret),
		})
	} else {
		report.CUDAVersion = cudaVersion
	}

	count, ret := c.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to get device count: %v", fakenvml.ErrorString(ret))
		c.logger.Error("inventory.device_count.failed", "Failed to get device count", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}

	c.logger.Info("inventory.device_count", "Found devices", map[string]interface{}{
		"count": count,
	})

	for i := 0; i < count; i++ {
		device, ret := c.lib.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			c.logger.Warn("inventory.device_handle.failed", "Failed to get device handle", map[string]interface{}{
				"index": i,
				"error": fakenvml.ErrorString(ret),
			})
			continue
		}

		info := c.describe(i, device)
		report.Devices = append(report.Devices, info)

		c.logger.Info("inventory.device", "Device inventoried", map[string]interface{}{
			"index":      i,
			"name":       info.Name,
			"uuid":       info.UUID,
			"bus_id":     info.BusID,
			"memory_mib": info.MemoryMiB,
		})
	}

	return report
}

func (c *Collector) describe(index int, device DeviceHandle) DeviceInfo {
	info := DeviceInfo{Index: index}

	if name, ret := device.Name(); ret == nvml.SUCCESS {
		info.Name = name
	}

	if uuid, ret := device.UUID(); ret == nvml.SUCCESS {
		info.UUID = uuid
	}

	if pci, ret := device.PciInfo(); ret == nvml.SUCCESS {
		info.BusID = cstringI8(pci.BusIdLegacy[:])
	}

	if minor, ret := device.MinorNumber(); ret == nvml.SUCCESS {
		info.Minor = minor
	}

	if mem, ret := device.MemoryInfo(); ret == nvml.SUCCESS {
		info.MemoryMiB = mem.Total / (1024 * 1024)
	}

	if major, minor, ret := device.ComputeCapability(); ret == nvml.SUCCESS {
		info.ComputeCapability = fmt.Sprintf("%d.%d", major, minor)
	}

	if brand, ret := device.Brand(); ret == nvml.SUCCESS {
		info.Brand = brandName(brand)
	}

	return info
}

// SaveReport writes the report as JSON to the given path.
func (c *Collector) SaveReport(report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, 0o600, c.logger); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	c.logger.Info("inventory.report.saved", "Inventory report saved", map[string]interface{}{
		"filepath": path,
	})

	return nil
}
