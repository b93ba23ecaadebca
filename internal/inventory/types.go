package inventory

import (
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// DeviceInfo represents one fabricated GPU in a report
type DeviceInfo struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	UUID              string `json:"uuid"`
	BusID             string `json:"bus_id"`
	Minor             int    `json:"minor"`
	MemoryMiB         uint64 `json:"memory_mib"`
	ComputeCapability string `json:"compute_capability"`
	Brand             string `json:"brand"`
}

// Report represents the complete inventory of the emulated hardware.
// Persisted as gpu_report.json in the state directory.
type Report struct {
	CollectedTS   time.Time    `json:"collected_ts"`
	DriverVersion string       `json:"driver_version"`
	NVMLVersion   string       `json:"nvml_version"`
	CUDAVersion   int          `json:"cuda_version"`
	LibraryOk     bool         `json:"library_ok"`
	Devices       []DeviceInfo `json:"devices"`
	ErrorMessage  string       `json:"error_message,omitempty"`
}

// brandName maps the brand enumeration onto display labels.
func brandName(brand nvml.BrandType) string {
	switch brand {
	case nvml.BRAND_TESLA:
		return "Tesla"
	case nvml.BRAND_QUADRO:
		return "Quadro"
	case nvml.BRAND_GEFORCE:
		return "GeForce"
	case nvml.BRAND_TITAN:
		return "Titan"
	case nvml.BRAND_GRID:
		return "Grid"
	default:
		return "Unknown"
	}
}
