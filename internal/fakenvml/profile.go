package fakenvml

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Profile describes the single hardware profile a Shim emulates. All
// devices in a registry share the same profile; only index-derived
// attributes (UUID, bus slot, minor number) differ between records.
type Profile struct {
	DeviceCount       int
	DeviceName        string
	DriverVersion     string
	CudaDriverVersion int
	ComputeMajor      int
	ComputeMinor      int
	Brand             nvml.BrandType
	PCIDeviceID       uint32
	PCISubSystemID    uint32
	MemoryBytes       uint64
	UUIDSeed          string
}

// DefaultProfile returns four Tesla T4 cards behind driver 535.104.05.
func DefaultProfile() Profile {
	return Profile{
		DeviceCount:       4,
		DeviceName:        "NVIDIA Tesla T4",
		DriverVersion:     "535.104.05",
		CudaDriverVersion: 12020,
		ComputeMajor:      7,
		ComputeMinor:      5,
		Brand:             nvml.BRAND_TESLA,
		PCIDeviceID:       0x1EB8,
		PCISubSystemID:    0x12A210DE,
		MemoryBytes:       16 * 1024 * 1024 * 1024,
		UUIDSeed:          "fakegpu",
	}
}

// DeviceUUID derives the identifier for the device at index. Real
// hardware reports "GPU-" plus an RFC 4122 string, so the seed and index
// are hashed into one: unique per slot, identical across runs.
func (p Profile) DeviceUUID(index int) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("%s/%s/%d", p.UUIDSeed, p.DeviceName, index)))
	id, _ := uuid.FromBytes(sum[:16])
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return "GPU-" + id.String()
}

// BusID returns the full 32-byte bus id form, e.g. "00000000:01:00.0".
// Each device occupies its own bus slot; domain and device stay zero.
func (p Profile) BusID(index int) string {
	return fmt.Sprintf("%08X:%02X:%02X.0", 0, p.busNumber(index), 0)
}

// LegacyBusID returns the 16-byte form, e.g. "0000:01:00.0". The device
// tree publisher uses it for per-device directory names.
func (p Profile) LegacyBusID(index int) string {
	return fmt.Sprintf("%04X:%02X:%02X.0", 0, p.busNumber(index), 0)
}

func (p Profile) busNumber(index int) uint32 {
	return uint32(index + 1)
}

// PCIInfo builds the PCI record for the device at index with both bus id
// forms populated.
func (p Profile) PCIInfo(index int) nvml.PciInfo {
	var info nvml.PciInfo
	setCString(info.BusId[:], p.BusID(index))
	setCString(info.BusIdLegacy[:], p.LegacyBusID(index))
	info.Domain = 0
	info.Bus = p.busNumber(index)
	info.Device = 0
	info.PciDeviceId = p.PCIDeviceID
	info.PciSubSystemId = p.PCISubSystemID
	return info
}

// Memory returns the fixed memory record: everything free, nothing used.
func (p Profile) Memory() nvml.Memory {
	return nvml.Memory{
		Total: p.MemoryBytes,
		Free:  p.MemoryBytes,
		Used:  0,
	}
}

// NVMLVersion reports the library version string in the
// "<cuda major>.<driver version>" shape the real library uses.
func (p Profile) NVMLVersion() string {
	return fmt.Sprintf("%d.%s", p.CudaDriverVersion/1000, p.DriverVersion)
}

// setCString copies src into a char-array field, truncating to keep the
// terminating NUL inside the destination.
func setCString(dst []uint8, src string) {
	n := len(src)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	for i := 0; i < n; i++ {
		dst[i] = src[i]
	}
	dst[n] = 0
}
