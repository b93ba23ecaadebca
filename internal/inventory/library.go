package inventory

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"fakegpu/internal/fakenvml"
)

// ManagementLibrary is the slice of the management API the collector
// consumes. Narrow on purpose so tests can swap in failure-injecting
// implementations.
type ManagementLibrary interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (DeviceHandle, nvml.Return)
	SystemGetDriverVersion() (string, nvml.Return)
	SystemGetNVMLVersion() (string, nvml.Return)
	SystemGetCudaDriverVersion() (int, nvml.Return)
}

// DeviceHandle is the per-device slice of the management API.
type DeviceHandle interface {
	Name() (string, nvml.Return)
	UUID() (string, nvml.Return)
	MemoryInfo() (nvml.Memory, nvml.Return)
	PciInfo() (nvml.PciInfo, nvml.Return)
	MinorNumber() (int, nvml.Return)
	ComputeCapability() (major int, minor int, ret nvml.Return)
	Brand() (nvml.BrandType, nvml.Return)
}

// shimLibrary adapts a Shim to ManagementLibrary, translating the
// C-flavored buffer calls into plain strings.
type shimLibrary struct {
	shim *fakenvml.Shim
}

// NewShimLibrary wraps shim for consumption by the collector.
func NewShimLibrary(shim *fakenvml.Shim) ManagementLibrary {
	return &shimLibrary{shim: shim}
}

func (s *shimLibrary) Init() nvml.Return {
	return s.shim.InitV2()
}

func (s *shimLibrary) Shutdown() nvml.Return {
	return s.shim.Shutdown()
}

func (s *shimLibrary) DeviceGetCount() (int, nvml.Return) {
	return s.shim.DeviceGetCountV2()
}

func (s *shimLibrary) DeviceGetHandleByIndex(index int) (DeviceHandle, nvml.Return) {
	dev, ret := s.shim.DeviceGetHandleByIndexV2(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return shimDevice{shim: s.shim, dev: dev}, nvml.SUCCESS
}

func (s *shimLibrary) SystemGetDriverVersion() (string, nvml.Return) {
	buf := make([]byte, nvml.SYSTEM_DRIVER_VERSION_BUFFER_SIZE)
	if ret := s.shim.SystemGetDriverVersion(buf); ret != nvml.SUCCESS {
		return "", ret
	}
	return cstring(buf), nvml.SUCCESS
}

func (s *shimLibrary) SystemGetNVMLVersion() (string, nvml.Return) {
	buf := make([]byte, nvml.SYSTEM_NVML_VERSION_BUFFER_SIZE)
	if ret := s.shim.SystemGetNVMLVersion(buf); ret != nvml.SUCCESS {
		return "", ret
	}
	return cstring(buf), nvml.SUCCESS
}

func (s *shimLibrary) SystemGetCudaDriverVersion() (int, nvml.Return) {
	return s.shim.SystemGetCudaDriverVersion()
}

type shimDevice struct {
	shim *fakenvml.Shim
	dev  fakenvml.Device
}

func (d shimDevice) Name() (string, nvml.Return) {
	buf := make([]byte, nvml.DEVICE_NAME_BUFFER_SIZE)
	if ret := d.shim.DeviceGetName(d.dev, buf); ret != nvml.SUCCESS {
		return "", ret
	}
	return cstring(buf), nvml.SUCCESS
}

func (d shimDevice) UUID() (string, nvml.Return) {
	buf := make([]byte, nvml.DEVICE_UUID_BUFFER_SIZE)
	if ret := d.shim.DeviceGetUUID(d.dev, buf); ret != nvml.SUCCESS {
		return "", ret
	}
	return cstring(buf), nvml.SUCCESS
}

func (d shimDevice) MemoryInfo() (nvml.Memory, nvml.Return) {
	return d.shim.DeviceGetMemoryInfo(d.dev)
}

func (d shimDevice) PciInfo() (nvml.PciInfo, nvml.Return) {
	return d.shim.DeviceGetPciInfo(d.dev)
}

func (d shimDevice) MinorNumber() (int, nvml.Return) {
	return d.shim.DeviceGetMinorNumber(d.dev)
}

func (d shimDevice) ComputeCapability() (int, int, nvml.Return) {
	var major, minor int
	if ret := d.shim.DeviceGetCudaComputeCapability(d.dev, &major, &minor); ret != nvml.SUCCESS {
		return 0, 0, ret
	}
	return major, minor, nvml.SUCCESS
}

func (d shimDevice) Brand() (nvml.BrandType, nvml.Return) {
	return d.shim.DeviceGetBrand(d.dev)
}

// cstring decodes a NUL-terminated buffer.
func cstring(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// cstringI8 decodes a NUL-terminated char-array field.
func cstringI8(xs []uint8) string {
	out := make([]byte, 0, len(xs))
	for _, x := range xs {
		if x == 0 {
			break
		}
		out = append(out, byte(x))
	}
	return string(out)
}
