package fakenvml

import (
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Device is an opaque handle to one fabricated GPU. A handle is valid
// only between the InitV2 that issued it and the next Shutdown; the
// generation stamp lets the shim reject handles from earlier sessions.
// The zero value is never valid.
type Device struct {
	index int
	gen   uint64
}

type deviceRecord struct {
	index int
	name  string
	uuid  string
	pci   nvml.PciInfo
	minor int
}

// Shim fabricates the NVIDIA management library surface. Each instance
// owns an independent initialization flag and device registry, so tests
// can run several side by side. All methods are safe for concurrent use.
//
// The zero value is not usable; construct instances with New.
type Shim struct {
	mu      sync.RWMutex
	profile Profile
	tracer  Tracer
	ready   bool
	gen     uint64
	devices []deviceRecord
}

// Option configures a Shim.
type Option func(*Shim)

// WithProfile replaces the default hardware profile.
func WithProfile(p Profile) Option {
	return func(s *Shim) { s.profile = p }
}

// WithTracer replaces the default environment-gated stderr tracer.
func WithTracer(t Tracer) Option {
	return func(s *Shim) { s.tracer = t }
}

// New constructs a Shim in the uninitialized state.
func New(opts ...Option) *Shim {
	s := &Shim{
		profile: DefaultProfile(),
		tracer:  EnvTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = EnvTracer{}
	}
	return s
}

// Profile returns the hardware profile the shim was built with.
func (s *Shim) Profile() Profile {
	return s.profile
}

func (s *Shim) trace(op, msg string) {
	s.tracer.Trace(op, msg)
}

// InitV2 populates the device registry deterministically from the profile
// and marks the shim initialized.
func (s *Shim) InitV2() nvml.Return {
	s.trace("InitV2", "enter")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nvml.ERROR_ALREADY_INITIALIZED
	}
	s.gen++
	s.devices = make([]deviceRecord, 0, s.profile.DeviceCount)
	for i := 0; i < s.profile.DeviceCount; i++ {
		s.devices = append(s.devices, deviceRecord{
			index: i,
			name:  s.profile.DeviceName,
			uuid:  s.profile.DeviceUUID(i),
			pci:   s.profile.PCIInfo(i),
			minor: i,
		})
	}
	s.ready = true
	s.trace("InitV2", "exit")
	return nvml.SUCCESS
}

// Init is the unversioned entry point; clients built against older
// headers resolve this name.
func (s *Shim) Init() nvml.Return {
	return s.InitV2()
}

// InitWithFlags accepts the flag-taking entry point of the real surface.
// No flag changes fabricated enumeration, so it delegates to InitV2.
func (s *Shim) InitWithFlags(flags uint32) nvml.Return {
	_ = flags
	return s.InitV2()
}

// Shutdown clears the initialization flag and invalidates every handle
// issued since the last InitV2.
func (s *Shim) Shutdown() nvml.Return {
	s.trace("Shutdown", "enter")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nvml.ERROR_UNINITIALIZED
	}
	s.ready = false
	s.devices = nil
	s.trace("Shutdown", "exit")
	return nvml.SUCCESS
}

// SystemGetDriverVersion copies the driver version string into buf.
func (s *Shim) SystemGetDriverVersion(buf []byte) nvml.Return {
	s.trace("SystemGetDriverVersion", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nvml.ERROR_UNINITIALIZED
	}
	if ret := fillBuffer(buf, s.profile.DriverVersion); ret != nvml.SUCCESS {
		return ret
	}
	s.trace("SystemGetDriverVersion", "exit")
	return nvml.SUCCESS
}

// SystemGetNVMLVersion copies the library version string into buf.
func (s *Shim) SystemGetNVMLVersion(buf []byte) nvml.Return {
	s.trace("SystemGetNVMLVersion", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nvml.ERROR_UNINITIALIZED
	}
	if ret := fillBuffer(buf, s.profile.NVMLVersion()); ret != nvml.SUCCESS {
		return ret
	}
	s.trace("SystemGetNVMLVersion", "exit")
	return nvml.SUCCESS
}

// SystemGetCudaDriverVersion returns the fixed encoded CUDA version,
// e.g. 12020 for 12.2.
func (s *Shim) SystemGetCudaDriverVersion() (int, nvml.Return) {
	s.trace("SystemGetCudaDriverVersion", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0, nvml.ERROR_UNINITIALIZED
	}
	v := s.profile.CudaDriverVersion
	s.trace("SystemGetCudaDriverVersion", "exit")
	return v, nvml.SUCCESS
}

// DeviceGetCountV2 returns the registry size. The count never changes
// between InitV2 and Shutdown.
func (s *Shim) DeviceGetCountV2() (int, nvml.Return) {
	s.trace("DeviceGetCountV2", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0, nvml.ERROR_UNINITIALIZED
	}
	n := len(s.devices)
	s.trace("DeviceGetCountV2", "exit")
	return n, nvml.SUCCESS
}

// DeviceGetCount is the unversioned alias for DeviceGetCountV2.
func (s *Shim) DeviceGetCount() (int, nvml.Return) {
	return s.DeviceGetCountV2()
}

// DeviceGetHandleByIndexV2 issues a handle for the device at index.
func (s *Shim) DeviceGetHandleByIndexV2(index int) (Device, nvml.Return) {
	s.trace("DeviceGetHandleByIndexV2", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return Device{}, nvml.ERROR_UNINITIALIZED
	}
	if index < 0 || index >= len(s.devices) {
		return Device{}, nvml.ERROR_INVALID_ARGUMENT
	}
	s.trace("DeviceGetHandleByIndexV2", "exit")
	return Device{index: index, gen: s.gen}, nvml.SUCCESS
}

// DeviceGetHandleByIndex is the unversioned alias for
// DeviceGetHandleByIndexV2.
func (s *Shim) DeviceGetHandleByIndex(index int) (Device, nvml.Return) {
	return s.DeviceGetHandleByIndexV2(index)
}

// DeviceGetName copies the device display name into buf.
func (s *Shim) DeviceGetName(dev Device, buf []byte) nvml.Return {
	s.trace("DeviceGetName", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ret := s.lookup(dev)
	if ret != nvml.SUCCESS {
		return ret
	}
	if ret := fillBuffer(buf, rec.name); ret != nvml.SUCCESS {
		return ret
	}
	s.trace("DeviceGetName", "exit")
	return nvml.SUCCESS
}

// DeviceGetUUID copies the per-device identifier into buf.
func (s *Shim) DeviceGetUUID(dev Device, buf []byte) nvml.Return {
	s.trace("DeviceGetUUID", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ret := s.lookup(dev)
	if ret != nvml.SUCCESS {
		return ret
	}
	if ret := fillBuffer(buf, rec.uuid); ret != nvml.SUCCESS {
		return ret
	}
	s.trace("DeviceGetUUID", "exit")
	return nvml.SUCCESS
}

// DeviceGetPciInfo returns the device's PCI record by value.
func (s *Shim) DeviceGetPciInfo(dev Device) (nvml.PciInfo, nvml.Return) {
	s.trace("DeviceGetPciInfo", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ret := s.lookup(dev)
	if ret != nvml.SUCCESS {
		return nvml.PciInfo{}, ret
	}
	s.trace("DeviceGetPciInfo", "exit")
	return rec.pci, nvml.SUCCESS
}

// DeviceGetMemoryInfo returns the fixed memory record for the device.
func (s *Shim) DeviceGetMemoryInfo(dev Device) (nvml.Memory, nvml.Return) {
	s.trace("DeviceGetMemoryInfo", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ret := s.lookup(dev); ret != nvml.SUCCESS {
		return nvml.Memory{}, ret
	}
	mem := s.profile.Memory()
	s.trace("DeviceGetMemoryInfo", "exit")
	return mem, nvml.SUCCESS
}

// DeviceGetCudaComputeCapability writes the fixed capability pair. Both
// pointers are checked before either is written.
func (s *Shim) DeviceGetCudaComputeCapability(dev Device, major, minor *int) nvml.Return {
	s.trace("DeviceGetCudaComputeCapability", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ret := s.lookup(dev); ret != nvml.SUCCESS {
		return ret
	}
	if major == nil || minor == nil {
		return nvml.ERROR_INVALID_ARGUMENT
	}
	*major = s.profile.ComputeMajor
	*minor = s.profile.ComputeMinor
	s.trace("DeviceGetCudaComputeCapability", "exit")
	return nvml.SUCCESS
}

// DeviceGetBrand returns the fixed brand enumeration value.
func (s *Shim) DeviceGetBrand(dev Device) (nvml.BrandType, nvml.Return) {
	s.trace("DeviceGetBrand", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ret := s.lookup(dev); ret != nvml.SUCCESS {
		return nvml.BRAND_UNKNOWN, ret
	}
	brand := s.profile.Brand
	s.trace("DeviceGetBrand", "exit")
	return brand, nvml.SUCCESS
}

// DeviceGetMinorNumber returns the device's index as its minor number,
// matching the node numbering a real driver would expose.
func (s *Shim) DeviceGetMinorNumber(dev Device) (int, nvml.Return) {
	s.trace("DeviceGetMinorNumber", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ret := s.lookup(dev)
	if ret != nvml.SUCCESS {
		return 0, ret
	}
	s.trace("DeviceGetMinorNumber", "exit")
	return rec.minor, nvml.SUCCESS
}

// DeviceGetMigCapability writes 0/0: the emulated generation predates MIG.
// Both pointers are checked before either is written.
func (s *Shim) DeviceGetMigCapability(dev Device, isMigCapable, isMigGpu *uint32) nvml.Return {
	s.trace("DeviceGetMigCapability", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ret := s.lookup(dev); ret != nvml.SUCCESS {
		return ret
	}
	if isMigCapable == nil || isMigGpu == nil {
		return nvml.ERROR_INVALID_ARGUMENT
	}
	*isMigCapable = 0
	*isMigGpu = 0
	s.trace("DeviceGetMigCapability", "exit")
	return nvml.SUCCESS
}

// DeviceGetMigMode writes "disabled" for both the current and pending
// mode. Both pointers are checked before either is written.
func (s *Shim) DeviceGetMigMode(dev Device, currentMode, pendingMode *uint32) nvml.Return {
	s.trace("DeviceGetMigMode", "enter")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ret := s.lookup(dev); ret != nvml.SUCCESS {
		return ret
	}
	if currentMode == nil || pendingMode == nil {
		return nvml.ERROR_INVALID_ARGUMENT
	}
	*currentMode = uint32(nvml.FEATURE_DISABLED)
	*pendingMode = uint32(nvml.FEATURE_DISABLED)
	s.trace("DeviceGetMigMode", "exit")
	return nvml.SUCCESS
}

// lookup resolves a handle against the current session. The init flag is
// checked first so shut-down shims answer uniformly no matter the
// arguments. Callers hold s.mu.
func (s *Shim) lookup(dev Device) (*deviceRecord, nvml.Return) {
	if !s.ready {
		return nil, nvml.ERROR_UNINITIALIZED
	}
	if dev.gen != s.gen || dev.index < 0 || dev.index >= len(s.devices) {
		return nil, nvml.ERROR_INVALID_ARGUMENT
	}
	return &s.devices[dev.index], nvml.SUCCESS
}

// fillBuffer implements the copy convention shared by every string
// operation: at most len(buf)-1 payload bytes plus a terminating NUL,
// nothing written past the terminator. Truncation is not an error.
func fillBuffer(buf []byte, src string) nvml.Return {
	if buf == nil {
		return nvml.ERROR_INVALID_ARGUMENT
	}
	if len(buf) == 0 {
		return nvml.ERROR_INSUFFICIENT_SIZE
	}
	n := copy(buf[:len(buf)-1], src)
	buf[n] = 0
	return nvml.SUCCESS
}
