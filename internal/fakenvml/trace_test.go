package fakenvml

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type traceRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *traceRecorder) Trace(op, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, op+":"+msg)
}

func (r *traceRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestShim_TraceEnterExitPairs(t *testing.T) {
	rec := &traceRecorder{}
	s := New(WithTracer(rec))

	s.InitV2()
	s.DeviceGetCountV2()
	s.Shutdown()

	want := []string{
		"InitV2:enter", "InitV2:exit",
		"DeviceGetCountV2:enter", "DeviceGetCountV2:exit",
		"Shutdown:enter", "Shutdown:exit",
	}

	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("Expected %d trace lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected trace line %d to be %q, got: %q", i, want[i], got[i])
		}
	}
}

func TestShim_TraceFailedCallsEnterOnly(t *testing.T) {
	rec := &traceRecorder{}
	s := New(WithTracer(rec))

	// Before init the call fails, so only the entry is recorded.
	s.DeviceGetCountV2()

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "DeviceGetCountV2:enter" {
		t.Fatalf("Expected a lone enter line, got: %v", got)
	}
}

func TestShim_TraceNeverAffectsResults(t *testing.T) {
	rec := &traceRecorder{}
	traced := New(WithTracer(rec))
	silent := New(WithTracer(TracerFunc(func(op, msg string) {})))

	if a, b := traced.InitV2(), silent.InitV2(); a != b {
		t.Errorf("Expected identical init results, got %s and %s", ErrorString(a), ErrorString(b))
	}

	ca, ra := traced.DeviceGetCountV2()
	cb, rb := silent.DeviceGetCountV2()
	if ca != cb || ra != rb {
		t.Errorf("Expected identical counts, got %d (%s) and %d (%s)", ca, ErrorString(ra), cb, ErrorString(rb))
	}
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestEnvTracer_DisabledByDefault(t *testing.T) {
	// Register a cleanup for the variable, then clear it for the test.
	t.Setenv(TraceEnv, "placeholder")
	os.Unsetenv(TraceEnv)

	out := captureStderr(t, func() {
		EnvTracer{}.Trace("InitV2", "enter")
	})

	if strings.TrimSpace(out) != "" {
		t.Errorf("Expected no output with the variable unset, got: %q", out)
	}
}

func TestEnvTracer_EnabledFormat(t *testing.T) {
	t.Setenv(TraceEnv, "1")

	out := captureStderr(t, func() {
		EnvTracer{}.Trace("DeviceGetName", "exit")
	})

	if !strings.HasPrefix(out, "[FAKE-GPU ") {
		t.Errorf("Expected [FAKE-GPU prefix, got: %q", out)
	}
	if !strings.Contains(out, " DeviceGetName] exit") {
		t.Errorf("Expected operation and message in line, got: %q", out)
	}
	if !strings.Contains(out, fmt.Sprintf(" %d ", os.Getpid())) {
		t.Errorf("Expected pid in line, got: %q", out)
	}
}

func TestEnvTracer_SetButEmptyEnables(t *testing.T) {
	t.Setenv(TraceEnv, "")

	out := captureStderr(t, func() {
		EnvTracer{}.Trace("Shutdown", "enter")
	})

	if !strings.Contains(out, "Shutdown] enter") {
		t.Errorf("Expected output with the variable set but empty, got: %q", out)
	}
}

func TestEnvTracer_ToggleMidSequence(t *testing.T) {
	t.Setenv(TraceEnv, "placeholder")
	os.Unsetenv(TraceEnv)

	tracer := EnvTracer{}

	out := captureStderr(t, func() {
		tracer.Trace("InitV2", "enter")
		os.Setenv(TraceEnv, "1")
		tracer.Trace("DeviceGetCountV2", "enter")
		os.Unsetenv(TraceEnv)
		tracer.Trace("Shutdown", "enter")
	})

	// Only the middle call lands inside the enabled window.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected exactly one trace line, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "DeviceGetCountV2") {
		t.Errorf("Expected the enabled-window call in output, got: %q", lines[0])
	}
}

func TestTracers_FanOut(t *testing.T) {
	a := &traceRecorder{}
	b := &traceRecorder{}

	s := New(WithTracer(Tracers(a, nil, b)))
	if ret := s.InitV2(); ret != nvml.SUCCESS {
		t.Fatalf("Expected init to succeed, got: %s", ErrorString(ret))
	}

	if len(a.snapshot()) != 2 || len(b.snapshot()) != 2 {
		t.Errorf("Expected both tracers to see enter and exit, got %d and %d lines",
			len(a.snapshot()), len(b.snapshot()))
	}
}
