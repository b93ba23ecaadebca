package fakenvml

import (
	"fmt"
	"os"
	"time"
)

// TraceEnv gates the stderr tracer. The variable is looked up on every
// call, so flipping it mid-process takes effect immediately; being set at
// all (even empty) enables output.
const TraceEnv = "FAKE_NVML_LOG"

// Tracer observes shim operations. The shim reports "enter" for every
// call and "exit" before each successful return. Implementations must not
// influence operation results.
type Tracer interface {
	Trace(op, msg string)
}

// TracerFunc adapts a plain function to the Tracer interface.
type TracerFunc func(op, msg string)

// Trace calls f.
func (f TracerFunc) Trace(op, msg string) { f(op, msg) }

// EnvTracer writes timestamped trace lines to stderr while TraceEnv is
// set. It is the default tracer of every Shim.
type EnvTracer struct{}

// Trace emits one line in the form "[FAKE-GPU <ts> <pid> <op>] <msg>".
func (EnvTracer) Trace(op, msg string) {
	if _, ok := os.LookupEnv(TraceEnv); !ok {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(os.Stderr, "[FAKE-GPU %s %d %s] %s\n", ts, os.Getpid(), op, msg)
}

// Tracers combines several tracers into one that fans out in order.
func Tracers(tracers ...Tracer) Tracer {
	return multiTracer(tracers)
}

type multiTracer []Tracer

func (m multiTracer) Trace(op, msg string) {
	for _, t := range m {
		if t != nil {
			t.Trace(op, msg)
		}
	}
}
