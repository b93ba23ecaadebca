package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"fakegpu/internal/logging"
)

// TraceFileName is the shim call log in the state directory.
const TraceFileName = "shim_trace.jsonl"

// TraceRecord is one shim call event in JSONL form
type TraceRecord struct {
	Timestamp time.Time `json:"ts"`
	PID       int       `json:"pid"`
	Op        string    `json:"op"`
	Msg       string    `json:"msg"`
}

// TraceLog appends shim call events to a JSONL file. It satisfies the
// shim's tracer contract; write failures are logged and swallowed so
// tracing can never change an operation's outcome.
type TraceLog struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

// NewTraceLog creates a trace log writing to path.
func NewTraceLog(path string, logger *logging.Logger) *TraceLog {
	return &TraceLog{
		path:   path,
		logger: logger,
	}
}

// Path returns the log file location.
func (t *TraceLog) Path() string {
	return t.path
}

// Trace appends one record.
func (t *TraceLog) Trace(op, msg string) {
	rec := TraceRecord{
		Timestamp: time.Now().UTC(),
		PID:       os.Getpid(),
		Op:        op,
		Msg:       msg,
	}

	if err := t.write(rec); err != nil {
		t.logger.Warn("trace.write_failed", "Failed to append trace record", map[string]interface{}{
			"error": err.Error(),
			"path":  t.path,
		})
	}
}

func (t *TraceLog) write(rec TraceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trace log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write trace record: %w", err)
	}

	return nil
}

// Tail returns the last n records, oldest first. A missing file yields
// an empty slice.
func (t *TraceLog) Tail(n int) ([]TraceRecord, error) {
	if n <= 0 {
		return []TraceRecord{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []TraceRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	defer file.Close()

	records := make([]TraceRecord, 0, n)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec TraceRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Skip torn or corrupt lines rather than failing the read.
			continue
		}
		if len(records) == n {
			records = append(records[1:], rec)
		} else {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace log: %w", err)
	}

	return records, nil
}
