package logger

import (
	"fmt"
	"sync"
)

// Entry is one captured log line.
type Entry struct {
	Level   string
	Msg     string
	KeyVals []any
}

// Get returns the value logged under key, or nil.
func (e Entry) Get(key string) any {
	for i := 0; i < len(e.KeyVals)-1; i += 2 {
		if fmt.Sprint(e.KeyVals[i]) == key {
			return e.KeyVals[i+1]
		}
	}
	return nil
}

// Recorder keeps every entry in memory. Tests use it to assert on warnings.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Debug(msg string, keyvals ...any) { r.add("debug", msg, keyvals) }
func (r *Recorder) Info(msg string, keyvals ...any)  { r.add("info", msg, keyvals) }
func (r *Recorder) Warn(msg string, keyvals ...any)  { r.add("warn", msg, keyvals) }
func (r *Recorder) Error(msg string, keyvals ...any) { r.add("error", msg, keyvals) }

func (r *Recorder) add(level, msg string, keyvals []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, KeyVals: append([]any(nil), keyvals...)})
}

// Entries returns a copy of the captured entries, optionally filtered by level.
func (r *Recorder) Entries(level string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
