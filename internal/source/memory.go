// Package source provides record source implementations for hosts
// that do not bring their own experiment runner.
package source

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an accumulating, thread-safe record source. Trials are
// appended as they complete; Records returns a snapshot.
type Memory struct {
	mu      sync.Mutex
	records []any
	start   time.Time
}

// NewMemory creates an empty source; elapsed time counts from now.
func NewMemory() *Memory {
	return &Memory{
		records: make([]any, 0),
		start:   time.Now(),
	}
}

// Append records completed trials.
func (m *Memory) Append(trials ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, trials...)
}

// Records returns a snapshot of the accumulated trials.
func (m *Memory) Records() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of accumulated trials.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// RandomID returns an alphanumeric identifier of length n.
func (m *Memory) RandomID(n int) string {
	return randomID(n)
}

// ElapsedTime reports the time since the source was created.
func (m *Memory) ElapsedTime() time.Duration {
	return time.Since(m.start)
}

func randomID(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return b.String()[:n]
}
