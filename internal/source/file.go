package source

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// File is a record source backed by a JSON file holding an array of
// trial records (or a single record object). Used by the relay CLI.
type File struct {
	records []any
	loaded  time.Time
}

// LoadFile reads and decodes the records file at path.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	var records []any
	if err := json.Unmarshal(raw, &records); err != nil {
		// fall back to a single-record file
		var one any
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("failed to decode records file: %w", err)
		}
		records = []any{one}
	}

	return &File{records: records, loaded: time.Now()}, nil
}

// Records returns the decoded trial records.
func (f *File) Records() []any {
	return f.records
}

// RandomID returns an alphanumeric identifier of length n.
func (f *File) RandomID(n int) string {
	return randomID(n)
}

// ElapsedTime reports the time since the file was loaded.
func (f *File) ElapsedTime() time.Duration {
	return time.Since(f.loaded)
}
