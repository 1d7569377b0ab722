package core

import (
	"context"
	"net/http"
	"time"
)

// RecordSource is the host experiment runner capability. It supplies
// the accumulated trial records, a random-identifier generator for
// participant ids, and the elapsed session time.
type RecordSource interface {
	// RandomID returns an alphanumeric identifier of length n.
	RandomID(n int) string
	// Records returns the complete accumulated trial record set.
	Records() []any
	// ElapsedTime returns the total elapsed session time.
	ElapsedTime() time.Duration
}

// TransportClient issues a single HTTP round trip. *http.Client
// satisfies it.
type TransportClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PersistenceSink is the host's file-save capability: it is offered
// serialized submission bytes under a filename and MIME type.
type PersistenceSink interface {
	Save(ctx context.Context, filename, mimeType string, data []byte) error
}
