// Package sink provides persistence sinks that accept local save
// offers from the relay.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// tempCleanupDelay is how long a failed offer's temp artifact lingers
// before removal, so a reader that already opened it is not cut off.
const tempCleanupDelay = 100 * time.Millisecond

// Directory writes offered files into a target directory. Offers are
// written to a temporary file and renamed into place.
type Directory struct {
	dir string
	log zerolog.Logger
}

// NewDirectory creates a sink rooted at dir. The directory is created
// on first save.
func NewDirectory(dir string, log zerolog.Logger) *Directory {
	return &Directory{dir: dir, log: log}
}

// Save writes data under filename inside the sink directory.
func (d *Directory) Save(ctx context.Context, filename, mimeType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, filename+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		d.removeLater(tmp.Name())
		return fmt.Errorf("failed to write offer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		d.removeLater(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	path := filepath.Join(d.dir, filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		d.removeLater(tmp.Name())
		return fmt.Errorf("failed to move offer into place: %w", err)
	}

	d.log.Debug().Str("path", path).Str("mimeType", mimeType).Msg("Wrote submission file")
	return nil
}

// removeLater releases the temp artifact on a short deferred timer
// rather than synchronously.
func (d *Directory) removeLater(path string) {
	time.AfterFunc(tempCleanupDelay, func() {
		_ = os.Remove(path)
	})
}
