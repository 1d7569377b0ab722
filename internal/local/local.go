// Package local serializes submission envelopes and offers the bytes
// to the host's persistence sink.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/studykit/relay/internal/csvenc"
	"github.com/studykit/relay/pkg/core"
)

// MIME types offered to the persistence sink.
const (
	mimeJSON = "application/json"
	mimeCSV  = "text/csv"
)

// Saver is the local delivery path.
type Saver struct {
	sink core.PersistenceSink
	log  zerolog.Logger
}

// New creates a Saver that offers serialized submissions to sink.
func New(sink core.PersistenceSink, log zerolog.Logger) *Saver {
	return &Saver{sink: sink, log: log}
}

// Save serializes the envelope per opts.FileType and offers the bytes
// to the sink. JSON output is the pretty-printed whole envelope; CSV
// output is the payload only, wrapped into a one-element sequence when
// it is not already one. A sink failure is surfaced as a
// DeliveryError.
func (s *Saver) Save(ctx context.Context, env core.Envelope, opts core.SubmitOptions) (core.Result, error) {
	fileType := opts.FileType
	if fileType == "" {
		fileType = core.FileTypeJSON
	}

	filename := opts.Filename
	if filename == "" {
		filename = Filename(env, fileType)
	}

	var data []byte
	var mimeType string
	switch fileType {
	case core.FileTypeCSV:
		payload := env[core.KeyTrialData]
		seq, ok := csvenc.Sequence(payload)
		if !ok {
			seq = []any{payload}
		}
		data = []byte(csvenc.Encode(seq))
		mimeType = mimeCSV
	default:
		var err error
		data, err = json.MarshalIndent(env, "", "  ")
		if err != nil {
			return core.Result{}, &core.DeliveryError{Filename: filename, Err: fmt.Errorf("encoding envelope: %w", err)}
		}
		mimeType = mimeJSON
	}

	if err := s.sink.Save(ctx, filename, mimeType, data); err != nil {
		return core.Result{}, &core.DeliveryError{Filename: filename, Err: err}
	}

	s.log.Debug().Str("filename", filename).Int("bytes", len(data)).Msg("Saved submission locally")

	return core.Result{Method: core.ModeLocal, Success: true, Filename: filename}, nil
}

// Filename builds {experimentName}_{participantId}_{timestamp}.{ext},
// replacing the colon and period characters of the timestamp so the
// result is filesystem-safe.
func Filename(env core.Envelope, fileType core.FileType) string {
	ts := env.String(core.KeyTimestamp)
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return fmt.Sprintf("%s_%s_%s.%s",
		env.String(core.KeyExperimentName),
		env.String(core.KeyParticipantID),
		ts,
		fileType,
	)
}
