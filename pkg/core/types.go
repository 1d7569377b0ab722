// Package core defines the boundary types shared between the relay
// handler, its delivery paths, and the host-provided capabilities.
package core

// Mode classifies where the experiment session is being served from.
type Mode string

const (
	// ModeLocal means the session runs from the filesystem or a
	// loopback host; submissions go straight to the persistence sink.
	ModeLocal Mode = "local"
	// ModeServer means the session is served remotely; submissions go
	// to the collection endpoint first.
	ModeServer Mode = "server"
)

// Location describes where the host session was loaded from: the
// protocol and the hostname of its origin.
type Location struct {
	Protocol string
	Hostname string
}

// FileType selects the local serialization format.
type FileType string

const (
	FileTypeJSON FileType = "json"
	FileTypeCSV  FileType = "csv"
)

// Defaults applied when options are left zero.
const (
	DefaultServerURL      = "https://pipe.studykit.io"
	DefaultEndpoint       = "/api/trial"
	DefaultExperimentName = "experiment"
)

// Reserved envelope keys. Caller metadata is merged after these are
// set, so a metadata key that collides with a reserved key overwrites
// it (last write wins).
const (
	KeyTrialData      = "trial_data"
	KeyParticipantID  = "participant_id"
	KeyTimestamp      = "timestamp"
	KeyExperimentName = "experiment_name"
	KeyEnvironment    = "environment"
	KeyClient         = "client"
)

// Envelope is the record bundle assembled for a single submission:
// payload, identifiers, timestamp, environment mode, client string and
// any caller metadata. Built fresh per call and never mutated after
// construction.
type Envelope map[string]any

// String returns the envelope value at key rendered as a string, or ""
// when absent.
func (e Envelope) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// SubmitOptions configure a single submission.
type SubmitOptions struct {
	// Endpoint is the path appended to the server URL for remote
	// delivery. Defaults to DefaultEndpoint.
	Endpoint string
	// FileType selects the local serialization format. Defaults to
	// FileTypeJSON.
	FileType FileType
	// Filename overrides the generated local filename.
	Filename string
	// Metadata is merged into the envelope, winning on key conflicts.
	Metadata map[string]any
}

// Result reports how a submission was delivered.
type Result struct {
	// Method is the delivery path that produced this result.
	Method Mode `json:"method"`
	// Success is true for every returned result; failures surface as
	// errors instead.
	Success bool `json:"success"`
	// Response holds the parsed server response body when Method is
	// ModeServer.
	Response any `json:"response,omitempty"`
	// Filename holds the saved filename when Method is ModeLocal.
	Filename string `json:"filename,omitempty"`
}
