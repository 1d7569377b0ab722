// Package relay routes trial submissions to remote or local delivery
// based on the detected execution environment, falling back to a local
// file when the remote leg fails.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/studykit/relay/internal/environ"
	"github.com/studykit/relay/internal/local"
	"github.com/studykit/relay/internal/remote"
	"github.com/studykit/relay/pkg/core"
)

// Version of the relay client, reported in every envelope.
const Version = "0.3.1"

const participantIDLength = 8

// timestampLayout mirrors ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Option configures handler construction.
type Option func(*config)

type config struct {
	serverURL      string
	experimentName string
	participantID  string
	fallback       bool
	location       core.Location
	transport      core.TransportClient
	logger         zerolog.Logger
}

// WithServerURL overrides the default collection server URL.
func WithServerURL(url string) Option {
	return func(c *config) { c.serverURL = url }
}

// WithExperimentName sets the experiment name used in envelopes and
// generated filenames.
func WithExperimentName(name string) Option {
	return func(c *config) { c.experimentName = name }
}

// WithParticipantID fixes the participant id instead of asking the
// record source to generate one.
func WithParticipantID(id string) Option {
	return func(c *config) { c.participantID = id }
}

// WithLocation supplies the host location descriptor used for
// environment detection. The zero Location detects as local.
func WithLocation(loc core.Location) Option {
	return func(c *config) { c.location = loc }
}

// WithTransport injects the HTTP transport used for remote delivery.
func WithTransport(t core.TransportClient) Option {
	return func(c *config) { c.transport = t }
}

// WithoutFallback disables the remote-to-local fallback; remote
// failures are surfaced to the caller instead.
func WithoutFallback() Option {
	return func(c *config) { c.fallback = false }
}

// WithLogger sets the logger for the handler and its delivery paths.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.logger = log }
}

// Handler routes submissions. The environment mode is detected once at
// construction and cached for the handler's lifetime.
type Handler struct {
	source         core.RecordSource
	remote         *remote.Client
	local          *local.Saver
	location       core.Location
	mode           core.Mode
	serverURL      string
	experimentName string
	participantID  string
	fallback       bool
	log            zerolog.Logger

	submissions metric.Int64Counter
	fallbacks   metric.Int64Counter
}

// New creates a Handler. source supplies trial records and identifier
// generation; sink receives local save offers. Both are required;
// construction fails fast with a ConfigurationError when either is
// missing or the source cannot produce a participant id.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(source core.RecordSource, sink core.PersistenceSink, opts ...Option) (*Handler, error) {
	if source == nil {
		return nil, &core.ConfigurationError{Reason: "record source is required"}
	}
	if sink == nil {
		return nil, &core.ConfigurationError{Reason: "persistence sink is required"}
	}

	cfg := &config{
		serverURL:      core.DefaultServerURL,
		experimentName: core.DefaultExperimentName,
		fallback:       true,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.participantID == "" {
		cfg.participantID = source.RandomID(participantIDLength)
	}
	if cfg.participantID == "" {
		return nil, &core.ConfigurationError{Reason: "record source returned an empty participant id"}
	}

	h := &Handler{
		source:         source,
		remote:         remote.New(cfg.serverURL, cfg.transport, cfg.logger),
		local:          local.New(sink, cfg.logger),
		location:       cfg.location,
		mode:           environ.Detect(cfg.location),
		serverURL:      cfg.serverURL,
		experimentName: cfg.experimentName,
		participantID:  cfg.participantID,
		fallback:       cfg.fallback,
		log:            cfg.logger,
	}

	m := meter()
	var err error
	h.submissions, err = m.Int64Counter(
		"relay.submissions",
		metric.WithDescription("Total trial submissions routed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating submissions counter: %w", err)
	}
	h.fallbacks, err = m.Int64Counter(
		"relay.fallbacks",
		metric.WithDescription("Remote deliveries downgraded to local files"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fallbacks counter: %w", err)
	}

	h.log.Debug().
		Str("mode", string(h.mode)).
		Str("participantId", h.participantID).
		Msg("Relay handler initialized")

	return h, nil
}

// Submit delivers a single payload. The envelope is assembled fresh
// per call: payload, timestamp, the fixed participant id and
// experiment name, the cached environment mode, the client string, and
// caller metadata merged last (metadata keys overwrite reserved keys,
// last write wins). In server mode a remote failure falls back to
// local delivery with the same envelope unless fallback is disabled.
func (h *Handler) Submit(ctx context.Context, payload any, opts core.SubmitOptions) (core.Result, error) {
	env := h.buildEnvelope(payload, opts.Metadata)

	if h.mode == core.ModeLocal {
		return h.deliverLocal(ctx, env, opts)
	}

	res, err := h.remote.Post(ctx, env, opts.Endpoint)
	if err == nil {
		h.count(ctx, core.ModeServer, "ok")
		return res, nil
	}

	h.count(ctx, core.ModeServer, "error")
	if !h.fallback {
		return core.Result{}, err
	}

	h.log.Warn().Err(err).Msg("Remote delivery failed, falling back to local file")
	h.fallbacks.Add(ctx, 1)
	return h.deliverLocal(ctx, env, opts)
}

// SubmitAll submits the complete accumulated record set from the
// record source, tagging the metadata with a submission-type marker,
// the trial count and the elapsed session time.
func (h *Handler) SubmitAll(ctx context.Context, opts core.SubmitOptions) (core.Result, error) {
	records := h.source.Records()

	metadata := make(map[string]any, len(opts.Metadata)+3)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata["submission_type"] = "all_trials"
	metadata["trial_count"] = len(records)
	metadata["session_duration_ms"] = h.source.ElapsedTime().Milliseconds()
	opts.Metadata = metadata

	return h.Submit(ctx, records, opts)
}

// Info is the read-only introspection snapshot of a handler.
type Info struct {
	Mode            core.Mode `json:"mode"`
	ServerURL       string    `json:"serverUrl"`
	ParticipantID   string    `json:"participantId"`
	Protocol        string    `json:"protocol"`
	Hostname        string    `json:"hostname"`
	FallbackToLocal bool      `json:"fallbackToLocal"`
}

// Describe reports the current routing state. No side effects.
func (h *Handler) Describe() Info {
	return Info{
		Mode:            h.mode,
		ServerURL:       h.serverURL,
		ParticipantID:   h.participantID,
		Protocol:        h.location.Protocol,
		Hostname:        h.location.Hostname,
		FallbackToLocal: h.fallback,
	}
}

func (h *Handler) buildEnvelope(payload any, metadata map[string]any) core.Envelope {
	env := core.Envelope{
		core.KeyTrialData:      payload,
		core.KeyParticipantID:  h.participantID,
		core.KeyTimestamp:      time.Now().UTC().Format(timestampLayout),
		core.KeyExperimentName: h.experimentName,
		core.KeyEnvironment:    string(h.mode),
		core.KeyClient:         "studykit-relay/" + Version,
	}
	for k, v := range metadata {
		env[k] = v
	}
	return env
}

func (h *Handler) deliverLocal(ctx context.Context, env core.Envelope, opts core.SubmitOptions) (core.Result, error) {
	res, err := h.local.Save(ctx, env, opts)
	if err != nil {
		h.count(ctx, core.ModeLocal, "error")
		return core.Result{}, err
	}
	h.count(ctx, core.ModeLocal, "ok")
	return res, nil
}

func (h *Handler) count(ctx context.Context, method core.Mode, outcome string) {
	h.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", string(method)),
		attribute.String("outcome", outcome),
	))
}
