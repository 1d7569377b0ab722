package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studykit/relay/pkg/core"
)

type fakeSource struct {
	records []any
	elapsed time.Duration
	idChars string
}

func (f *fakeSource) RandomID(n int) string {
	chars := f.idChars
	if chars == "" {
		chars = "x"
	}
	return strings.Repeat(chars, n)[:n]
}

func (f *fakeSource) Records() []any             { return f.records }
func (f *fakeSource) ElapsedTime() time.Duration { return f.elapsed }

type memSink struct {
	saves []savedOffer
	err   error
}

type savedOffer struct {
	filename string
	mimeType string
	data     []byte
}

func (m *memSink) Save(_ context.Context, filename, mimeType string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, savedOffer{filename, mimeType, data})
	return nil
}

type failTransport struct {
	calls int
	err   error
}

func (f *failTransport) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, f.err
}

var serverLocation = core.Location{Protocol: "https:", Hostname: "study.example.com"}

func TestNew_RequiresSourceAndSink(t *testing.T) {
	var ce *core.ConfigurationError

	_, err := New(nil, &memSink{})
	require.Error(t, err)
	assert.ErrorAs(t, err, &ce)

	_, err = New(&fakeSource{}, nil)
	require.Error(t, err)
	assert.ErrorAs(t, err, &ce)
}

func TestNew_GeneratesParticipantIDFromSource(t *testing.T) {
	h, err := New(&fakeSource{idChars: "a"}, &memSink{})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", h.Describe().ParticipantID)
}

func TestNew_EmptyGeneratedIDFailsFast(t *testing.T) {
	_, err := New(&zeroIDSource{}, &memSink{})

	var ce *core.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &ce)
}

type zeroIDSource struct{ fakeSource }

func (*zeroIDSource) RandomID(int) string { return "" }

func TestSubmit_LocalModeGoesStraightToSink(t *testing.T) {
	sink := &memSink{}
	transport := &failTransport{err: errors.New("must not be called")}

	h, err := New(&fakeSource{}, sink,
		WithTransport(transport),
		WithExperimentName("stroop"),
	)
	require.NoError(t, err)
	assert.Equal(t, core.ModeLocal, h.Describe().Mode)

	res, err := h.Submit(context.Background(), map[string]any{"rt": 300}, core.SubmitOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.ModeLocal, res.Method)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Filename)
	assert.Equal(t, 0, transport.calls, "remote transport must not be used in local mode")
	require.Len(t, sink.saves, 1)
}

func TestSubmit_RemoteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	sink := &memSink{}
	h, err := New(&fakeSource{}, sink,
		WithServerURL(server.URL),
		WithLocation(serverLocation),
	)
	require.NoError(t, err)
	assert.Equal(t, core.ModeServer, h.Describe().Mode)

	res, err := h.Submit(context.Background(), map[string]any{"rt": 1}, core.SubmitOptions{})
	require.NoError(t, err)

	assert.Equal(t, core.ModeServer, res.Method)
	assert.True(t, res.Success)
	parsed, ok := res.Response.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", parsed["status"])
	assert.Empty(t, sink.saves, "local delivery must not run on remote success")
}

func TestSubmit_RemoteFailureFallsBackToLocal(t *testing.T) {
	sink := &memSink{}
	transport := &failTransport{err: errors.New("connection refused")}

	h, err := New(&fakeSource{}, sink,
		WithTransport(transport),
		WithLocation(serverLocation),
	)
	require.NoError(t, err)

	res, err := h.Submit(context.Background(), map[string]any{"rt": 1}, core.SubmitOptions{})
	require.NoError(t, err, "fallback must absorb the transport failure")

	assert.Equal(t, core.ModeLocal, res.Method)
	assert.True(t, res.Success)
	assert.Equal(t, 1, transport.calls)
	require.Len(t, sink.saves, 1)

	// the fallback reuses the same envelope
	var env map[string]any
	require.NoError(t, json.Unmarshal(sink.saves[0].data, &env))
	assert.Equal(t, "server", env["environment"])
}

func TestSubmit_FallbackDisabledSurfacesTransportError(t *testing.T) {
	sink := &memSink{}
	transport := &failTransport{err: errors.New("connection refused")}

	h, err := New(&fakeSource{}, sink,
		WithTransport(transport),
		WithLocation(serverLocation),
		WithoutFallback(),
	)
	require.NoError(t, err)

	_, err = h.Submit(context.Background(), map[string]any{"rt": 1}, core.SubmitOptions{})
	require.Error(t, err)

	var te *core.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Empty(t, sink.saves)
}

func TestSubmit_MetadataOverridesReservedKeys(t *testing.T) {
	sink := &memSink{}
	h, err := New(&fakeSource{}, sink, WithExperimentName("stroop"))
	require.NoError(t, err)

	_, err = h.Submit(context.Background(), nil, core.SubmitOptions{
		Metadata: map[string]any{
			"timestamp": "overridden",
			"condition": "B",
		},
	})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(sink.saves[0].data, &env))
	assert.Equal(t, "overridden", env["timestamp"], "metadata wins on reserved keys, last write wins")
	assert.Equal(t, "B", env["condition"])
	assert.Equal(t, "stroop", env["experiment_name"])
}

func TestSubmit_EnvelopeContents(t *testing.T) {
	sink := &memSink{}
	h, err := New(&fakeSource{idChars: "p"}, sink, WithExperimentName("lexical"))
	require.NoError(t, err)

	_, err = h.Submit(context.Background(), map[string]any{"word": "house"}, core.SubmitOptions{})
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(sink.saves[0].data, &env))
	assert.Equal(t, "pppppppp", env["participant_id"])
	assert.Equal(t, "lexical", env["experiment_name"])
	assert.Equal(t, "local", env["environment"])
	assert.Equal(t, "studykit-relay/"+Version, env["client"])

	ts, ok := env["timestamp"].(string)
	require.True(t, ok)
	_, err = time.Parse(timestampLayout, ts)
	assert.NoError(t, err, "timestamp must be ISO-8601")
}

func TestSubmitAll_AugmentsMetadata(t *testing.T) {
	sink := &memSink{}
	src := &fakeSource{
		records: []any{
			map[string]any{"trial": 1.0},
			map[string]any{"trial": 2.0},
		},
		elapsed: 90 * time.Second,
	}

	h, err := New(src, sink)
	require.NoError(t, err)

	res, err := h.SubmitAll(context.Background(), core.SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.ModeLocal, res.Method)

	var env map[string]any
	require.NoError(t, json.Unmarshal(sink.saves[0].data, &env))
	assert.Equal(t, "all_trials", env["submission_type"])
	assert.Equal(t, 2.0, env["trial_count"])
	assert.Equal(t, 90000.0, env["session_duration_ms"])

	payload, ok := env["trial_data"].([]any)
	require.True(t, ok)
	assert.Len(t, payload, 2)
}

func TestSubmit_LocalSinkFailureIsSurfaced(t *testing.T) {
	sink := &memSink{err: errors.New("declined")}
	h, err := New(&fakeSource{}, sink)
	require.NoError(t, err)

	_, err = h.Submit(context.Background(), nil, core.SubmitOptions{})
	require.Error(t, err)

	var de *core.DeliveryError
	assert.ErrorAs(t, err, &de)
}

func TestDescribe(t *testing.T) {
	h, err := New(&fakeSource{}, &memSink{},
		WithServerURL("https://collect.example.org"),
		WithParticipantID("fixed-id"),
		WithLocation(core.Location{Protocol: "https:", Hostname: "study.example.com"}),
	)
	require.NoError(t, err)

	info := h.Describe()
	assert.Equal(t, core.ModeServer, info.Mode)
	assert.Equal(t, "https://collect.example.org", info.ServerURL)
	assert.Equal(t, "fixed-id", info.ParticipantID)
	assert.Equal(t, "https:", info.Protocol)
	assert.Equal(t, "study.example.com", info.Hostname)
	assert.True(t, info.FallbackToLocal)
}
