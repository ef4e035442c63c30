package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versusmatch/internal/domain"
)

func TestMatchMetrics(t *testing.T) {
	t.Parallel()

	m := NewMatch()
	m.MatchStarted(domain.MatchTypeHuman)
	m.MatchStarted(domain.MatchTypeAIAssisted)
	m.MatchEnded(domain.MatchTypeHuman)
	m.TurnSwitched(domain.SpeakerPartner)
	m.PartnerResponse("played")
	m.PartnerResponse("played")
	m.VoicePacket("echo")
	m.RecognitionError()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.started.WithLabelValues("human")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("partner")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.responses.WithLabelValues("played")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.voicePackets.WithLabelValues("echo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recognitionErrors))
}

func TestRelayMetrics(t *testing.T) {
	t.Parallel()

	r := NewRelay()
	r.PeerJoined()
	r.PeerJoined()
	r.PeerLeft()
	r.Message("broadcast")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.peers))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.messages.WithLabelValues("broadcast")))
}

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	m := NewMatch()
	m.MatchStarted(domain.MatchTypeAIAssisted)
	reg := NewRegistry(m.Collectors()...)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `versusmatch_matches_started_total{match_type="ai_assisted"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestExporterLifecycle(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	exporter := NewExporter(addr, NewRegistry(NewMatch().Collectors()...))
	served := make(chan error, 1)
	go func() { served <- exporter.Start() }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		body = string(raw)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ok", strings.TrimSpace(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, exporter.Shutdown(ctx))
	assert.True(t, errors.Is(<-served, http.ErrServerClosed))
}

func TestExporterShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	exporter := NewExporter("127.0.0.1:0", NewRegistry())
	require.NoError(t, exporter.Shutdown(context.Background()))
	assert.ErrorIs(t, exporter.Start(), http.ErrServerClosed)
}
