package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/carecompanion/internal/backend"
	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/config"
	"github.com/ent0n29/carecompanion/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() config.Config {
	return config.Config{
		BackendMode:              backend.ModeAuto,
		SessionInactivityTimeout: time.Minute,
		RateLimitRPS:             100,
		RateLimitBurst:           100,
	}
}

func testMetrics() *observability.Metrics {
	reg := prometheus.NewRegistry()
	return observability.NewMetricsWith(reg, reg, "test")
}

func TestBuildClientLocalConversation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := BuildClient(ctx, testConfig(), nil, testMetrics())
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &backend.LocalTransport{}, c.Transport)

	require.Equal(t, chat.OutcomeReplied, c.Controller.Submit(ctx, "Hi, I'm John Smith"))
	require.Equal(t, chat.OutcomeReplied, c.Controller.Submit(ctx, "Any new research on kidney drugs?"))
	last := c.Controller.Snapshot().Last()
	assert.Equal(t, chat.AgentClinical, last.Agent)
	assert.Equal(t, chat.SourceWeb, last.SourceType)
}

func TestBuildClientHTTPAgainstBuiltServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := BuildServer(ctx, testConfig(), nil, testMetrics())
	require.NoError(t, err)
	defer srv.Backend.Cleanup()
	ts := httptest.NewServer(srv.API.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	cfg := testConfig()
	cfg.BackendMode = backend.ModeHTTP
	cfg.BackendURL = ts.URL + "/chat"
	cfg.RequestTimeout = 5 * time.Second
	c, err := BuildClient(ctx, cfg, nil, testMetrics())
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, chat.OutcomeReplied, c.Controller.Submit(ctx, "Hi, I'm Abhishek B Shetty"))
	assert.NotEmpty(t, c.Controller.SessionID())
	assert.Equal(t, 1, srv.Backend.Sessions.ActiveCount())
}

func TestBuildClientRejectsUnknownMode(t *testing.T) {
	cfg := testConfig()
	cfg.BackendMode = "fax"
	_, err := BuildClient(context.Background(), cfg, nil, testMetrics())
	assert.Error(t, err)
}

func TestNeedsLocal(t *testing.T) {
	assert.True(t, needsLocal(config.Config{BackendMode: backend.ModeLocal, BackendURL: "http://x"}))
	assert.True(t, needsLocal(config.Config{BackendMode: backend.ModeAuto}))
	assert.False(t, needsLocal(config.Config{BackendMode: backend.ModeAuto, BackendURL: "http://x"}))
	assert.False(t, needsLocal(config.Config{BackendMode: backend.ModeWS, BackendWSURL: "ws://x"}))
}
