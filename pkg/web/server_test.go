package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/audio"
	"github.com/teslashibe/voicegate/pkg/chain"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/hub"
	"github.com/teslashibe/voicegate/pkg/idle"
	"github.com/teslashibe/voicegate/pkg/llm"
	"github.com/teslashibe/voicegate/pkg/pipeline"
	"github.com/teslashibe/voicegate/pkg/stt"
	"github.com/teslashibe/voicegate/pkg/tts"
)

type fakeTurner struct {
	mu    sync.Mutex
	reqs  []pipeline.Request
	err   error
	delay time.Duration
}

func (f *fakeTurner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Turn, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Turn{ID: "turn-1", Input: req.Text, Output: "reply to " + req.Text}, nil
}

func (f *fakeTurner) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

func testReport() config.Report {
	return config.Report{
		STT:             []string{"whisper-local", "openai"},
		LLM:             "dify",
		TTS:             []string{"voicevox"},
		OutgoingWebhook: true,
		MicLoop:         true,
		Consistent:      true,
	}
}

func newTestServer(t *testing.T, turner *fakeTurner, deps Deps) (*Server, *gate.Gate) {
	t.Helper()
	g := gate.New(log.Discard())
	deps.Pipeline = turner
	deps.Gate = g
	if deps.Report == nil {
		deps.Report = testReport
	}
	s, err := New(Config{ExternalWait: 20 * time.Millisecond, BusyMessage: "busy"}, deps,
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)
	return s, g
}

func post(t *testing.T, s *Server, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/incoming-webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp.StatusCode, out
}

func TestIncomingWebhook(t *testing.T) {
	turner := &fakeTurner{}
	s, g := newTestServer(t, turner, Deps{})

	code, out := post(t, s, `{"query":"hello","user_id":"u1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "reply to hello", out["agent_response"])
	assert.Equal(t, "turn-1", out["turn_id"])

	reqs := turner.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Text)
	assert.Equal(t, "u1", reqs[0].Identity)
	assert.Equal(t, pipeline.SourceWebhook, reqs[0].Source)
	assert.False(t, g.Status().Busy)
}

func TestIncomingWebhookEmptyQueryIsATurn(t *testing.T) {
	turner := &fakeTurner{}
	s, _ := newTestServer(t, turner, Deps{})

	code, _ := post(t, s, `{"query":""}`)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, turner.requests(), 1)
	assert.Empty(t, turner.requests()[0].Identity)
}

func TestIncomingWebhookEmptyQuerySpeaksEmptyMessage(t *testing.T) {
	quiet := chain.WithLogger(log.Discard())
	gen := llm.NewMock("unused")
	synth := tts.NewMock()
	hear := stt.NewMock("unused")

	genChain, err := llm.NewChain([]llm.Provider{gen}, quiet)
	require.NoError(t, err)
	synthChain, err := tts.NewChain([]tts.Provider{synth}, quiet)
	require.NoError(t, err)
	sttChain, err := stt.NewChain([]stt.Provider{hear}, quiet)
	require.NoError(t, err)
	p, err := pipeline.New(pipeline.Config{MaxPromptLength: 100, EmptyMessage: "empty input"},
		genChain, synthChain, audio.NewMockPlayer(),
		pipeline.WithRecognizer(sttChain), pipeline.WithLogger(log.Discard()))
	require.NoError(t, err)

	s, err := New(Config{ExternalWait: 20 * time.Millisecond}, Deps{
		Pipeline: p,
		Gate:     gate.New(log.Discard()),
		Report:   testReport,
	}, WithLogger(log.Discard()))
	require.NoError(t, err)

	code, out := post(t, s, `{"query":""}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "empty input", out["agent_response"])
	assert.Zero(t, hear.CallCount())
	assert.Zero(t, gen.CallCount())
	require.Equal(t, 1, synth.CallCount("Synthesize"))
	assert.Equal(t, "empty input", synth.LastCall().Text)
}

func TestIncomingWebhookRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"user_id":"u1"}`},
		{"query not string", `{"query":42}`},
		{"user_id not string", `{"query":"hi","user_id":7}`},
		{"not an object", `["query"]`},
		{"invalid json", `{"query":`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turner := &fakeTurner{}
			s, _ := newTestServer(t, turner, Deps{})

			code, out := post(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "error", out["status"])
			assert.NotEmpty(t, out["message"])
			assert.Empty(t, turner.requests())
		})
	}
}

func TestIncomingWebhookBusy(t *testing.T) {
	turner := &fakeTurner{}
	s, g := newTestServer(t, turner, Deps{})
	require.True(t, g.TryAcquire("mic"))
	defer g.Release()

	code, out := post(t, s, `{"query":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "busy", out["message"])
	assert.Empty(t, turner.requests())
}

func TestIncomingWebhookSerializes(t *testing.T) {
	turner := &fakeTurner{delay: 200 * time.Millisecond}
	s, _ := newTestServer(t, turner, Deps{})

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i], _ = post(t, s, `{"query":"hello"}`)
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusServiceUnavailable}, codes)
	assert.Len(t, turner.requests(), 1)
}

func TestIncomingWebhookInternalError(t *testing.T) {
	turner := &fakeTurner{err: errors.New("boom")}
	s, g := newTestServer(t, turner, Deps{})

	code, out := post(t, s, `{"query":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "error", out["status"])
	assert.False(t, g.Status().Busy)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeTurner{}, Deps{})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, float64(1700000000), out.Timestamp)
	assert.Equal(t, "dify", out.Services.LLM)
	assert.Equal(t, []string{"whisper-local", "openai"}, out.Services.STT)
	assert.True(t, out.Services.OutgoingWebhook)
	assert.True(t, out.Consistent)
}

func TestHealthReportsInconsistency(t *testing.T) {
	report := func() config.Report {
		r := testReport()
		r.Consistent = false
		r.Issues = []string{"LLM_PROVIDER=dify but dify is disabled"}
		return r
	}
	s, _ := newTestServer(t, &fakeTurner{}, Deps{Report: report})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "degraded", out.Status)
	assert.False(t, out.Consistent)
	assert.Len(t, out.Issues, 1)
}

func TestStatus(t *testing.T) {
	metrics := pipeline.NewMetrics()
	metrics.Record(pipeline.Timings{Generation: 1200 * time.Millisecond, Total: 2 * time.Second})
	deps := Deps{
		Metrics: metrics,
		Idle: func() idle.Status {
			return idle.Status{Phase: "quiet"}
		},
	}
	s, g := newTestServer(t, &fakeTurner{}, deps)
	require.True(t, g.TryAcquire("mic"))
	defer g.Release()

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/status", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Gate.Busy)
	assert.Equal(t, "mic", out.Gate.Holder)
	require.NotNil(t, out.Idle)
	assert.Equal(t, "quiet", out.Idle.Phase)
	require.NotNil(t, out.Metrics)
	assert.Equal(t, 1, out.Metrics.Turns)
	assert.Equal(t, int64(1200), out.Metrics.Last.GenerationMS)
	assert.Equal(t, int64(2000), out.Metrics.Average.TotalMS)
	assert.Nil(t, out.Notify)
}

func TestTurnStream(t *testing.T) {
	h := hub.New(log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	s, _ := newTestServer(t, &fakeTurner{}, Deps{Hub: h})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	defer func() { _ = s.Shutdown(context.Background()) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/turns", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Observe(pipeline.Event{
		Kind: pipeline.EventTurnFinished,
		Turn: &pipeline.Turn{ID: "t1", Input: "hi", Output: "hello", Source: pipeline.SourceMic},
		Time: time.Unix(1700000000, 0),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env hub.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, pipeline.EventTurnFinished, env.Type)
	assert.Equal(t, "t1", env.TurnID)
	assert.Equal(t, "hello", env.Output)
	assert.Equal(t, pipeline.SourceMic, env.Source)
}

func TestTurnStreamRequiresUpgrade(t *testing.T) {
	h := hub.New(log.Discard())
	s, _ := newTestServer(t, &fakeTurner{}, Deps{Hub: h})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/turns", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
