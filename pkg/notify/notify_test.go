package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/voicegate/internal/httpc"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/pipeline"
)

func testTurn(id string) pipeline.Turn {
	return pipeline.Turn{
		ID:        id,
		Source:    pipeline.SourceWebhook,
		Identity:  "u1",
		Input:     "hello",
		Output:    "hi there",
		Provider:  "dify",
		CreatedAt: time.Unix(1700000000, 500_000_000),
	}
}

func TestNotifyDelivers(t *testing.T) {
	var (
		mu  sync.Mutex
		got []Payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, httpc.UserAgent, r.Header.Get("User-Agent"))
		var p Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, AuthToken: "secret", AgentVersion: "1.0"}, WithLogger(log.Discard()))
	require.NoError(t, err)

	n.Notify(testTurn("t1"))
	require.NoError(t, n.Close(context.Background()))

	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, "t1", p.TurnID)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "webhook", p.Source)
	assert.Equal(t, "hello", p.UserInput)
	assert.Equal(t, "hi there", p.AIResponse)
	assert.Equal(t, "dify", p.LLMProvider)
	assert.Equal(t, "1.0", p.AgentVersion)
	assert.InDelta(t, 1700000000.5, p.Timestamp, 0.001)
	assert.Equal(t, Stats{Delivered: 1}, n.Stats())
}

func TestNotifyRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, RetryCount: 3, RetryDelay: time.Millisecond}, WithLogger(log.Discard()))
	require.NoError(t, err)

	n.Notify(testTurn("t1"))
	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(1), n.Stats().Delivered)
}

func TestNotifyGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, RetryCount: 2, RetryDelay: time.Millisecond}, WithLogger(log.Discard()))
	require.NoError(t, err)

	n.Notify(testTurn("t1"))
	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, Stats{Failed: 1}, n.Stats())
}

func TestNotifyNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	n, err := New(Config{URL: srv.URL, Workers: 1, QueueSize: 1}, WithLogger(log.Discard()))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Notify(testTurn("t"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow webhook")
	}
	assert.NotZero(t, n.Stats().Dropped)

	close(release)
	require.NoError(t, n.Close(context.Background()))
}

func TestNotifyAfterClose(t *testing.T) {
	n, err := New(Config{URL: "http://127.0.0.1:0"}, WithLogger(log.Discard()))
	require.NoError(t, err)
	require.NoError(t, n.Close(context.Background()))
	require.NoError(t, n.Close(context.Background()))

	n.Notify(testTurn("late"))
	assert.Equal(t, uint64(1), n.Stats().Dropped)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
