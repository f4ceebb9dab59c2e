// Package notify delivers completed turns to the outgoing webhook.
//
// Delivery is fire-and-forget: Notify enqueues and returns immediately, a
// small worker pool posts with retries, and nothing is ever reported back to
// the turn that produced the payload.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/voicegate/internal/httpc"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/pipeline"
)

// Payload is the JSON body posted for every turn.
type Payload struct {
	TurnID       string  `json:"turn_id"`
	Timestamp    float64 `json:"timestamp"`
	UserID       string  `json:"user_id"`
	Source       string  `json:"source"`
	UserInput    string  `json:"user_input"`
	AIResponse   string  `json:"ai_response"`
	LLMProvider  string  `json:"llm_provider"`
	AgentVersion string  `json:"agent_version"`
}

// Config configures a Notifier.
type Config struct {
	URL          string
	AuthToken    string
	Timeout      time.Duration
	RetryCount   int
	RetryDelay   time.Duration
	Workers      int
	QueueSize    int
	AgentVersion string
}

// Stats counts deliveries since start.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient sets the client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// Notifier posts turns to a webhook from a bounded queue.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Payload
	stop   context.CancelFunc
	group  *errgroup.Group

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New starts the worker pool.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: webhook URL is required")
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	n := &Notifier{
		cfg:   cfg,
		queue: make(chan Payload, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.client == nil {
		n.client = httpc.NewClient(cfg.Timeout)
	}
	n.logger = log.Or(n.logger).With("component", "notify")

	ctx, cancel := context.WithCancel(context.Background())
	n.stop = cancel
	n.group = &errgroup.Group{}
	for i := 0; i < cfg.Workers; i++ {
		n.group.Go(func() error {
			n.work(ctx)
			return nil
		})
	}
	return n, nil
}

// Notify implements pipeline.Notifier. It never blocks; when the queue is
// full the turn is dropped.
func (n *Notifier) Notify(turn pipeline.Turn) {
	p := Payload{
		TurnID:       turn.ID,
		Timestamp:    float64(turn.CreatedAt.UnixNano()) / float64(time.Second),
		UserID:       turn.Identity,
		Source:       string(turn.Source),
		UserInput:    turn.Input,
		AIResponse:   turn.Output,
		LLMProvider:  turn.Provider,
		AgentVersion: n.cfg.AgentVersion,
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.queue <- p:
	default:
		n.dropped.Add(1)
		n.logger.Warn("queue full, dropping turn", "turn_id", turn.ID)
	}
}

// Stats returns delivery counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Delivered: n.delivered.Load(),
		Failed:    n.failed.Load(),
		Dropped:   n.dropped.Load(),
	}
}

// Close stops accepting turns and waits for queued ones to be delivered.
// When ctx ends first, in-flight retries are abandoned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = n.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		n.stop()
		return nil
	case <-ctx.Done():
		n.stop()
		<-done
		return ctx.Err()
	}
}

func (n *Notifier) work(ctx context.Context) {
	for p := range n.queue {
		if err := n.deliver(ctx, p); err != nil {
			n.failed.Add(1)
			n.logger.Error("delivery failed", "turn_id", p.TurnID, "attempts", n.cfg.RetryCount, "error", err)
			continue
		}
		n.delivered.Add(1)
	}
}

// deliver posts p up to RetryCount times, sleeping RetryDelay between attempts.
func (n *Notifier) deliver(ctx context.Context, p Payload) error {
	headers := map[string]string{}
	if n.cfg.AuthToken != "" {
		headers["Authorization"] = "Bearer " + n.cfg.AuthToken
	}

	var err error
	for attempt := 1; attempt <= n.cfg.RetryCount; attempt++ {
		err = n.post(ctx, p, headers)
		if err == nil {
			n.logger.Debug("delivered", "turn_id", p.TurnID, "attempt", attempt)
			return nil
		}
		n.logger.Warn("delivery attempt failed", "turn_id", p.TurnID, "attempt", attempt, "error", err)
		if attempt == n.cfg.RetryCount {
			break
		}
		select {
		case <-time.After(n.cfg.RetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %w)", ctx.Err(), err)
		}
	}
	return err
}

func (n *Notifier) post(ctx context.Context, p Payload, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	return httpc.PostJSON(ctx, n.client, n.cfg.URL, p, headers, nil)
}

var _ pipeline.Notifier = (*Notifier)(nil)
