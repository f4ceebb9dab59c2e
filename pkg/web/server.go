// Package web serves the inbound webhook, health and status endpoints and
// the turn event stream.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/hub"
	"github.com/teslashibe/voicegate/pkg/idle"
	"github.com/teslashibe/voicegate/pkg/notify"
	"github.com/teslashibe/voicegate/pkg/pipeline"
)

// Turner runs one turn.
type Turner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Turn, error)
}

// Gate is the exclusive access gate.
type Gate interface {
	Do(ctx context.Context, wait time.Duration, holder string, fn func() error) error
	Status() gate.Status
}

// Config configures the server.
type Config struct {
	// ExternalWait bounds how long a webhook request waits for the gate.
	ExternalWait time.Duration
	BusyMessage  string
}

// Deps are the components the handlers read from. Pipeline, Gate and
// Report are required.
type Deps struct {
	Pipeline Turner
	Gate     Gate
	Report   func() config.Report
	Idle     func() idle.Status
	Metrics  *pipeline.Metrics
	Notify   func() notify.Stats
	Hub      *hub.Hub
}

// Server is the HTTP surface.
type Server struct {
	app    *fiber.App
	cfg    Config
	deps   Deps
	schema *jsonschema.Schema
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock replaces time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the fiber app and registers all routes.
func New(cfg Config, deps Deps, opts ...Option) (*Server, error) {
	if deps.Pipeline == nil || deps.Gate == nil || deps.Report == nil {
		return nil, errors.New("web: pipeline, gate and report are required")
	}
	if cfg.ExternalWait <= 0 {
		cfg.ExternalWait = 3 * time.Second
	}
	if cfg.BusyMessage == "" {
		cfg.BusyMessage = "システムがビジー状態です。しばらくしてから再試行してください。"
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, deps: deps, schema: schema, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Or(s.logger).With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "voicegate",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/incoming-webhook", s.handleIncomingWebhook)
	api.Get("/status", s.handleStatus)

	if deps.Hub != nil {
		app.Get("/ws/turns", deps.Hub.Handler())
	}

	s.app = app
	return s, nil
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "内部サーバーエラーが発生しました。"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	if code >= 500 {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(errorResponse{Status: "error", Message: msg})
}
