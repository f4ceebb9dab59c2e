package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/pkg/gate"
	"github.com/teslashibe/voicegate/pkg/idle"
	"github.com/teslashibe/voicegate/pkg/notify"
	"github.com/teslashibe/voicegate/pkg/pipeline"
)

const webhookSchemaURL = "voicegate://incoming-webhook.json"

// webhookSchema only requires query to be present; an empty query is a
// valid turn that yields the empty-input message.
const webhookSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": {"type": "string"},
    "user_id": {"type": "string"}
  }
}`

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(webhookSchemaURL, strings.NewReader(webhookSchema)); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := compiler.Compile(webhookSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return schema, nil
}

// WebhookRequest is the inbound webhook body.
type WebhookRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id,omitempty"`
}

// WebhookResponse is returned when the turn completed.
type WebhookResponse struct {
	Status        string `json:"status"`
	AgentResponse string `json:"agent_response"`
	TurnID        string `json:"turn_id"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) parseWebhook(body []byte) (*WebhookRequest, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.New("JSONデータを解析できません。")
	}
	if err := s.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			s.logger.Debug("webhook rejected", "error", ve.Error())
		}
		return nil, errors.New("JSONデータに 'query' フィールドがありません。")
	}
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("JSONデータを解析できません。")
	}
	return &req, nil
}

// handleIncomingWebhook runs a turn for an external caller.
func (s *Server) handleIncomingWebhook(c *fiber.Ctx) error {
	req, err := s.parseWebhook(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Status: "error", Message: err.Error()})
	}
	s.logger.Info("webhook received", "user_id", req.UserID, "query", req.Query)

	var turn *pipeline.Turn
	err = s.deps.Gate.Do(c.UserContext(), s.cfg.ExternalWait, "webhook", func() error {
		var runErr error
		turn, runErr = s.deps.Pipeline.Run(c.UserContext(), pipeline.Request{
			Text:     req.Query,
			Identity: req.UserID,
			Source:   pipeline.SourceWebhook,
		})
		return runErr
	})
	switch {
	case errors.Is(err, gate.ErrBusy):
		s.logger.Warn("gate busy, rejecting webhook", "wait", s.cfg.ExternalWait)
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Status: "error", Message: s.cfg.BusyMessage})
	case err != nil:
		return err
	}

	return c.JSON(WebhookResponse{
		Status:        "success",
		AgentResponse: turn.Output,
		TurnID:        turn.ID,
	})
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status     string   `json:"status"`
	Timestamp  float64  `json:"timestamp"`
	Services   Services `json:"services"`
	Consistent bool     `json:"consistent"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Services lists the effective provider chains.
type Services struct {
	STT             []string `json:"stt"`
	LLM             string   `json:"llm"`
	TTS             []string `json:"tts"`
	OutgoingWebhook bool     `json:"outgoing_webhook"`
	MicLoop         bool     `json:"mic_loop"`
}

func newHealth(r config.Report, now time.Time) HealthResponse {
	status := "ok"
	if !r.Consistent {
		status = "degraded"
	}
	return HealthResponse{
		Status:    status,
		Timestamp: float64(now.UnixMilli()) / 1000,
		Services: Services{
			STT:             r.STT,
			LLM:             r.LLM,
			TTS:             r.TTS,
			OutgoingWebhook: r.OutgoingWebhook,
			MicLoop:         r.MicLoop,
		},
		Consistent: r.Consistent,
		Issues:     r.Issues,
		Warnings:   r.Warnings,
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(newHealth(s.deps.Report(), s.now()))
}

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Gate     gate.Status   `json:"gate"`
	Idle     *idle.Status  `json:"idle,omitempty"`
	Metrics  *MetricsView  `json:"metrics,omitempty"`
	Notify   *notify.Stats `json:"notify,omitempty"`
	Watchers int           `json:"watchers"`
}

// MetricsView reports turn latencies in milliseconds.
type MetricsView struct {
	Turns   int        `json:"turns"`
	Last    TimingView `json:"last"`
	Average TimingView `json:"average"`
}

// TimingView is pipeline.Timings in milliseconds.
type TimingView struct {
	RecognitionMS int64 `json:"stt_ms"`
	GenerationMS  int64 `json:"llm_ms"`
	SynthesisMS   int64 `json:"tts_ms"`
	TotalMS       int64 `json:"total_ms"`
}

func newTimingView(t pipeline.Timings) TimingView {
	return TimingView{
		RecognitionMS: t.Recognition.Milliseconds(),
		GenerationMS:  t.Generation.Milliseconds(),
		SynthesisMS:   t.Synthesis.Milliseconds(),
		TotalMS:       t.Total.Milliseconds(),
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{Gate: s.deps.Gate.Status()}
	if s.deps.Idle != nil {
		st := s.deps.Idle()
		resp.Idle = &st
	}
	if m := s.deps.Metrics; m != nil {
		resp.Metrics = &MetricsView{
			Turns:   m.Turns(),
			Last:    newTimingView(m.Last()),
			Average: newTimingView(m.Average()),
		}
	}
	if s.deps.Notify != nil {
		st := s.deps.Notify()
		resp.Notify = &st
	}
	if s.deps.Hub != nil {
		resp.Watchers = s.deps.Hub.ClientCount()
	}
	return c.JSON(resp)
}
