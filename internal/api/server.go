// Package api implements the Envoy HTTP API: a JSON chat endpoint, a
// websocket chat, health and version, plus the web chat page.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/envoy/internal/agent"
	"github.com/nugget/envoy/internal/buildinfo"
	"github.com/nugget/envoy/internal/connwatch"
	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/tools"
	"github.com/nugget/envoy/internal/web"
)

// maxRequestBytes bounds a chat request body, history included.
const maxRequestBytes = 1 << 20

// unavailableMessage is all a visitor sees when no reply could be
// drafted.
const unavailableMessage = "Sorry, I can't answer right now. Please try again in a moment."

// Responder produces a reply for one visitor message. Implemented by
// [agent.Responder].
type Responder interface {
	Respond(ctx context.Context, history []llm.Message, message string) (*agent.Outcome, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	responder Responder
	web       *web.WebServer
	health    HealthReporter
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates a new API server. A nil webServer leaves the chat
// page unmounted.
func NewServer(address string, port int, responder Responder, webServer *web.WebServer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		responder: responder,
		web:       webServer,
		logger:    logger.With("component", "api"),
	}
}

// HealthReporter supplies provider status for GET /health.
// Implemented by [connwatch.Manager].
type HealthReporter interface {
	Status() map[string]connwatch.Status
	Healthy() bool
}

// SetHealth installs the provider status source. Without one the
// endpoint reports only that the process is up.
func (s *Server) SetHealth(h HealthReporter) {
	s.health = h
}

// Handler returns the full route table wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/ws", s.handleWebsocket)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.web != nil {
		s.web.RegisterRoutes(mux)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns when ctx is cancelled
// and the server has shut down, or when the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Drafting, evaluation and revisions can take several model calls.
		WriteTimeout: 5 * time.Minute,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes the websocket upgrade through to the underlying
// connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                      `json:"status"`
	Providers map[string]connwatch.Status `json:"providers,omitempty"`
}

// handleHealth always answers 200 while the process serves requests.
// An unreachable provider marks the status "degraded"; the chat
// endpoints keep accepting traffic either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy"}
	if s.health != nil {
		resp.Providers = s.health.Status()
		if !s.health.Healthy() {
			resp.Status = "degraded"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// HistoryMessage is one prior turn as the browser holds it.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message        string           `json:"message"`
	History        []HistoryMessage `json:"history,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

// ChatResponse is the reply to POST /v1/chat.
type ChatResponse struct {
	Response       string `json:"response"`
	HTML           string `json:"html"`
	ConversationID string `json:"conversation_id"`
}

// handleChat answers one message. The client owns the conversation and
// sends prior turns with every request.
// POST /v1/chat {"message": "What do you work on?", "history": [...]}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	history, err := convertHistory(req.History)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.New().String()
	}

	reply, err := s.respond(r.Context(), convID, history, message)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, unavailableMessage)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:       reply,
		HTML:           s.renderHTML(reply),
		ConversationID: convID,
	}, s.logger)
}

// respond runs the responder with the conversation ID on the context
// and logs the outcome. Errors are logged here; callers show visitors
// a generic message.
func (s *Server) respond(ctx context.Context, convID string, history []llm.Message, message string) (string, error) {
	ctx = tools.WithConversationID(ctx, convID)

	out, err := s.responder.Respond(ctx, history, message)
	if err != nil {
		s.logger.Error("reply failed", "conversation_id", convID, "error", err)
		return "", err
	}

	s.logger.Debug("reply ready",
		"conversation_id", convID,
		"state", out.State,
		"generations", out.Generations,
		"evaluations", out.Evaluations,
	)
	return out.Reply, nil
}

func (s *Server) renderHTML(reply string) string {
	html, err := web.RenderMarkdown(reply)
	if err != nil {
		s.logger.Warn("markdown render failed", "error", err)
		return ""
	}
	return html
}

// convertHistory accepts only visitor and agent turns. Tool traffic and
// system prompts are never taken from clients.
func convertHistory(in []HistoryMessage) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(in))
	for i, m := range in {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		default:
			return nil, fmt.Errorf("history[%d]: unsupported role %q", i, m.Role)
		}
	}
	return out, nil
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
