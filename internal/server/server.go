// Package server exposes the dialogue loop over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"deephat/internal/chat"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

const serviceName = "DeepHat Agent API"

// Replier answers one user message given the prior conversation.
type Replier interface {
	Reply(ctx context.Context, input string, history []chat.Message) (string, error)
}

// Options tunes the HTTP surface.
type Options struct {
	// RequestTimeout bounds one dialogue, model and tool round-trips included.
	RequestTimeout time.Duration
	// StreamDelay is the pause between pseudo-streamed words.
	StreamDelay time.Duration
	CORSOrigins []string
	Logger      *slog.Logger
}

type Server struct {
	replier Replier
	opts    Options
	logger  *slog.Logger
}

func New(replier Replier, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{replier: replier, opts: opts, logger: opts.Logger}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.opts.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message: serviceName + " is running",
		Version: Version,
		Endpoints: map[string]string{
			"health": "/health",
			"chat":   "/chat",
			"stream": "/chat/stream",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}
