// Package httpchat serves chat turns over HTTP, streaming finalized tokens to
// the client as Server-Sent Events.
package httpchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/transport"
)

// DefaultSessionTTL is how long a session may sit idle before it is
// forgotten.
const DefaultSessionTTL = 30 * time.Minute

// Server exposes sessions and their turns. Turns within one session run one
// at a time; different sessions run concurrently. Sessions idle for longer
// than the session TTL are dropped.
type Server struct {
	shim   *transport.Shim
	logger *zap.Logger
	app    *fiber.App
	ttl    time.Duration
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	turns  sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu sync.Mutex

	// guarded by Server.mu
	lastUsed time.Time
	active   int
}

// Option configures a Server.
type Option func(*Server)

func withClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithSessionTTL sets how long an idle session is kept. Zero or less keeps
// the default.
func WithSessionTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.ttl = d
		}
	}
}

type messageRequest struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a server relaying turns through shim.
func New(shim *transport.Shim, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		shim:     shim,
		logger:   logger,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Get("/api/ping", s.handlePing)
	app.Post("/api/sessions", s.handleCreateSession)
	app.Delete("/api/sessions/:id", s.handleDeleteSession)
	app.Post("/api/sessions/:id/messages", s.handleMessage)
	s.app = app

	go s.sweepSessions()
	return s
}

func (s *Server) sweepSessions() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.expireIdle()
		}
	}
}

// expireIdle drops sessions that have no running turn and were last used
// more than the TTL ago. It returns how many were dropped.
func (s *Server) expireIdle() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, sess := range s.sessions {
		if sess.active == 0 && sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("expired idle sessions", zap.Int("count", n), zap.Int("remaining", len(s.sessions)))
	}
	return n
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Run listens on addr until the server is shut down.
func (s *Server) Run(addr string) error {
	s.logger.Info("starting chat server", zap.String("listen", addr))
	return s.app.Listen(addr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(l net.Listener) error {
	s.logger.Info("starting chat server", zap.String("listen", l.Addr().String()))
	return s.app.Listener(l)
}

// Shutdown cancels in-flight turns and stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.app.ShutdownWithContext(ctx)
	s.turns.Wait()
	return err
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{lastUsed: s.now()}
	s.mu.Unlock()

	s.logger.Debug("session created", zap.String("session_id", id))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "session not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	id := c.Params("id")
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body"})
	}
	text := strings.TrimSpace(req.Content)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "content is required"})
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		sess.active++
		sess.lastUsed = s.now()
	}
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "session not found"})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives per-event backpressure: each write blocks until fasthttp
	// has flushed the previous chunk to the client.
	pr, pw := io.Pipe()
	s.turns.Add(1)
	go s.runTurn(id, sess, text, pw)
	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (s *Server) runTurn(id string, sess *session, text string, pw *io.PipeWriter) {
	defer s.turns.Done()
	defer func() {
		s.mu.Lock()
		sess.active--
		sess.lastUsed = s.now()
		s.mu.Unlock()
	}()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	logger := s.logger.With(zap.String("session_id", id))
	logger.Info("turn started")

	_, err := s.shim.Turn(s.ctx, text, &sseSink{w: pw})
	if err != nil {
		logger.Error("turn ended with error", zap.Error(err))
		var pipeErr *streamError
		if errors.As(err, &pipeErr) {
			_ = pw.CloseWithError(pipeErr.err)
			return
		}
	} else {
		logger.Info("turn completed")
	}
	if cerr := pw.Close(); cerr != nil {
		logger.Warn("close stream", zap.Error(fmt.Errorf("close pipe: %w", cerr)))
	}
}
