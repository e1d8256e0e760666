// Package api exposes the chat pipeline over HTTP and websockets
package api

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/chat"
	"github.com/gmsas95/moneychat/internal/config"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/llm"
	"github.com/gmsas95/moneychat/internal/metrics"
	"github.com/gmsas95/moneychat/internal/security"
)

const version = "0.3.0"

// Handler processes one chat message
type Handler interface {
	Handle(ctx context.Context, msg finance.IncomingMessage) (*chat.Response, error)
}

// Pinger reports storage health
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderReporter reports completion provider health
type ProviderReporter interface {
	ProviderStatus() []llm.ProviderStatus
}

// Server handles HTTP API and WebSocket
type Server struct {
	app       *fiber.App
	config    atomic.Pointer[config.Config]
	chat      Handler
	store     Pinger
	providers ProviderReporter
	validator *security.InputValidator
	injection *security.InjectionDetector
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New creates the server and registers its routes. providers may be nil.
func New(cfg *config.Config, handler Handler, store Pinger, providers ProviderReporter, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		chat:      handler,
		store:     store,
		providers: providers,
		validator: security.NewInputValidator(cfg.Server.MaxMessageBytes),
		injection: security.NewInjectionDetector(),
		metrics:   m,
		logger:    logger,
	}
	s.config.Store(cfg)

	readTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second

	s.app = fiber.New(fiber.Config{
		AppName:               "moneychat",
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             bodyLimit(cfg.Server.MaxMessageBytes),
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.setupRoutes()
	return s
}

// App returns the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// UpdateConfig swaps in a reloaded configuration. Credentials are checked
// against the latest one on every request.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.config.Store(cfg)
}

func (s *Server) cfg() *config.Config {
	return s.config.Load()
}

// Start listens on the configured address until Shutdown
func (s *Server) Start() error {
	cfg := s.cfg()
	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler is the last resort for anything a handler did not map itself
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}

	s.logger.Error("Unhandled request error",
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: apperrors.ErrInternal.Message,
		Code:  apperrors.ErrInternal.Code,
	})
}

// bodyLimit leaves room for the JSON envelope around the message
func bodyLimit(maxMessage int) int {
	if maxMessage <= 0 {
		return 4 * 1024 * 1024
	}
	return maxMessage*2 + 64*1024
}
