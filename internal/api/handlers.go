package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/store"
)

const tokenTTL = 7 * 24 * time.Hour

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("Health check: storage unavailable", zap.Error(err))
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{
		"status":      status,
		"version":     version,
		"credentials": s.cfg().HasCredentials(),
		"timestamp":   time.Now().Unix(),
	}
	if s.providers != nil {
		body["providers"] = s.providers.ProviderStatus()
	}
	return c.Status(code).JSON(body)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request", Code: apperrors.ErrBadRequest.Code})
	}

	sec := s.cfg().Security
	if sec.JWTSecret == "" || sec.AdminPassword == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "authentication is not configured"})
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(sec.AdminPassword)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid credentials", Code: apperrors.ErrUnauthorized.Code})
	}

	user := req.UserID
	if user == "" {
		user = store.DefaultUserID
	}

	now := time.Now()
	expires := now.Add(tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	signed, err := token.SignedString([]byte(sec.JWTSecret))
	if err != nil {
		s.logger.Error("Failed to sign token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to generate token"})
	}

	return c.JSON(LoginResponse{Token: signed, ExpiresAt: expires.Unix()})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request", Code: apperrors.ErrBadRequest.Code})
	}

	status, body := s.process(c.UserContext(), userFrom(c.Locals(localUserID)), req)
	return c.Status(status).JSON(body)
}

// process runs one chat request and returns the status and body to send.
// Credentials are checked before anything else.
func (s *Server) process(ctx context.Context, user string, req ChatRequest) (int, interface{}) {
	if !s.cfg().HasCredentials() {
		s.logger.Error("Chat request rejected: AI service credentials are not configured")
		return fiber.StatusInternalServerError, ErrorResponse{
			Error: apperrors.ErrCredentialsMissing.Message,
			Code:  apperrors.ErrCredentialsMissing.Code,
		}
	}

	if err := s.validator.Validate(req.Message); err != nil {
		return apperrors.HTTPStatus(err), ErrorResponse{Error: apperrors.PublicMessage(err), Code: apperrors.GetCode(err)}
	}

	if pattern := s.injection.Detect(req.Message); pattern != "" {
		s.logger.Warn("Message looks like a prompt injection attempt",
			zap.String("user_id", user),
			zap.String("pattern", pattern),
		)
	}

	resp, err := s.chat.Handle(ctx, finance.IncomingMessage{
		UserID:       user,
		Text:         req.Message,
		Mode:         finance.ParseMode(req.Type),
		FileInfo:     req.FileInfo,
		PreviousFile: req.PreviousFile,
	})
	if err != nil {
		if apperrors.Recoverable(err) {
			s.logger.Info("Recoverable chat failure", zap.String("user_id", user), zap.Error(err))
			return fiber.StatusOK, ChatEnvelope{Success: false, Error: apperrors.PublicMessage(err)}
		}

		status := apperrors.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			s.logger.Error("Chat failed", zap.String("user_id", user), zap.Error(err))
		}
		return status, ErrorResponse{Error: apperrors.PublicMessage(err), Code: apperrors.GetCode(err)}
	}

	return fiber.StatusOK, ChatEnvelope{Success: true, Data: resp}
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.metrics.IncrementConnections()
	defer s.metrics.DecrementConnections()
	defer c.Close()

	user := userFrom(c.Locals(localUserID))

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error", zap.String("user_id", user), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		start := time.Now()
		var (
			status int
			body   interface{}
		)

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			status, body = fiber.StatusBadRequest, ErrorResponse{Error: "invalid message format", Code: apperrors.ErrBadRequest.Code}
		} else {
			status, body = s.process(context.Background(), user, req)
		}
		s.metrics.RecordRequest("/ws", status, time.Since(start))

		if err := c.WriteJSON(body); err != nil {
			s.logger.Warn("WebSocket write error", zap.String("user_id", user), zap.Error(err))
			return
		}
	}
}
