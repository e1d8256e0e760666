package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/gmsas95/moneychat/internal/errors"
	"github.com/gmsas95/moneychat/internal/store"
)

const (
	localUserID = "user_id"
	headerUser  = "X-User-ID"
)

// authMiddleware resolves the caller. With auth enabled the JWT subject is
// the user; otherwise X-User-ID, falling back to the default user.
func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.cfg().Security.AuthEnabled {
			user := strings.TrimSpace(c.Get(headerUser))
			if user == "" {
				user = store.DefaultUserID
			}
			c.Locals(localUserID, user)
			return c.Next()
		}

		auth := c.Get("Authorization")
		if auth == "" {
			auth = "Bearer " + c.Query("token")
		}
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: "missing authorization header",
				Code:  apperrors.ErrUnauthorized.Code,
			})
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg().Security.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: "invalid token",
				Code:  apperrors.ErrUnauthorized.Code,
			})
		}

		c.Locals(localUserID, claims.Subject)
		return c.Next()
	}
}

func (s *Server) upgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (s *Server) metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := "other"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		s.metrics.RecordRequest(route, status, time.Since(start))
		return err
	}
}

// userFrom reads the user resolved by authMiddleware from a locals value
func userFrom(local interface{}) string {
	if v, ok := local.(string); ok && v != "" {
		return v
	}
	return store.DefaultUserID
}
