package api

import (
	"strings"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.cfg().Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/auth/login", s.handleLogin)
	api.Post("/chat", s.authMiddleware(), s.handleChat)

	s.app.Use("/ws", s.authMiddleware(), s.upgradeMiddleware())
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}
