// Package web serves the liveness endpoint the hosting platform polls.
package web

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// StatusFunc reports runtime state merged into the health response
type StatusFunc func() map[string]interface{}

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	log    logger.Logger
	port   int
	status StatusFunc
}

// Config holds server configuration
type Config struct {
	Port int
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, status StatusFunc, log logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error("HTTP error", logger.F("error", err), logger.F("code", code))

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	server := &Server{
		app:    app,
		log:    log.With(logger.F("component", "web-server")),
		port:   cfg.Port,
		status: status,
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Moxie Alerts Bot is running!")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		resp := fiber.Map{
			"status": "healthy",
		}
		if server.status != nil {
			for k, v := range server.status() {
				resp[k] = v
			}
		}
		return c.JSON(resp)
	})

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("starting web server", logger.F("port", s.port))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.app.ShutdownWithContext(ctx)
}
