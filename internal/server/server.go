package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iftv-ott/iftv_client/internal/auth"
	"github.com/iftv-ott/iftv_client/internal/config"
	"github.com/iftv-ott/iftv_client/internal/routes"
)

// Server wraps the Fiber application serving the auth console.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// Deps are the collaborators the console routes need.
type Deps struct {
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Logger    *slog.Logger
	Auth      *auth.Service
	States    auth.StateSource
	Registrar auth.Registrar
}

// New builds the console server. Handler writes are bounded by the gateway
// timeout plus a margin so slow logins are not cut off mid-verify.
func New(cfg config.Config, d Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          cfg.GatewayTimeout*2 + 5*time.Second,
		DisableStartupMessage: true,
	})

	routes.Setup(app, routes.Deps{
		Cfg:     cfg,
		DB:      d.DB,
		Cache:   d.Cache,
		Logger:  d.Logger,
		Auth:    d.Auth,
		Handler: auth.NewHandler(d.Auth, d.States, d.Registrar),
	})

	return &Server{app: app, cfg: cfg}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
