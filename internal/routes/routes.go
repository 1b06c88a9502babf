package routes

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iftv-ott/iftv_client/internal/auth"
	"github.com/iftv-ott/iftv_client/internal/config"
	"github.com/iftv-ott/iftv_client/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are nil when the session backend does not need them.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Auth    *auth.Service
	Handler *auth.Handler
}

// Setup configures middlewares and all console routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"app":        d.Cfg.AppName,
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{
			TTL:        d.Cfg.IdempotencyTTL,
			Replayable: loginReplayable(d.Auth),
		}, d.Logger)
	}
	otpLimiter := middleware.OTPRateLimit(d.Cache, d.Cfg.OTPRequestsPerMinute, d.Logger)

	RegisterAuthRoutes(api, d.Handler, otpLimiter, idempotency)
	RegisterMeRoutes(api, d.Handler, auth.RequireSession(d.Auth))
}

// loginReplayable only lets a stored login response be replayed while its
// token is still the committed session token, so a logout or a newer login
// retires it.
func loginReplayable(svc *auth.Service) func([]byte) bool {
	return func(body []byte) bool {
		var stored struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(body, &stored); err != nil {
			return false
		}
		return svc.HoldsToken(stored.Token)
	}
}
