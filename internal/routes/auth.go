package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/iftv-ott/iftv_client/internal/auth"
)

// RegisterAuthRoutes wires the sign-in endpoints. otpLimiter and idempotency
// may be nil.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, otpLimiter, idempotency fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/otp", chain(h.RequestOtp, otpLimiter)...)
	group.Post("/login", chain(h.Login, idempotency)...)
	group.Post("/register", h.Register)
	group.Post("/logout", h.Logout)
	group.Get("/state", h.State)
}

// RegisterMeRoutes wires the endpoints that need the current bearer token.
func RegisterMeRoutes(r fiber.Router, h *auth.Handler, guard fiber.Handler) {
	group := r.Group("/me", guard)
	group.Get("", h.Me)
	group.Post("/refresh", h.Refresh)
	group.Get("/token", h.Token)
}

func chain(final fiber.Handler, mws ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mws)+1)
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return append(out, final)
}
