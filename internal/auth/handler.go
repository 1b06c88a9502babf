package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/iftv-ott/iftv_client/internal/identity"
	"github.com/iftv-ott/iftv_client/internal/notification"
)

// Registrar creates gateway accounts.
type Registrar interface {
	Register(ctx context.Context, fields map[string]any) (identity.RegisterResult, error)
}

// StateSource exposes the last broadcast auth state.
type StateSource interface {
	Snapshot() notification.AuthState
}

// Handler exposes the lifecycle controller over HTTP for the auth console.
type Handler struct {
	svc       *Service
	states    StateSource
	registrar Registrar
}

// NewHandler builds the auth console handler. registrar may be nil.
func NewHandler(svc *Service, states StateSource, registrar Registrar) *Handler {
	return &Handler{svc: svc, states: states, registrar: registrar}
}

type otpRequest struct {
	Mobile string `json:"mobile"`
}

type otpResponse struct {
	SessionID string `json:"session_id"`
	Mobile    string `json:"mobile"`
	State     State  `json:"state"`
}

// RequestOtp starts a sign-in by sending an OTP.
func (h *Handler) RequestOtp(c *fiber.Ctx) error {
	var req otpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	otp, err := h.svc.RequestOtp(c.UserContext(), req.Mobile)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(otpResponse{SessionID: otp.SessionID, Mobile: otp.MobileNumber, State: h.svc.State()})
}

type loginRequest struct {
	Mobile    string `json:"mobile"`
	Otp       string `json:"otp"`
	SessionID string `json:"session_id"`
}

type sessionResponse struct {
	Mobile    string           `json:"mobile"`
	Token     string           `json:"token"`
	LoginTime string           `json:"login_time"`
	User      identity.Profile `json:"user"`
	State     State            `json:"state"`
}

// Login verifies the OTP and commits the session.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Login(c.UserContext(), req.Mobile, req.Otp, req.SessionID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(sessionResponse{
		Mobile:    sess.MobileNumber,
		Token:     sess.AuthToken,
		LoginTime: sess.LoginTimeISO(),
		User:      sess.User,
		State:     h.svc.State(),
	})
}

// Register forwards registration fields to the gateway.
func (h *Handler) Register(c *fiber.Ctx) error {
	if h.registrar == nil {
		return fiber.NewError(http.StatusNotImplemented, "registration is not available")
	}
	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.registrar.Register(c.UserContext(), fields)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": res.Message, "user": res.User, "token": res.Token})
}

// Logout clears the session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	h.svc.Logout(c.UserContext())
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

type stateResponse struct {
	notification.AuthState
	State      State `json:"state"`
	PendingOtp bool  `json:"pending_otp"`
}

// State reports the broadcast auth state and the controller position.
func (h *Handler) State(c *fiber.Ctx) error {
	_, pending := h.svc.PendingOtp()
	return c.JSON(stateResponse{AuthState: h.states.Snapshot(), State: h.svc.State(), PendingOtp: pending})
}

// Me returns the committed session.
func (h *Handler) Me(c *fiber.Ctx) error {
	sess := h.svc.Session()
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, ErrNoSession.Error())
	}
	return c.JSON(sessionResponse{
		Mobile:    sess.MobileNumber,
		Token:     sess.AuthToken,
		LoginTime: sess.LoginTimeISO(),
		User:      sess.User,
		State:     h.svc.State(),
	})
}

// Refresh re-fetches the profile.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	if err := h.svc.RefreshUser(c.UserContext()); err != nil {
		return httpError(err)
	}
	return h.Me(c)
}

// Token describes the current bearer token.
func (h *Handler) Token(c *fiber.Ctx) error {
	sess := h.svc.Session()
	if sess == nil {
		return fiber.NewError(http.StatusUnauthorized, ErrNoSession.Error())
	}
	return c.JSON(DescribeToken(sess.AuthToken))
}

// RequireSession rejects requests whose bearer token is not the committed
// session token.
func RequireSession(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if !svc.HoldsToken(token) {
			return fiber.NewError(http.StatusUnauthorized, "token does not match the current session")
		}
		return c.Next()
	}
}

func httpError(err error) error {
	msg := identity.UserMessage(err)
	switch {
	case identity.IsValidation(err):
		return fiber.NewError(http.StatusBadRequest, msg)
	case errors.Is(err, ErrNoOtpSession), errors.Is(err, ErrStaleOtpSession),
		errors.Is(err, ErrLoginInFlight), errors.Is(err, ErrSessionChanged):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoSession):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	default:
		return fiber.NewError(http.StatusBadGateway, msg)
	}
}
