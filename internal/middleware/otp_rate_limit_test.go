package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iftv-ott/iftv_client/internal/logging"
)

func postOtp(t *testing.T, app *fiber.App, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/otp", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, resp.Header.Get(fiber.HeaderRetryAfter)
}

func TestOTPRateLimitPerMobile(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/otp", OTPRateLimit(cache, 2, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		if status, _ := postOtp(t, app, `{"mobile":"9876543210"}`); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, status)
		}
	}
	status, retry := postOtp(t, app, `{"mobile":"9876543210"}`)
	if status != fiber.StatusTooManyRequests || retry == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %q", status, retry)
	}

	if status, _ := postOtp(t, app, `{"mobile":"9123456789"}`); status != fiber.StatusOK {
		t.Fatalf("other mobiles have their own window, got %d", status)
	}

	mr.FastForward(time.Minute + time.Second)
	if status, _ := postOtp(t, app, `{"mobile":"9876543210"}`); status != fiber.StatusOK {
		t.Fatalf("window should reset, got %d", status)
	}
}

func TestOTPRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/otp", OTPRateLimit(nil, 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		if status, _ := postOtp(t, app, `{"mobile":"9876543210"}`); status != fiber.StatusOK {
			t.Fatalf("expected pass-through, got %d", status)
		}
	}
}
