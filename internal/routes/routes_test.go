package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iftv-ott/iftv_client/internal/auth"
	"github.com/iftv-ott/iftv_client/internal/config"
	"github.com/iftv-ott/iftv_client/internal/identity"
	"github.com/iftv-ott/iftv_client/internal/logging"
	"github.com/iftv-ott/iftv_client/internal/notification"
	"github.com/iftv-ott/iftv_client/internal/session"
)

func fakeGateway(t *testing.T, verifyCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/loginOrSignin-with-mobile", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":"OTP sent","data":{"otpData":{"Details":"sess-123"}}}`)
	})
	mux.HandleFunc("/auth/verify-otp-mobile", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(verifyCalls, 1)
		io.WriteString(w, `{"data":{"token":"tok-abc","user":{"name":"Jane"}}}`)
	})
	mux.HandleFunc("/users/get", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-abc" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"bad token"}`)
			return
		}
		io.WriteString(w, `{"data":{"email":"jane@example.com"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupApp(t *testing.T) (*fiber.App, *int32) {
	t.Helper()
	var verifyCalls int32
	gw := fakeGateway(t, &verifyCalls)

	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	logger := logging.Discard()
	client := identity.NewClient(identity.Options{BaseURL: gw.URL}, logger)
	bc := notification.NewBroadcaster()
	svc := auth.NewService(client, session.NewStore(), bc, auth.Options{Logger: logger})
	svc.Start(context.Background())

	cfg := config.Config{AppName: "test", SessionBackend: config.BackendMemory, OTPRequestsPerMinute: 3}
	app := fiber.New()
	Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logger, Auth: svc, Handler: auth.NewHandler(svc, bc, client)})
	return app, &verifyCalls
}

func call(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestConsoleEndToEnd(t *testing.T) {
	app, verifyCalls := setupApp(t)

	resp, body := call(t, app, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["authenticated"] != false || body["session_backend"] != "memory" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}

	resp, body = call(t, app, http.MethodPost, "/api/v1/auth/otp", `{"mobile":"9876543210"}`, nil)
	if resp.StatusCode != http.StatusOK || body["session_id"] != "sess-123" {
		t.Fatalf("otp: %d %v", resp.StatusCode, body)
	}

	headers := map[string]string{"Idempotency-Key": "login-1"}
	loginBody := `{"mobile":"9876543210","otp":"123456","session_id":"sess-123"}`
	resp, body = call(t, app, http.MethodPost, "/api/v1/auth/login", loginBody, headers)
	if resp.StatusCode != http.StatusOK || body["token"] != "tok-abc" {
		t.Fatalf("login: %d %v", resp.StatusCode, body)
	}
	user, _ := body["user"].(map[string]any)
	if user["name"] != "Jane" || user["email"] != "jane@example.com" || user["mobileNumber"] != "9876543210" {
		t.Fatalf("unexpected user %v", user)
	}

	resp, body = call(t, app, http.MethodPost, "/api/v1/auth/login", loginBody, headers)
	if resp.StatusCode != http.StatusOK || body["token"] != "tok-abc" || resp.Header.Get("Idempotent-Replay") != "true" {
		t.Fatalf("replayed login: %d %v", resp.StatusCode, body)
	}
	if atomic.LoadInt32(verifyCalls) != 1 {
		t.Fatalf("replay must not verify again, got %d calls", *verifyCalls)
	}

	resp, body = call(t, app, http.MethodGet, "/api/v1/me", "", map[string]string{"Authorization": "Bearer tok-abc"})
	if resp.StatusCode != http.StatusOK || body["mobile"] != "9876543210" {
		t.Fatalf("me: %d %v", resp.StatusCode, body)
	}

	resp, _ = call(t, app, http.MethodPost, "/api/v1/auth/logout", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: %d", resp.StatusCode)
	}
	resp, body = call(t, app, http.MethodGet, "/api/v1/auth/state", "", nil)
	if resp.StatusCode != http.StatusOK || body["isAuthenticated"] != false || body["state"] != "logged_out" {
		t.Fatalf("state: %d %v", resp.StatusCode, body)
	}
}

func TestConsoleOtpRateLimit(t *testing.T) {
	app, _ := setupApp(t)
	for i := 0; i < 3; i++ {
		if resp, _ := call(t, app, http.MethodPost, "/api/v1/auth/otp", `{"mobile":"9876543210"}`, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("otp %d: %d", i, resp.StatusCode)
		}
	}
	if resp, _ := call(t, app, http.MethodPost, "/api/v1/auth/otp", `{"mobile":"9876543210"}`, nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestPingCarriesRequestID(t *testing.T) {
	app, _ := setupApp(t)
	resp, body := call(t, app, http.MethodGet, "/api/v1/ping", "", nil)
	if resp.StatusCode != http.StatusOK || body["request_id"] == "" || body["request_id"] != resp.Header.Get("X-Request-ID") {
		t.Fatalf("ping: %d %v", resp.StatusCode, body)
	}
}

func TestLoginReplayRetiredByLogout(t *testing.T) {
	app, verifyCalls := setupApp(t)
	headers := map[string]string{"Idempotency-Key": "k1"}
	loginBody := `{"mobile":"9876543210","otp":"123456","session_id":"sess-123"}`

	call(t, app, http.MethodPost, "/api/v1/auth/otp", `{"mobile":"9876543210"}`, nil)
	if resp, _ := call(t, app, http.MethodPost, "/api/v1/auth/login", loginBody, headers); resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d", resp.StatusCode)
	}
	call(t, app, http.MethodPost, "/api/v1/auth/logout", "", nil)

	for _, body := range []string{loginBody, `{"mobile":"9123456789","otp":"654321","session_id":"other"}`} {
		resp, out := call(t, app, http.MethodPost, "/api/v1/auth/login", body, headers)
		if resp.StatusCode == http.StatusOK || out["token"] != nil || resp.Header.Get("Idempotent-Replay") != "" {
			t.Fatalf("replay after logout leaked a session: %d %v", resp.StatusCode, out)
		}
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409 without a pending otp, got %d", resp.StatusCode)
		}
	}
	if atomic.LoadInt32(verifyCalls) != 1 {
		t.Fatalf("expected one verify call, got %d", atomic.LoadInt32(verifyCalls))
	}

	_, state := call(t, app, http.MethodGet, "/api/v1/auth/state", "", nil)
	if state["state"] != "logged_out" || state["isAuthenticated"] != false {
		t.Fatalf("unexpected state %v", state)
	}
}
