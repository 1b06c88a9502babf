package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iftv-ott/iftv_client/internal/logging"
)

const (
	requestOtpPath = "/auth/loginOrSignin-with-mobile"
	verifyOtpPath  = "/auth/verify-otp-mobile"
	profilePath    = "/users/get"
	registerPath   = "/auth/register"
)

// Options configures a gateway Client.
type Options struct {
	BaseURL       string
	Role          string
	DeviceToken   string
	CurrentScreen string
	Timeout       time.Duration
	// HTTPClient overrides the transport, Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client talks to the remote identity gateway. It never touches session
// state; callers decide what to keep.
type Client struct {
	baseURL       string
	role          string
	deviceToken   string
	currentScreen string
	http          *http.Client
	logger        *slog.Logger
}

// NewClient builds a gateway client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	role := opts.Role
	if role == "" {
		role = "user"
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		role:          role,
		deviceToken:   opts.DeviceToken,
		currentScreen: opts.CurrentScreen,
		http:          httpClient,
		logger:        logger,
	}
}

type requestOtpBody struct {
	Mobile string `json:"mobile"`
	Role   string `json:"role"`
}

// RequestOtp asks the gateway to send an OTP to mobile. A missing session id
// in the response is not an error here; SessionID is simply empty.
func (c *Client) RequestOtp(ctx context.Context, mobile string) (OtpResult, error) {
	if err := ValidateMobile(mobile); err != nil {
		return OtpResult{}, err
	}

	payload, err := c.do(ctx, "request otp", http.MethodPost, requestOtpPath, requestOtpBody{Mobile: mobile, Role: c.role}, "")
	if err != nil {
		return OtpResult{}, err
	}

	res := OtpResult{
		Success:   true,
		Message:   messageOr(payload, "OTP sent successfully"),
		SessionID: firstString(payload, sessionIDRules),
	}
	c.logger.Info("otp requested", slog.String("mobile", mobile), slog.Bool("session_issued", res.SessionID != ""))
	return res, nil
}

type verifyOtpBody struct {
	SessionID     string `json:"sessionId"`
	Mobile        int64  `json:"mobile"`
	Otp           string `json:"otp"`
	FcmToken      string `json:"fcmToken"`
	CurrentScreen string `json:"currentScreen"`
}

// VerifyOtp exchanges an OTP for a bearer token.
func (c *Client) VerifyOtp(ctx context.Context, mobile, otp, sessionID string) (VerifyResult, error) {
	if err := ValidateMobile(mobile); err != nil {
		return VerifyResult{}, err
	}
	if err := ValidateOtp(otp); err != nil {
		return VerifyResult{}, err
	}
	number, err := strconv.ParseInt(mobile, 10, 64)
	if err != nil {
		return VerifyResult{}, &ValidationError{Field: "mobile", Message: "Please enter a valid 10-digit mobile number"}
	}

	body := verifyOtpBody{
		SessionID:     sessionID,
		Mobile:        number,
		Otp:           otp,
		FcmToken:      c.deviceToken,
		CurrentScreen: c.currentScreen,
	}
	payload, err := c.do(ctx, "verify otp", http.MethodPut, verifyOtpPath, body, "")
	if err != nil {
		return VerifyResult{}, err
	}

	token := firstString(payload, verifyTokenRules)
	if token == "" {
		c.logger.Warn("verify response without token", slog.String("mobile", mobile))
		return VerifyResult{}, ErrMissingToken
	}

	return VerifyResult{
		Success: true,
		Message: messageOr(payload, "OTP verified successfully"),
		Token:   token,
		User:    firstObject(payload, verifyUserRules),
	}, nil
}

// FetchProfile loads the profile of the token owner. A failure here means the
// profile is unavailable, not that the session is invalid.
func (c *Client) FetchProfile(ctx context.Context, token string) (ProfileResult, error) {
	if strings.TrimSpace(token) == "" {
		return ProfileResult{}, &ValidationError{Field: "token", Message: "token is required"}
	}

	payload, err := c.do(ctx, "fetch profile", http.MethodGet, profilePath, nil, token)
	if err != nil {
		return ProfileResult{}, err
	}
	return ProfileResult{Success: true, User: firstObject(payload, profileRules)}, nil
}

// Register creates an account from arbitrary profile fields.
func (c *Client) Register(ctx context.Context, fields map[string]any) (RegisterResult, error) {
	if len(fields) == 0 {
		return RegisterResult{}, &ValidationError{Field: "body", Message: "registration fields are required"}
	}
	if raw, ok := fields["mobile"].(string); ok {
		if err := ValidateMobile(raw); err != nil {
			return RegisterResult{}, err
		}
	}

	payload, err := c.do(ctx, "register", http.MethodPost, registerPath, fields, "")
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{
		Success: true,
		Message: messageOr(payload, "Registration successful"),
		User:    firstObject(payload, registerUserRules),
		Token:   firstString(payload, registerTokenRule),
	}, nil
}

// do performs one JSON round trip and classifies failures into the error
// taxonomy. The body is decoded before the status is looked at, so a non-JSON
// body is malformed whatever the status. The returned payload is nil when the
// body is valid JSON but not an object.
func (c *Client) do(ctx context.Context, op, method, path string, body any, token string) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("gateway request failed", slog.String("op", op), slog.Any("error", err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("gateway response",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	payload, err := decodePayload(raw)
	if err != nil {
		c.logger.Error("gateway returned malformed body",
			slog.String("op", op), slog.Int("status", resp.StatusCode), slog.Any("error", err))
		return nil, &MalformedResponseError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := messageOr(payload, fmt.Sprintf("%s failed: %d", op, resp.StatusCode))
		c.logger.Warn("gateway rejected request", slog.String("op", op), slog.Int("status", resp.StatusCode), slog.String("message", msg))
		return nil, &RemoteAuthError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	return payload, nil
}

func decodePayload(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	obj, _ := v.(map[string]any)
	return obj, nil
}
