package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otp-guard/internal/bucketing"
	"otp-guard/internal/client"
	"otp-guard/internal/config"
	"otp-guard/internal/events"
	"otp-guard/internal/otp"
	redisrepo "otp-guard/internal/repository/redis"
	"otp-guard/internal/service"
)

const testAdminToken = "s3cret"

type recordingMailer struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (m *recordingMailer) Send(context.Context, string, string, string, map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

type testServer struct {
	router chi.Router
	mr     *miniredis.Miniredis
	mailer *recordingMailer
}

func newTestServer(t *testing.T, mutate func(*RouterConfig)) *testServer {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	logger := zap.NewNop()
	store := client.NewRedisClientFromConn(rdb)
	mailer := &recordingMailer{}
	guard := otp.NewGuard(store, mailer, config.DefaultOTPConfig(), logger)
	eventFactory := events.NewFactory(bucketing.NewBucketingManager(config.BucketingConfig{EventBuckets: 4}))
	services := service.NewServiceFactory(guard, redisrepo.NewOTPCache(store), events.NopRecorder{}, eventFactory, logger)

	cfg := RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		MetricsPath:    "/metrics",
		HealthCheck:    store.HealthCheck,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	router := NewRouter(cfg,
		NewAuthHandler(services.AuthService(), logger),
		NewAdminHandler(services.AdminService(), testAdminToken, logger),
		logger,
	)
	return &testServer{router: router, mr: mr, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestRequestOTPEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/user-registration",
		OTPRequest{Name: "Alice", Email: "alice@example.com"}, nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected 200 success, got %d %+v", rec.Code, resp)
	}
	if srv.mailer.sent != 1 {
		t.Fatalf("expected one mail, got %d", srv.mailer.sent)
	}

	rec, resp = srv.do(t, http.MethodPost, "/api/v1/auth/user-registration",
		OTPRequest{Name: "Alice", Email: "alice@example.com"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on cooldown, got %d", rec.Code)
	}
	if resp.Error != "cooldown" || resp.Message != "You have already requested an OTP! Try again after 1 minute" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestRequestOTPValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		body    interface{}
		message string
	}{
		{"malformed json", `{"email":`, "Invalid request body"},
		{"missing email", OTPRequest{Name: "A"}, "email is required"},
		{"bad email", OTPRequest{Email: "not-an-email"}, "email must be a valid email address"},
		{"markup in name", OTPRequest{Name: "<script>", Email: "a@x.com"}, "name contains invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/forgot-password-user", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if resp.Error != "invalid_request" || resp.Message != tt.message {
				t.Fatalf("unexpected body: %+v", resp)
			}
		})
	}
	if srv.mailer.sent != 0 {
		t.Fatal("invalid requests must not send mail")
	}
}

func TestVerifyEndpointFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	if err := srv.mr.Set(otp.CodeKey("bob@x.com"), "4821"); err != nil {
		t.Fatal(err)
	}

	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/verify-seller",
		VerifyRequest{Email: "bob@x.com", OTP: "48"}, nil)
	if rec.Code != http.StatusBadRequest || resp.Message != "otp must be exactly 4 characters" {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}

	wants := []struct {
		code    string
		message string
	}{
		{"otp_incorrect", "Incorrect OTP! Attempts left: 2"},
		{"otp_incorrect", "Incorrect OTP! Attempts left: 1"},
		{"account_locked", "Account locked due to multiple failed attempts! Account locked for 30 minutes"},
	}
	for i, want := range wants {
		rec, resp = srv.do(t, http.MethodPost, "/api/v1/auth/verify-seller",
			VerifyRequest{Email: "bob@x.com", OTP: "0000"}, nil)
		if rec.Code != http.StatusBadRequest || resp.Error != want.code || resp.Message != want.message {
			t.Fatalf("attempt %d: unexpected response %d %+v", i+1, rec.Code, resp)
		}
	}
	if rec.Header().Get("Retry-After") != "1800" {
		t.Fatalf("expected Retry-After 1800, got %q", rec.Header().Get("Retry-After"))
	}

	rec, resp = srv.do(t, http.MethodPost, "/api/v1/auth/seller-registration",
		OTPRequest{Email: "bob@x.com"}, nil)
	if rec.Code != http.StatusBadRequest || resp.Error != "account_locked" {
		t.Fatalf("expected the lock to gate new requests, got %d %+v", rec.Code, resp)
	}
}

func TestVerifyEndpointSuccess(t *testing.T) {
	srv := newTestServer(t, nil)
	if err := srv.mr.Set(otp.CodeKey("carol@x.com"), "1234"); err != nil {
		t.Fatal(err)
	}

	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/verify-forgot-password-user",
		VerifyRequest{Email: "Carol@X.com", OTP: "1234"}, nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", rec.Code, resp)
	}
	if resp.Message != "OTP verified. You can now reset your password" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rec, resp = srv.do(t, http.MethodPost, "/api/v1/auth/verify-forgot-password-user",
		VerifyRequest{Email: "carol@x.com", OTP: "1234"}, nil)
	if rec.Code != http.StatusBadRequest || resp.Error != "otp_expired" {
		t.Fatalf("expected replay to fail, got %d %+v", rec.Code, resp)
	}
}

func TestRequestOTPDeliveryFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mailer.err = errors.New("kafka down")

	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/user-registration",
		OTPRequest{Email: "d@x.com"}, nil)
	if rec.Code != http.StatusBadGateway || resp.Error != "delivery_failed" {
		t.Fatalf("expected 502, got %d %+v", rec.Code, resp)
	}
}

func TestStoreUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.mr.Close()

	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/user-registration",
		OTPRequest{Email: "e@x.com"}, nil)
	if rec.Code != http.StatusServiceUnavailable || resp.Error != "unavailable" {
		t.Fatalf("expected 503, got %d %+v", rec.Code, resp)
	}

	rec, _ = srv.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unhealthy, got %d", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := map[string]string{adminTokenHeader: testAdminToken}
	for _, key := range []string{otp.LockKey("f@x.com"), otp.SpamLockKey("f@x.com")} {
		if err := srv.mr.Set(key, "true"); err != nil {
			t.Fatal(err)
		}
	}

	rec, _ := srv.do(t, http.MethodGet, "/api/v1/admin/otp/f@x.com", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/otp/f@x.com", nil, map[string]string{adminTokenHeader: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong token, got %d", rec.Code)
	}

	rec, resp := srv.do(t, http.MethodGet, "/api/v1/admin/otp/f@x.com", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("inspect: %d %+v", rec.Code, resp)
	}
	if !strings.Contains(rec.Body.String(), `"lock":{"active":true`) {
		t.Fatalf("expected an active lock in %s", rec.Body.String())
	}

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/otp/stats", nil, auth)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"locks":1`) {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = srv.do(t, http.MethodDelete, "/api/v1/admin/otp/f@x.com/locks", nil, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlock: %d", rec.Code)
	}
	if srv.mr.Exists(otp.LockKey("f@x.com")) || srv.mr.Exists(otp.SpamLockKey("f@x.com")) {
		t.Fatal("expected locks to be cleared")
	}

	rec, resp = srv.do(t, http.MethodGet, "/api/v1/admin/otp/f@x.com/events", nil, auth)
	if rec.Code != http.StatusNotImplemented || resp.Error != "history_unavailable" {
		t.Fatalf("expected 501 history_unavailable, got %d %+v", rec.Code, resp)
	}
	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/otp/f@x.com/events?limit=0", nil, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", rec.Code)
	}

	rec, _ = srv.do(t, http.MethodGet, "/api/v1/admin/otp/not-an-email", nil, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad email, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(cfg *RouterConfig) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		rec, _ := srv.do(t, http.MethodPost, "/api/v1/auth/user-registration", OTPRequest{Email: "bad"}, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d: expected 400, got %d", i+1, rec.Code)
		}
	}
	rec, resp := srv.do(t, http.MethodPost, "/api/v1/auth/user-registration", OTPRequest{Email: "bad"}, nil)
	if rec.Code != http.StatusTooManyRequests || resp.Error != "rate_limited" {
		t.Fatalf("expected 429, got %d %+v", rec.Code, resp)
	}
}

func TestRouterMiscRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, _ := srv.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = srv.do(t, http.MethodGet, "/metrics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}

	rec, resp := srv.do(t, http.MethodGet, "/api/v1/nope", nil, nil)
	if rec.Code != http.StatusNotFound || resp.Error != "not_found" {
		t.Fatalf("not found: %d %+v", rec.Code, resp)
	}
}

func TestRequireHTTPS(t *testing.T) {
	srv := newTestServer(t, func(cfg *RouterConfig) { cfg.RequireHTTPS = true })

	rec, _ := srv.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", rec.Code)
	}
}
