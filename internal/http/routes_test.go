package http_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"voltfarm/internal/config"
	"voltfarm/internal/domain"
	apihttp "voltfarm/internal/http"
	"voltfarm/internal/http/handlers"
	"voltfarm/internal/http/middleware"
	"voltfarm/internal/repository"
	"voltfarm/internal/service"
	"voltfarm/internal/telegram"

	"github.com/gin-gonic/gin"
)

const (
	botToken = "123:test-token"
	secret   = "callback-secret"
	adminID  = 1
)

type testServer struct {
	r      *gin.Engine
	tokens *service.TokenIssuer
}

func newServer(t *testing.T, actionLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		JWTSecret:        "jwt-secret",
		AdminTelegramIDs: []int64{adminID},
		APIRateLimit:     1000,
		APIRateWindow:    time.Minute,
		AuthRateLimit:    100,
		AuthRateWindow:   time.Minute,
		ActionRateLimit:  actionLimit,
		ActionRateWindow: time.Minute,
	}

	withdrawals := repository.NewMemoryWithdrawals()
	svc := service.NewMiningService(service.Deps{
		States: repository.NewMemoryMiners(withdrawals),
		Tasks: repository.NewMemoryTasks(
			domain.Task{ID: "join-channel", Title: "Join channel", Reward: 10, Kind: domain.TaskKindGeneric, Active: true},
		),
		Invoices:     repository.NewMemoryInvoices(),
		Withdrawals:  withdrawals,
		Transactions: repository.NewMemoryTransactions(),
	}, service.DefaultOptions())

	tokens := service.NewTokenIssuer(cfg.JWTSecret, time.Hour)
	h := handlers.NewHandler(svc, tokens, botToken)
	h.WebhookSecret = secret

	r := gin.New()
	apihttp.RegisterRoutes(r, apihttp.Server{
		Config:  cfg,
		Handler: h,
		Health:  handlers.NewHealthHandler("test"),
		Limiter: middleware.NewLimiter(nil),
	})
	return &testServer{r: r, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, header map[string]string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)

	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func (s *testServer) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := s.tokens.Generate(userID)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func signedInitData(userID int64, startParam string) string {
	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	v.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`,"first_name":"Ann"}`)
	if startParam != "" {
		v.Set("start_param", startParam)
	}
	v.Set("hash", hex.EncodeToString(telegram.Sign(v, botToken)))
	return v.Encode()
}

func TestAuth(t *testing.T) {
	s := newServer(t, 100)

	code, body := s.do(t, http.MethodPost, "/api/v1/auth", "", map[string]string{"init_data": signedInitData(42, "")}, nil)
	if code != http.StatusOK {
		t.Fatalf("auth code = %d, body = %v", code, body)
	}
	tok, _ := body["token"].(string)
	if tok == "" {
		t.Fatalf("no token in %v", body)
	}

	code, body = s.do(t, http.MethodGet, "/api/v1/miner", tok, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("miner code = %d", code)
	}
	st := body["state"].(map[string]any)
	if st["user_id"].(float64) != 42 {
		t.Fatalf("state = %v", st)
	}

	tampered := signedInitData(42, "") + "x"
	if code, _ := s.do(t, http.MethodPost, "/api/v1/auth", "", map[string]string{"init_data": tampered}, nil); code != http.StatusUnauthorized {
		t.Fatalf("tampered auth code = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/v1/miner", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous miner code = %d", code)
	}
}

func TestAuthReferral(t *testing.T) {
	s := newServer(t, 100)

	if code, _ := s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"init_data": signedInitData(7, "")}, nil); code != http.StatusOK {
		t.Fatalf("inviter auth code = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/api/auth", "", map[string]string{"init_data": signedInitData(8, "ref_7")}, nil); code != http.StatusOK {
		t.Fatalf("invitee auth code = %d", code)
	}

	_, body := s.do(t, http.MethodGet, "/api/referral/link", s.token(t, 7), nil, nil)
	if body["referrals"].(float64) != 1 {
		t.Fatalf("referral link body = %v", body)
	}
}

func TestTaskCompletion(t *testing.T) {
	s := newServer(t, 100)
	tok := s.token(t, 5)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"first", "/api/v1/tasks/join-channel/complete", http.StatusOK},
		{"repeat", "/api/v1/tasks/join-channel/complete", http.StatusConflict},
		{"unknown", "/api/v1/tasks/nope/complete", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := s.do(t, http.MethodPost, tt.path, tok, nil, nil); code != tt.want {
				t.Fatalf("code = %d, want %d, body = %v", code, tt.want, body)
			}
		})
	}

	_, body := s.do(t, http.MethodGet, "/api/v1/tasks", tok, nil, nil)
	tasks := body["tasks"].([]any)
	if len(tasks) != 1 || !tasks[0].(map[string]any)["completed"].(bool) {
		t.Fatalf("tasks = %v", tasks)
	}
}

func TestWithdrawBelowThreshold(t *testing.T) {
	s := newServer(t, 100)
	code, body := s.do(t, http.MethodPost, "/api/v1/wallet/withdraw", s.token(t, 5), nil, nil)
	if code != http.StatusConflict || body["error"] != "threshold not met" {
		t.Fatalf("code = %d, body = %v", code, body)
	}
}

func TestAdminGate(t *testing.T) {
	s := newServer(t, 100)

	if code, _ := s.do(t, http.MethodGet, "/api/v1/admin/stats", s.token(t, 5), nil, nil); code != http.StatusForbidden {
		t.Fatalf("non-admin code = %d", code)
	}
	code, _ := s.do(t, http.MethodPost, "/api/v1/admin/tasks", s.token(t, adminID), map[string]any{"title": "Follow us", "reward": 3}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create task code = %d", code)
	}
	_, body := s.do(t, http.MethodGet, "/api/v1/admin/stats", s.token(t, adminID), nil, nil)
	if body["active_tasks"].(float64) != 2 {
		t.Fatalf("stats = %v", body)
	}
}

func TestPaymentCallback(t *testing.T) {
	s := newServer(t, 100)
	ev := map[string]any{"payment_id": "p-1", "user_id": 9, "kind": "gpu", "power": 2}

	if code, _ := s.do(t, http.MethodPost, "/payments/callback", "", ev, nil); code != http.StatusUnauthorized {
		t.Fatalf("missing secret code = %d", code)
	}

	hdr := map[string]string{handlers.PaymentSecretHeader: secret}
	code, body := s.do(t, http.MethodPost, "/payments/callback", "", ev, hdr)
	if code != http.StatusOK || body["applied"] != true {
		t.Fatalf("first callback code = %d, body = %v", code, body)
	}
	_, body = s.do(t, http.MethodPost, "/payments/callback", "", ev, hdr)
	if body["applied"] != false {
		t.Fatalf("replay applied = %v", body["applied"])
	}
	st := body["miner"].(map[string]any)["state"].(map[string]any)
	if st["gpu_count"].(float64) != 3 {
		t.Fatalf("gpu_count = %v", st["gpu_count"])
	}
}

func TestActionRateLimit(t *testing.T) {
	s := newServer(t, 2)
	tok := s.token(t, 5)

	for i := 0; i < 2; i++ {
		if code, _ := s.do(t, http.MethodPost, "/api/v1/miner/collect", tok, nil, nil); code != http.StatusOK {
			t.Fatalf("collect %d code = %d", i, code)
		}
	}
	if code, _ := s.do(t, http.MethodPost, "/api/v1/miner/collect", tok, nil, nil); code != http.StatusTooManyRequests {
		t.Fatalf("third collect code = %d", code)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	s := newServer(t, 100)
	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		if code, _ := s.do(t, http.MethodGet, path, "", nil, nil); code != http.StatusOK {
			t.Fatalf("%s code = %d", path, code)
		}
	}
}
