package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// unreachableStore fails every ping, as a lost database connection would
type unreachableStore struct {
	*transactions.MemoryStore
}

func (unreachableStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:         "0",
		Env:          "development",
		LogLevel:     "error",
		LogFormat:    "json",
		CacheTTL:     time.Minute,
		RateLimitRPM: 1000,
		MaxRows:      100,
	}
}

func seededStore(t *testing.T) *transactions.MemoryStore {
	t.Helper()
	store := transactions.NewMemoryStore()
	_, err := store.BulkInsert(context.Background(), []*transactions.Transaction{
		{Step: 1, Type: transactions.TypeTransfer, Amount: 400000, OriginAccount: "C1", OriginOldBalance: 400000, DestinationAccount: "C9", IsFraud: true},
		{Step: 2, Type: transactions.TypePayment, Amount: 12.5, OriginAccount: "C1", DestinationAccount: "M1"},
		{Step: 3, Type: transactions.TypeCashIn, Amount: 900, OriginAccount: "C2", DestinationAccount: "C1"},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// newTestServer creates a server over a seeded in-memory store
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithStore(seededStore(t))}, opts...)
	s, err := New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	s.Router().ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp.Status)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("Expected store and cache checks, got %+v", resp.Checks)
	}
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	s, err := New(testConfig(), WithStore(unreachableStore{transactions.NewMemoryStore()}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer s.rateLimiter.Stop()

	w := serve(s, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("Expected failure detail in body, got %s", w.Body.String())
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Server hasn't called Run() so ready is false
	w := serve(s, "GET", "/health/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "paysim_") {
		t.Error("Expected paysim metrics in exposition")
	}
}

// ---------------------------------------------------------------------------
// Middleware tests
// ---------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/health/live", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated X-Request-ID")
	}

	req := httptest.NewRequest("GET", "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("Expected propagated request id, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/", "")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPM = 1
	s, err := New(cfg, WithStore(seededStore(t)))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer s.rateLimiter.Stop()

	var limited bool
	for i := 0; i < 50; i++ {
		if serve(s, "GET", "/v1/overview", "").Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("Expected 429 after exhausting the burst")
	}

	// Health probes are exempt
	if w := serve(s, "GET", "/health/live", ""); w.Code != http.StatusOK {
		t.Errorf("Expected exempt health probe, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/v1/overview", http.StatusOK},
		{"GET", "/v1/accounts", http.StatusOK},
		{"GET", "/v1/accounts/C1/kpi", http.StatusOK},
		{"GET", "/v1/accounts/C1/suspicious", http.StatusOK},
		{"GET", "/v1/accounts/C1/suggest", http.StatusOK},
		{"GET", "/v1/accounts/C1/risk", http.StatusOK},
		{"GET", "/v1/accounts/C1/transactions", http.StatusOK},
		{"GET", "/v1/transactions/1", http.StatusOK},
		{"GET", "/v1/transactions/99", http.StatusNotFound},
		{"GET", "/", http.StatusOK},
		{"GET", "/accounts?name=C1", http.StatusOK},
		{"GET", "/detect?name=C1", http.StatusOK},
		{"GET", "/tx?id=1", http.StatusOK},
	}

	for _, r := range routes {
		w := serve(s, r.method, r.path, "")
		if w.Code != r.want {
			t.Errorf("%s %s: expected %d, got %d: %s", r.method, r.path, r.want, w.Code, w.Body.String())
		}
	}
}

func TestRiskEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/v1/accounts/C1/risk?tx_id=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Assessment struct {
			Score    int    `json:"score"`
			Severity string `json:"severity"`
		} `json:"assessment"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	// R1 25 + R2 20 + R3 25 + R5 25 + R7 capped at 20
	if resp.Assessment.Score != 100 || resp.Assessment.Severity != "High" {
		t.Errorf("Expected 100/High, got %d/%s", resp.Assessment.Score, resp.Assessment.Severity)
	}
}

func TestInvalidParameter(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/v1/accounts/C1/kpi?step_to=soon", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"invalid_parameter"`) {
		t.Errorf("Expected invalid_parameter error, got %s", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// JSON-RPC endpoint tests
// ---------------------------------------------------------------------------

func TestRPCEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "POST", "/rpc", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_account_kpi","arguments":{"name":"C1"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Result.IsError || len(resp.Result.Content) == 0 {
		t.Fatalf("Expected tool result, got %s", w.Body.String())
	}
	if !strings.Contains(resp.Result.Content[0].Text, `"nb_out":2`) {
		t.Errorf("Expected two outgoing transactions, got %s", resp.Result.Content[0].Text)
	}
}

func TestRPCEndpoint_GetNotAllowed(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/rpc", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for GET /rpc, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, "GET", "/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("Expected not_found body, got %s", w.Body.String())
	}
}

func TestMaskDSN(t *testing.T) {
	got := maskDSN("postgres://paysim:secret@db:5432/paysim?sslmode=disable")
	if strings.Contains(got, "secret") {
		t.Errorf("password leaked: %s", got)
	}
	if !strings.Contains(got, "paysim:") {
		t.Errorf("username dropped: %s", got)
	}
}
