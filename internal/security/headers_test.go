package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", ok)
	r.GET("/accounts", ok)
	r.GET("/v1/overview", ok)
	r.GET("/v1x", ok)
	r.POST("/rpc", ok)
	return r
}

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeaders_Dashboard(t *testing.T) {
	w := do(newRouter(Headers()), http.MethodGet, "/accounts", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, dashboardCSP, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
}

func TestHeaders_API(t *testing.T) {
	r := newRouter(Headers())

	w := do(r, http.MethodGet, "/v1/overview", nil)
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	w = do(r, http.MethodPost, "/rpc", nil)
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))

	w = do(r, http.MethodGet, "/v1x", nil)
	assert.Equal(t, dashboardCSP, w.Header().Get("Content-Security-Policy"), "prefix match is per path segment")
}

func TestHeaders_CustomPrefixes(t *testing.T) {
	w := do(newRouter(Headers("/accounts")), http.MethodGet, "/accounts", nil)
	assert.Equal(t, apiCSP, w.Header().Get("Content-Security-Policy"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"listed origin is echoed", []string{"https://ops.example.com/"}, "https://ops.example.com", "https://ops.example.com"},
		{"wildcard", []string{"*"}, "https://anything.example", "*"},
		{"unlisted origin", []string{"https://ops.example.com"}, "https://evil.example", ""},
		{"no origin header", []string{"*"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newRouter(CORS(tt.allowed...)), http.MethodGet, "/v1/overview", map[string]string{"Origin": tt.origin})
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_VaryOnEchoedOrigin(t *testing.T) {
	w := do(newRouter(CORS("https://ops.example.com")), http.MethodGet, "/v1/overview",
		map[string]string{"Origin": "https://ops.example.com"})
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_Preflight(t *testing.T) {
	w := do(newRouter(CORS("*")), http.MethodOptions, "/rpc", map[string]string{
		"Origin":                        "https://ops.example.com",
		"Access-Control-Request-Method": "POST",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Request-ID")
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	w := do(newRouter(CORS("*")), http.MethodOptions, "/rpc", nil)
	assert.NotEqual(t, http.StatusNoContent, w.Code)
}
