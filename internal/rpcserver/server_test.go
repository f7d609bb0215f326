package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/risk"
)

func newTestRPC(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := NewMCPServer(newTestServices(t))
	require.NoError(t, err)

	r := gin.New()
	r.POST("/rpc", HTTPHandler(s))
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	return NewClient(ts.URL + "/rpc"), ts
}

func TestRPC_InitializeAndListTools(t *testing.T) {
	c, _ := newTestRPC(t)
	ctx := context.Background()

	info, err := c.Initialize(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(info), ServerName)

	require.NoError(t, c.Ping(ctx))

	names, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"get_account_kpi", "detect_suspicious", "score_account",
		"suggest_detection_params", "get_overview",
	}, names)
}

func TestRPC_CallTool(t *testing.T) {
	c, _ := newTestRPC(t)
	ctx := context.Background()
	_, err := c.Initialize(ctx)
	require.NoError(t, err)

	raw, err := c.CallTool(ctx, OpAccountKPI, map[string]any{"name": "C1"})
	require.NoError(t, err)
	var k kpi.AccountKPI
	require.NoError(t, json.Unmarshal(raw, &k))
	assert.Equal(t, int64(3), k.Out.Count)

	raw, err = c.CallTool(ctx, OpScoreAccount, map[string]any{"name": "C1", "tx_id": 1})
	require.NoError(t, err)
	var a risk.Assessment
	require.NoError(t, json.Unmarshal(raw, &a))
	assert.Equal(t, 100, a.Score)
}

func TestRPC_ToolErrorIsResult(t *testing.T) {
	c, _ := newTestRPC(t)

	_, err := c.CallTool(context.Background(), OpDetectSuspicious, map[string]any{"name": "C1", "max_rows": 0})
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr), "got %v", err)
	assert.Equal(t, "detect_suspicious", toolErr.Tool)
	assert.Contains(t, toolErr.Message, "invalid_parameter")
}

func TestRPC_UnknownMethod(t *testing.T) {
	c, _ := newTestRPC(t)

	_, err := c.Call(context.Background(), "tools/explode", nil)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestRPC_ReadResources(t *testing.T) {
	c, _ := newTestRPC(t)
	ctx := context.Background()

	raw, err := c.ReadResource(ctx, AccountURI("C1"))
	require.NoError(t, err)
	var sum kpi.Summary
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, int64(3), sum.CountOut)

	raw, err = c.ReadResource(ctx, TransactionURI(12345))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":12345,"found":false}`, string(raw))
}

func TestHTTPHandler_ParseError(t *testing.T) {
	_, ts := newTestRPC(t)

	resp, err := http.Post(ts.URL+"/rpc", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Error *RPCError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Error)
	assert.Equal(t, -32700, body.Error.Code)
}

func TestHTTPHandler_Notification(t *testing.T) {
	_, ts := newTestRPC(t)

	resp, err := http.Post(ts.URL+"/rpc", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.backoff.Initial = 0
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	c.backoff.Initial = 0
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 1, calls)
}
