package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/retry"
)

// RPCError is a JSON-RPC protocol error returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ToolError is a tool result flagged isError by the server.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return e.Tool + ": " + e.Message
}

// Client is a JSON-RPC client for the monitor's /rpc endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
	backoff    retry.Backoff
}

// NewClient creates a client that posts to url.
func NewClient(url string) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff: retry.DefaultBackoff,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes method and returns the raw result. Transport failures and 5xx
// responses are retried with backoff; protocol errors are not.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result json.RawMessage
	err = c.backoff.Do(ctx, func() error {
		var callErr error
		result, callErr = c.post(ctx, data)
		return callErr
	})
	return result, err
}

func (c *Client) post(ctx context.Context, data []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return nil, retry.Permanent(fmt.Errorf("request rejected (%d): %s", resp.StatusCode, string(body)))
	}

	var rr rpcResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if rr.Error != nil {
		return nil, retry.Permanent(rr.Error)
	}
	return rr.Result, nil
}

// Initialize performs the protocol handshake and returns the server info.
func (c *Client) Initialize(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "paysim-smoke", "version": ServerVersion},
	})
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "ping", nil)
	return err
}

// ListTools returns the names of the tools the server offers.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	raw, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode tools/list: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

type contentResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// CallTool invokes op and returns the JSON payload of its text result.
// Tool-level failures come back as *ToolError.
func (c *Client) CallTool(ctx context.Context, op Operation, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.Call(ctx, "tools/call", map[string]any{
		"name":      op.String(),
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var res contentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", op, err)
	}
	if len(res.Content) == 0 {
		return nil, fmt.Errorf("%s returned no content", op)
	}
	if res.IsError {
		return nil, &ToolError{Tool: op.String(), Message: res.Content[0].Text}
	}
	return json.RawMessage(res.Content[0].Text), nil
}

// ReadResource reads uri and returns its JSON text.
func (c *Client) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	raw, err := c.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var res struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode resources/read: %w", err)
	}
	if len(res.Contents) == 0 {
		return nil, errors.New("resource returned no contents")
	}
	return json.RawMessage(res.Contents[0].Text), nil
}

// AccountURI returns the resource URI for an account summary.
func AccountURI(name string) string { return accountURIPrefix + name }

// TransactionURI returns the resource URI for a transaction.
func TransactionURI(id int64) string { return fmt.Sprintf("%s%d", transactionURIPrefix, id) }
