package rpcserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
	"github.com/fraudlens/paysim-monitor/internal/monitor"
)

const (
	ServerName    = "paysim-monitor"
	ServerVersion = "0.3.0"
)

// NewMCPServer creates a configured RPC server with every operation and
// resource template registered. It fails if the operation table is
// incomplete.
func NewMCPServer(svc *monitor.Services) (*server.MCPServer, error) {
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)
	h := NewHandlers(svc)

	table := h.operationTable()
	if err := validateTable(table); err != nil {
		return nil, err
	}
	for _, op := range Operations() {
		entry := table[op]
		s.AddTool(entry.tool, instrument(op.String(), entry.handler))
	}

	s.AddResourceTemplate(ResourceAccount, instrumentResource("resource:account", h.ReadAccount))
	s.AddResourceTemplate(ResourceTransaction, instrumentResource("resource:transaction", h.ReadTransaction))

	return s, nil
}

func instrument(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = logging.WithOperation(ctx, name)
		start := time.Now()

		res, err := next(ctx, req)

		failed := err != nil || (res != nil && res.IsError)
		metrics.ObserveCall(name, start, failed)
		if failed {
			logging.L(ctx).Warn("tool call failed", "error", err, "duration", time.Since(start))
		}
		return res, err
	}
}

func instrumentResource(name string, next server.ResourceTemplateHandlerFunc) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ctx = logging.WithOperation(ctx, name)
		start := time.Now()

		contents, err := next(ctx, req)

		metrics.ObserveCall(name, start, err != nil)
		if err != nil {
			logging.L(ctx).Warn("resource read failed", "uri", req.Params.URI, "error", err)
		}
		return contents, err
	}
}

// HTTPHandler serves one JSON-RPC message per POST body. Notifications get
// 204 No Content.
func HTTPHandler(s *server.MCPServer) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"jsonrpc": mcp.JSONRPC_VERSION,
				"id":      nil,
				"error":   gin.H{"code": mcp.PARSE_ERROR, "message": "request body unreadable"},
			})
			return
		}

		resp := s.HandleMessage(c.Request.Context(), body)
		if resp == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
