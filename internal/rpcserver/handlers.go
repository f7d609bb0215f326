package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/monitor"
	"github.com/fraudlens/paysim-monitor/internal/risk"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
	"github.com/fraudlens/paysim-monitor/internal/validation"
)

const (
	accountURIPrefix     = "account/"
	transactionURIPrefix = "transaction/"
	jsonMIME             = "application/json"
)

// Handlers holds the handler functions for each RPC tool and resource.
type Handlers struct {
	svc *monitor.Services
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *monitor.Services) *Handlers {
	return &Handlers{svc: svc}
}

// HandleAccountKPI returns flow indicators for an account.
func (h *Handlers) HandleAccountKPI(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req.GetArguments())
	name := a.account("name")
	from := a.int("step_from", kpi.DefaultStepFrom)
	to := a.int("step_to", kpi.DefaultStepTo)
	if err := a.err(); err != nil {
		return invalidParams(err), nil
	}

	k, err := h.svc.KPIs.AccountKPI(ctx, name, from, to)
	if err != nil {
		return failure("compute account KPI", err), nil
	}
	return jsonResult(k)
}

// HandleDetectSuspicious runs threshold detection for an account.
func (h *Handlers) HandleDetectSuspicious(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req.GetArguments())
	name := a.account("name")
	p := detectionParams(a)
	if err := a.err(); err != nil {
		return invalidParams(err), nil
	}

	res, err := h.svc.Detector.Detect(ctx, name, p)
	if err != nil {
		return failure("detect suspicious transfers", err), nil
	}
	return jsonResult(res)
}

// HandleScoreAccount composes KPI, detection and an optional transaction
// into a risk assessment.
func (h *Handlers) HandleScoreAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req.GetArguments())
	r := risk.Request{
		Account:       a.account("name"),
		StepFrom:      a.int("step_from", kpi.DefaultStepFrom),
		StepTo:        a.int("step_to", kpi.DefaultStepTo),
		Params:        detectionParams(a),
		TransactionID: a.optionalInt64("tx_id"),
	}
	if err := a.err(); err != nil {
		return invalidParams(err), nil
	}

	rep, err := h.svc.Assessor.Assess(ctx, r)
	if err != nil {
		return failure("score account", err), nil
	}
	return jsonResult(rep.Assessment)
}

// HandleSuggestParams proposes detection parameters for an account.
func (h *Handlers) HandleSuggestParams(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := newArgs(req.GetArguments())
	name := a.account("name")
	if err := a.err(); err != nil {
		return invalidParams(err), nil
	}

	s, err := h.svc.Detector.Suggest(ctx, name)
	if err != nil {
		return failure("suggest detection parameters", err), nil
	}
	return jsonResult(s)
}

// HandleOverview returns dataset-wide statistics.
func (h *Handlers) HandleOverview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ov, err := h.svc.Overview(ctx)
	if err != nil {
		return failure("load overview", err), nil
	}
	return jsonResult(ov)
}

// ReadAccount serves account/{name}.
func (h *Handlers) ReadAccount(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	name := strings.TrimPrefix(uri, accountURIPrefix)
	if !validation.IsValidAccount(name) {
		return nil, fmt.Errorf("invalid account name in %q", uri)
	}

	sum, err := h.svc.KPIs.Summary(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return jsonContents(uri, sum)
}

// NotFound is returned in place of a transaction that does not exist.
type NotFound struct {
	ID    int64 `json:"id"`
	Found bool  `json:"found"`
}

// ReadTransaction serves transaction/{id}.
func (h *Handlers) ReadTransaction(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id, err := strconv.ParseInt(strings.TrimPrefix(uri, transactionURIPrefix), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id in %q", uri)
	}

	tx, err := h.svc.Transaction(ctx, id)
	if errors.Is(err, transactions.ErrNotFound) {
		return jsonContents(uri, NotFound{ID: id, Found: false})
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return jsonContents(uri, tx)
}

func detectionParams(a *args) detection.Params {
	def := detection.DefaultParams()
	return detection.Params{
		MinAmount:   a.float("min_amount", def.MinAmount),
		WindowSteps: a.int("window_steps", def.WindowSteps),
		MaxRows:     a.int("max_rows", def.MaxRows),
	}
}

// --- Result helpers ---

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: jsonMIME, Text: string(b)},
	}, nil
}

func invalidParams(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_parameter: " + err.Error())
}

// failure turns a service error into a tool error result. Caller mistakes
// keep their specific code so clients can tell them from outages.
func failure(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, detection.ErrInvalidParams),
		errors.Is(err, kpi.ErrEmptyAccount),
		errors.Is(err, detection.ErrEmptyAccount):
		return invalidParams(err)
	case errors.Is(err, transactions.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
	}
}
