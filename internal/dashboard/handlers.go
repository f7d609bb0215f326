// Package dashboard serves the server-rendered analyst pages: dataset
// overview, account analysis, detection with auto-tuning and transaction
// lookup.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/monitor"
	"github.com/fraudlens/paysim-monitor/internal/pagination"
	"github.com/fraudlens/paysim-monitor/internal/risk"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
	"github.com/fraudlens/paysim-monitor/internal/validation"
)

const (
	accountSample = 200
	historyPage   = 20
)

// Handler provides the dashboard pages.
type Handler struct {
	svc *monitor.Services
}

// NewHandler creates a new dashboard handler.
func NewHandler(svc *monitor.Services) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up dashboard routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Overview)
	r.GET("/accounts", h.Accounts)
	r.GET("/detect", h.Detect)
	r.GET("/tx", h.Transaction)
}

type pageMeta struct {
	Title string
	Desc  string
	Nav   string
	Error string
}

type overviewPage struct {
	pageMeta
	Overview *transactions.Overview
}

// Overview renders dataset-wide totals.
func (h *Handler) Overview(c *gin.Context) {
	data := overviewPage{pageMeta: pageMeta{
		Title: "Overview",
		Desc:  "Dataset-wide totals for the loaded PaySim transactions",
		Nav:   "overview",
	}}

	ov, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "overview", data)
		return
	}
	data.Overview = ov
	render(c, http.StatusOK, "overview", data)
}

type accountsPage struct {
	pageMeta
	Name       string
	Accounts   []string
	StepFrom   int
	StepTo     int
	KPI        *kpi.AccountKPI
	Assessment *risk.Assessment
	History    *monitor.HistoryPage
}

// Accounts renders KPIs, a risk assessment and the transaction history for
// the selected account.
func (h *Handler) Accounts(c *gin.Context) {
	ctx := c.Request.Context()
	q := validation.NewQuery(c.Request.URL.Query())
	data := accountsPage{
		pageMeta: pageMeta{
			Title: "Accounts",
			Desc:  "Flow indicators and explainable risk for one account",
			Nav:   "accounts",
		},
		Name:     q.String("name", ""),
		StepFrom: q.Int("step_from", kpi.DefaultStepFrom),
		StepTo:   q.Int("step_to", kpi.DefaultStepTo),
	}
	cursor := q.String("cursor", "")
	data.Accounts = h.accountSample(ctx)

	if err := q.Err(); err != nil {
		data.Error = err.Error()
		render(c, http.StatusBadRequest, "accounts", data)
		return
	}
	if data.Name == "" {
		render(c, http.StatusOK, "accounts", data)
		return
	}
	if !validation.IsValidAccount(data.Name) {
		data.Error = "Account names are 1-64 letters, digits, '.', '_' or '-'."
		render(c, http.StatusBadRequest, "accounts", data)
		return
	}

	rep, err := h.svc.Assessor.Assess(ctx, risk.Request{
		Account:  data.Name,
		StepFrom: data.StepFrom,
		StepTo:   data.StepTo,
		Params:   detection.DefaultParams(),
	})
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "accounts", data)
		return
	}
	data.KPI = rep.KPI
	data.Assessment = rep.Assessment

	hist, err := h.svc.History(ctx, data.Name, cursor, historyPage)
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "accounts", data)
		return
	}
	data.History = hist

	render(c, http.StatusOK, "accounts", data)
}

type detectPage struct {
	pageMeta
	Name       string
	Accounts   []string
	Params     detection.Params
	Auto       bool
	Suggestion *detection.Suggestion
	Result     *detection.Result
	Badge      risk.Badge
	Diagnosis  *detection.Diagnosis
	Assessment *risk.Assessment
}

// Detect runs threshold detection, optionally auto-tuning the parameters
// from the account's amount distribution, and explains empty results.
func (h *Handler) Detect(c *gin.Context) {
	ctx := c.Request.Context()
	q := validation.NewQuery(c.Request.URL.Query())
	def := detection.DefaultParams()
	data := detectPage{
		pageMeta: pageMeta{
			Title: "Detection",
			Desc:  "Large outgoing TRANSFER and CASH_OUT transactions above a threshold",
			Nav:   "detect",
		},
		Name: q.String("name", ""),
		Params: detection.Params{
			MinAmount:   q.Float("min_amount", def.MinAmount),
			WindowSteps: q.Int("window_steps", def.WindowSteps),
			MaxRows:     q.Int("max_rows", def.MaxRows),
		},
		Auto: q.String("auto", "") == "1",
	}
	data.Accounts = h.accountSample(ctx)

	if err := q.Err(); err != nil {
		data.Error = err.Error()
		render(c, http.StatusBadRequest, "detect", data)
		return
	}
	if data.Name == "" {
		render(c, http.StatusOK, "detect", data)
		return
	}
	if !validation.IsValidAccount(data.Name) {
		data.Error = "Account names are 1-64 letters, digits, '.', '_' or '-'."
		render(c, http.StatusBadRequest, "detect", data)
		return
	}

	if data.Auto {
		s, err := h.svc.Detector.Suggest(ctx, data.Name)
		if err != nil {
			render(c, h.fail(c, &data.pageMeta, err), "detect", data)
			return
		}
		data.Suggestion = s
		data.Params.MinAmount = s.MinAmount
		data.Params.WindowSteps = s.WindowSteps
	}

	res, err := h.svc.Detector.Detect(ctx, data.Name, data.Params)
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "detect", data)
		return
	}
	data.Result = res
	data.Badge = risk.QuickBadge(len(res.Matches), res.MaxAmount())

	if len(res.Matches) == 0 {
		stats, err := h.svc.Detector.RiskyStats(ctx, data.Name)
		if err != nil {
			render(c, h.fail(c, &data.pageMeta, err), "detect", data)
			return
		}
		data.Diagnosis = detection.Diagnose(res, stats)
	}

	k, err := h.svc.KPIs.AccountKPI(ctx, data.Name, kpi.DefaultStepFrom, kpi.DefaultStepTo)
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "detect", data)
		return
	}
	data.Assessment = risk.Score(k, res, nil)

	render(c, http.StatusOK, "detect", data)
}

type txPage struct {
	pageMeta
	ID         int64
	MinID      int64
	MaxID      int64
	Missing    bool
	Tx         *transactions.Transaction
	KPI        *kpi.AccountKPI
	Assessment *risk.Assessment
}

// Transaction looks up one transaction and scores it in the context of its
// origin account. random=1 picks an id uniformly from the loaded range.
func (h *Handler) Transaction(c *gin.Context) {
	ctx := c.Request.Context()
	q := validation.NewQuery(c.Request.URL.Query())
	data := txPage{pageMeta: pageMeta{
		Title: "Transactions",
		Desc:  "Single-transaction lookup with account context",
		Nav:   "tx",
	}}

	lo, hi, err := h.svc.IDRange(ctx)
	switch {
	case errors.Is(err, transactions.ErrNotFound):
	case err != nil:
		render(c, h.fail(c, &data.pageMeta, err), "tx", data)
		return
	default:
		data.MinID, data.MaxID = lo, hi
	}

	id := q.OptionalInt64("id")
	if err := q.Err(); err != nil {
		data.Error = err.Error()
		render(c, http.StatusBadRequest, "tx", data)
		return
	}
	if q.String("random", "") == "1" && data.MaxID > 0 {
		pick := data.MinID + rand.Int64N(data.MaxID-data.MinID+1)
		id = &pick
	}
	if id == nil {
		render(c, http.StatusOK, "tx", data)
		return
	}
	data.ID = *id

	tx, err := h.svc.Transaction(ctx, *id)
	if errors.Is(err, transactions.ErrNotFound) {
		data.Missing = true
		render(c, http.StatusNotFound, "tx", data)
		return
	}
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "tx", data)
		return
	}
	data.Tx = tx

	rep, err := h.svc.Assessor.Assess(ctx, risk.Request{
		Account:       tx.OriginAccount,
		StepFrom:      kpi.DefaultStepFrom,
		StepTo:        kpi.DefaultStepTo,
		Params:        detection.DefaultParams(),
		TransactionID: &tx.ID,
	})
	if err != nil {
		render(c, h.fail(c, &data.pageMeta, err), "tx", data)
		return
	}
	data.KPI = rep.KPI
	data.Assessment = rep.Assessment

	render(c, http.StatusOK, "tx", data)
}

// accountSample feeds the account picker. Failures only cost the picker.
func (h *Handler) accountSample(ctx context.Context) []string {
	names, err := h.svc.Accounts(ctx, accountSample)
	if err != nil {
		logging.L(ctx).Warn("account sample unavailable", "error", err)
		return nil
	}
	return names
}

// fail records err on the page and returns the status to render with.
func (h *Handler) fail(c *gin.Context, meta *pageMeta, err error) int {
	switch {
	case errors.Is(err, detection.ErrInvalidParams),
		errors.Is(err, pagination.ErrInvalidCursor):
		meta.Error = err.Error()
		return http.StatusBadRequest
	default:
		logging.L(c.Request.Context()).Error("dashboard query failed", "path", c.Request.URL.Path, "error", err)
		meta.Error = "The query failed. Check the database connection and try again."
		return http.StatusInternalServerError
	}
}

func render(c *gin.Context, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		logging.L(c.Request.Context()).Error("template render failed", "page", name, "error", err)
		c.String(http.StatusInternalServerError, "render error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
