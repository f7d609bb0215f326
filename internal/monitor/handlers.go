package monitor

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fraudlens/paysim-monitor/internal/detection"
	"github.com/fraudlens/paysim-monitor/internal/kpi"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/pagination"
	"github.com/fraudlens/paysim-monitor/internal/risk"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
	"github.com/fraudlens/paysim-monitor/internal/validation"
)

// Handler provides the read-only REST mirror of the RPC tools.
type Handler struct {
	svc *Services
}

// NewHandler creates a new REST handler.
func NewHandler(svc *Services) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up the /v1 routes on r.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/overview", h.GetOverview)
	r.GET("/accounts", h.ListAccounts)

	accounts := r.Group("/accounts/:name", validation.AccountParamMiddleware())
	accounts.GET("/kpi", h.GetKPI)
	accounts.GET("/suspicious", h.GetSuspicious)
	accounts.GET("/suggest", h.GetSuggestion)
	accounts.GET("/risk", h.GetRisk)
	accounts.GET("/transactions", h.ListTransactions)

	r.GET("/transactions/:id", h.GetTransaction)
}

// GetOverview handles GET /v1/overview
func (h *Handler) GetOverview(c *gin.Context) {
	ov, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

// ListAccounts handles GET /v1/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	q := validation.NewQuery(c.Request.URL.Query())
	limit := q.Int("limit", DefaultAccountLimit)
	if err := q.Err(); err != nil {
		invalidParameter(c, err)
		return
	}

	names, err := h.svc.Accounts(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": names, "count": len(names)})
}

// GetKPI handles GET /v1/accounts/:name/kpi
func (h *Handler) GetKPI(c *gin.Context) {
	q := validation.NewQuery(c.Request.URL.Query())
	from := q.Int("step_from", kpi.DefaultStepFrom)
	to := q.Int("step_to", kpi.DefaultStepTo)
	if err := q.Err(); err != nil {
		invalidParameter(c, err)
		return
	}

	k, err := h.svc.KPIs.AccountKPI(c.Request.Context(), c.Param("name"), from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// GetSuspicious handles GET /v1/accounts/:name/suspicious
func (h *Handler) GetSuspicious(c *gin.Context) {
	q := validation.NewQuery(c.Request.URL.Query())
	p := detectionParams(q)
	if err := q.Err(); err != nil {
		invalidParameter(c, err)
		return
	}

	res, err := h.svc.Detector.Detect(c.Request.Context(), c.Param("name"), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetSuggestion handles GET /v1/accounts/:name/suggest
func (h *Handler) GetSuggestion(c *gin.Context) {
	s, err := h.svc.Detector.Suggest(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetRisk handles GET /v1/accounts/:name/risk
func (h *Handler) GetRisk(c *gin.Context) {
	q := validation.NewQuery(c.Request.URL.Query())
	req := risk.Request{
		Account:       c.Param("name"),
		StepFrom:      q.Int("step_from", kpi.DefaultStepFrom),
		StepTo:        q.Int("step_to", kpi.DefaultStepTo),
		Params:        detectionParams(q),
		TransactionID: q.OptionalInt64("tx_id"),
	}
	if err := q.Err(); err != nil {
		invalidParameter(c, err)
		return
	}

	rep, err := h.svc.Assessor.Assess(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ListTransactions handles GET /v1/accounts/:name/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	q := validation.NewQuery(c.Request.URL.Query())
	limit := q.Int("limit", DefaultHistoryLimit)
	cursor := q.String("cursor", "")
	if err := q.Err(); err != nil {
		invalidParameter(c, err)
		return
	}

	page, err := h.svc.History(c.Request.Context(), c.Param("name"), cursor, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetTransaction handles GET /v1/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_parameter",
			"message": "id: must be an integer",
		})
		return
	}

	tx, err := h.svc.Transaction(c.Request.Context(), id)
	if errors.Is(err, transactions.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"id": id, "found": false})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func detectionParams(q *validation.Query) detection.Params {
	def := detection.DefaultParams()
	return detection.Params{
		MinAmount:   q.Float("min_amount", def.MinAmount),
		WindowSteps: q.Int("window_steps", def.WindowSteps),
		MaxRows:     q.Int("max_rows", def.MaxRows),
	}
}

func invalidParameter(c *gin.Context, err error) {
	body := gin.H{
		"error":   "invalid_parameter",
		"message": err.Error(),
	}
	var errs validation.ValidationErrors
	if errors.As(err, &errs) {
		body["details"] = errs
	}
	c.JSON(http.StatusBadRequest, body)
}

// fail maps service errors onto status codes. Store failures are logged and
// reported without their detail.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, detection.ErrInvalidParams),
		errors.Is(err, kpi.ErrEmptyAccount),
		errors.Is(err, pagination.ErrInvalidCursor):
		invalidParameter(c, err)
	case errors.Is(err, transactions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("query failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Query failed",
		})
	}
}
