package httpgin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/roster-go/internal/repository"
	"github.com/kirinyoku/roster-go/internal/service"
	"github.com/kirinyoku/roster-go/internal/service/admin"
	"github.com/kirinyoku/roster-go/internal/service/orders"
	"github.com/kirinyoku/roster-go/internal/service/query"
	"github.com/kirinyoku/roster-go/internal/service/reconcile"
	"github.com/kirinyoku/roster-go/internal/service/roster"
	"github.com/kirinyoku/roster-go/internal/signature"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Options struct {
	// Limiter throttles full rebuilds and reconciliation; nil disables it.
	Limiter Limiter
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r.POST("/webhooks/order-status", handleOrderTrigger(svcs))

	// Read API
	r.GET("/rosters/orders/:id", handleGetOrderRoster(svcs))
	r.GET("/rosters/events/:signature", handleListEventRoster(svcs))

	// TODO: add admin middleware
	heavy := RateLimit(opts.Limiter, logger)
	adm := r.Group("/admin")
	{
		adm.POST("/orders/:id/process", handleProcessOrder(svcs))
		adm.POST("/orders/process-batch", handleProcessBatch(svcs))
		adm.POST("/orders/sweep", heavy, handleSweep(svcs))
		adm.GET("/orders/:id/roster", handleGetOrderRoster(svcs))

		adm.POST("/rosters/rebuild", heavy, handleRebuildAll(svcs))
		adm.POST("/rosters/rebuild-orders", handleRebuildOrders(svcs))
		adm.POST("/rosters/reconcile", heavy, handleReconcile(svcs))

		adm.POST("/events/:signature/complete", handleSetEventCompleted(svcs, true))
		adm.POST("/events/:signature/reopen", handleSetEventCompleted(svcs, false))
		adm.GET("/events/:signature/summary", handleEventSummary(svcs))
		adm.GET("/events/:signature/roster", handleListEventRoster(svcs))
	}

	return r
}

// @Summary      Order status changed
// @Description  An order that no longer exists is reported as skipped.
// @Param        req body  OrderTriggerRequest true "payload"
// @Success      200 {object} orders.Result
// @Router       /webhooks/order-status [post]
func handleOrderTrigger(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderTriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svcs.Orders.ProcessOrderByID(c.Request.Context(), roster.NewScope(), req.OrderID)
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.JSON(http.StatusOK, orders.Result{OrderID: req.OrderID, Outcome: orders.OutcomeSkipped})
			return
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Process one order
// @Param    id  path  int  true  "Order ID"
// @Success  200 {object} orders.Result
// @Failure  404 {object} ErrorResponse
// @Failure  422 {object} ErrorResponse "malformed line item"
// @Router   /admin/orders/{id}/process [post]
func handleProcessOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		res, err := svcs.Orders.ProcessOrderByID(c.Request.Context(), roster.NewScope(), orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Process a batch of orders
// @Param    req body  OrderIDsRequest true "payload"
// @Success  200 {object} orders.BatchResult
// @Failure  503 {object} ErrorResponse
// @Router   /admin/orders/process-batch [post]
func handleProcessBatch(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svcs.Orders.ProcessBatch(c.Request.Context(), req.OrderIDs)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Process every order left in processing
// @Success  200 {object} orders.BatchResult
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /admin/orders/sweep [post]
func handleSweep(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Orders.SweepProcessing(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Roster of one order
// @Param    id       path   int   true   "Order ID"
// @Param    dry_run  query  bool  false  "compute without writing"
// @Success  200 {object} RosterResponse
// @Failure  404 {object} ErrorResponse
// @Router   /admin/orders/{id}/roster [get]
func handleGetOrderRoster(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		if parseBool(c.Query("dry_run")) {
			entries, err := svcs.Query.PreviewOrderRoster(c.Request.Context(), orderID)
			if err != nil {
				respondErr(c, err)
				return
			}
			c.JSON(http.StatusOK, toRosterResponse(entries, true))
			return
		}

		entries, err := svcs.Query.OrderRoster(c.Request.Context(), orderID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, toRosterResponse(entries, false), 30*time.Second)
	}
}

// @Summary  Rebuild every roster
// @Param    req body  RebuildRequest false "payload"
// @Success  200 {object} roster.RebuildResult
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  503 {object} ErrorResponse
// @Router   /admin/rosters/rebuild [post]
func handleRebuildAll(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RebuildRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		res, err := svcs.Roster.RebuildAll(c.Request.Context(), roster.RebuildOptions{
			ClearExisting: req.ClearExisting,
			BatchSize:     req.BatchSize,
			Resume:        req.Resume,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

type TargetedResponse struct {
	Rosters    []RosterEntryResponse `json:"rosters"`
	Statistics roster.TargetedStats  `json:"statistics"`
}

// @Summary  Rebuild the rosters of specific orders
// @Param    req body  OrderIDsRequest true "payload"
// @Success  200 {object} TargetedResponse
// @Router   /admin/rosters/rebuild-orders [post]
func handleRebuildOrders(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OrderIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		res, err := svcs.Roster.RebuildSpecificOrders(c.Request.Context(), req.OrderIDs)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, TargetedResponse{
			Rosters:    toRosterResponse(res.Rosters, false).Entries,
			Statistics: res.Statistics,
		})
	}
}

// @Summary  Reconcile rosters with the order store
// @Param    req body  ReconcileRequest false "payload"
// @Success  200 {object} reconcile.Result
// @Failure  400 {object} ErrorResponse
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /admin/rosters/reconcile [post]
func handleReconcile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReconcileRequest
		if !bindOptionalJSON(c, &req) {
			return
		}
		from, err := parseDate(req.DateFrom, false)
		if err != nil {
			badRequest(c, "invalid date_from (RFC3339 or YYYY-MM-DD)")
			return
		}
		to, err := parseDate(req.DateTo, true)
		if err != nil {
			badRequest(c, "invalid date_to (RFC3339 or YYYY-MM-DD)")
			return
		}
		if from != nil && to != nil && to.Before(*from) {
			badRequest(c, "date_to before date_from")
			return
		}

		res, err := svcs.Reconcile.Reconcile(c.Request.Context(), reconcile.Options{
			DateFrom:       from,
			DateTo:         to,
			DeleteObsolete: req.DeleteObsolete,
			BatchSize:      req.BatchSize,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Mark an event completed or reopen it
// @Param    signature  path  string  true  "Event signature"
// @Success  200 {object} admin.EventChange
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{signature}/complete [post]
// @Router   /admin/events/{signature}/reopen [post]
func handleSetEventCompleted(svcs *service.Services, completed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.Param("signature")

		change := svcs.Admin.ReopenEvent
		if completed {
			change = svcs.Admin.SetEventCompleted
		}

		res, err := change(c.Request.Context(), sig)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Row counts of one event
// @Param    signature  path  string  true  "Event signature"
// @Success  200 {object} domain.EventSummary
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{signature}/summary [get]
func handleEventSummary(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig, ok := signatureParam(c)
		if !ok {
			return
		}
		summary, err := svcs.Query.EventSummary(c.Request.Context(), sig)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, summary, 15*time.Second)
	}
}

// @Summary  Roster of one event
// @Param    signature  path   string  true   "Event signature"
// @Param    limit      query  int     false  "page size"
// @Param    offset     query  int     false  "offset"
// @Success  200 {object} RosterResponse
// @Router   /admin/events/{signature}/roster [get]
func handleListEventRoster(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig, ok := signatureParam(c)
		if !ok {
			return
		}
		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		entries, err := svcs.Query.ListEventRoster(c.Request.Context(), sig, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeCachedJSON(c, toRosterResponse(entries, false), 15*time.Second)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func signatureParam(c *gin.Context) (string, bool) {
	sig := c.Param("signature")
	if !signature.Valid(sig) {
		badRequest(c, "invalid event signature")
		return "", false
	}
	return sig, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

// bindOptionalJSON binds the body when there is one.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var extractErr *roster.ExtractionError

	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, query.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, query.ErrEventNotFound), errors.Is(err, admin.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, admin.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid event signature"})
	case errors.As(err, &extractErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: extractErr.Error()})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict"})
	case errors.Is(err, repository.ErrUnavailable):
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
