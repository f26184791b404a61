package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
	"github.com/Scotty108/Cascadian-sub021/internal/service"
)

type RunsHandler struct {
	Runs   *service.AttributionService
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *RunsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/runs")
	g.POST("", h.trigger)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

type triggerRunRequest struct {
	Since        string   `json:"since"`
	Until        string   `json:"until"`
	MarketIDs    []string `json:"market_ids"`
	WorkerCount  int      `json:"worker_count"`
	MinTradeCost string   `json:"min_trade_cost"`
}

// @Summary Trigger an attribution run
// @Tags runs
// @Success 202 {object} map[string]string
// @Router /api/v1/runs [post]
func (h *RunsHandler) trigger(c *gin.Context) {
	if h.Runs == nil {
		Error(c, http.StatusInternalServerError, "run service unavailable", nil)
		return
	}
	var req triggerRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	since, ok := timeField(req.Since)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	until, ok := timeField(req.Until)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid until", nil)
		return
	}

	runReq := service.RunRequest{
		Trigger:      models.RunTriggerHTTP,
		Since:        since,
		Until:        until,
		MarketIDs:    req.MarketIDs,
		WorkerCount:  req.WorkerCount,
		MinTradeCost: strings.TrimSpace(req.MinTradeCost),
	}
	run, err := h.Runs.StartRun(c.Request.Context(), runReq)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	// The run outlives the request; callers poll GET /runs/:id.
	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.Runs.Execute(ctx, run, runReq); err != nil {
			h.logger().Warn("background run failed",
				zap.String("run_id", run.ID),
				zap.Error(err))
		}
	}()
	Accepted(c, gin.H{"run_id": run.ID, "status": run.Status}, nil)
}

func (h *RunsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListEngineRuns(c.Request.Context(), repository.ListEngineRunsParams{
		Limit:   limit,
		Offset:  offset,
		Status:  strQueryPtr(c, "status"),
		OrderBy: "started_at",
		Asc:     boolPtr(false),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset})
}

func (h *RunsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid run id", nil)
		return
	}
	item, err := h.Repo.GetEngineRunByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "run not found", nil)
		return
	}
	Ok(c, item, nil)
}

func timeField(v string) (*time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, false
	}
	u := ts.UTC()
	return &u, true
}

func (h *RunsHandler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}
