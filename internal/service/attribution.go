package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Scotty108/Cascadian-sub021/internal/engine"
	"github.com/Scotty108/Cascadian-sub021/internal/metrics"
	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

// AttributionService wraps engine runs with persistent bookkeeping: every
// invocation gets an engine_runs row up front, and the final status, summary
// counters and error land on the same row when the run finishes.
type AttributionService struct {
	Repo    repository.Repository
	Engine  *engine.Engine
	Metrics *metrics.Aggregator
	Logger  *zap.Logger
	Now     func() time.Time
}

// RunRequest is a caller-facing run specification. Zero fields fall back to
// the engine's configured defaults.
type RunRequest struct {
	Trigger      string
	Since        *time.Time
	Until        *time.Time
	MarketIDs    []string
	WorkerCount  int
	MinTradeCost string
}

type runScope struct {
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	MarketIDs []string   `json:"market_ids,omitempty"`
}

// StartRun validates the request and records a running engine_runs row.
// The caller decides whether Execute happens inline or in the background.
func (s *AttributionService) StartRun(ctx context.Context, req RunRequest) (*models.EngineRun, error) {
	if s.Repo == nil || s.Engine == nil {
		return nil, errors.New("attribution service not configured")
	}

	minCost := decimal.Zero
	if req.MinTradeCost != "" {
		v, err := decimal.NewFromString(req.MinTradeCost)
		if err != nil {
			return nil, fmt.Errorf("invalid min trade cost %q: %w", req.MinTradeCost, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("invalid min trade cost %q: negative", req.MinTradeCost)
		}
		minCost = v
	}
	if req.WorkerCount < 0 {
		return nil, fmt.Errorf("invalid worker count %d", req.WorkerCount)
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = models.RunTriggerCLI
	}

	scope, err := json.Marshal(runScope{Since: req.Since, Until: req.Until, MarketIDs: req.MarketIDs})
	if err != nil {
		return nil, fmt.Errorf("encode run scope: %w", err)
	}

	run := &models.EngineRun{
		ID:           uuid.NewString(),
		Trigger:      trigger,
		Status:       models.RunStatusRunning,
		Scope:        datatypes.JSON(scope),
		WorkerCount:  req.WorkerCount,
		MinTradeCost: minCost,
		StartedAt:    s.now().UTC(),
	}
	if err := s.Repo.InsertEngineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("insert engine run: %w", err)
	}
	s.logger().Info("engine run recorded",
		zap.String("run_id", run.ID),
		zap.String("trigger", run.Trigger))
	return run, nil
}

// Execute drives the engine for a started run, rebuilds wallet metrics on
// success, and finalizes the run row. A metrics rebuild failure fails the
// run: stale metrics over fresh outcomes would misrank wallets silently.
func (s *AttributionService) Execute(ctx context.Context, run *models.EngineRun, req RunRequest) (engine.Summary, error) {
	sum, runErr := s.Engine.Run(ctx, engine.RunParams{
		Since:        req.Since,
		Until:        req.Until,
		MarketIDs:    req.MarketIDs,
		WorkerCount:  req.WorkerCount,
		MinTradeCost: run.MinTradeCost,
	})
	if runErr == nil && s.Metrics != nil {
		if _, err := s.Metrics.Rebuild(ctx); err != nil {
			runErr = fmt.Errorf("metrics rebuild: %w", err)
		}
	}

	if payload, err := json.Marshal(sum); err == nil {
		run.Summary = datatypes.JSON(payload)
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.RunStatusFailed
		run.Error = &msg
	} else {
		run.Status = models.RunStatusSucceeded
		run.Error = nil
	}
	finished := s.now().UTC()
	run.FinishedAt = &finished

	if err := s.Repo.UpdateEngineRun(ctx, run); err != nil {
		s.logger().Error("failed to finalize engine run",
			zap.String("run_id", run.ID),
			zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finalize engine run: %w", err)
		}
	}
	return sum, runErr
}

// RunOnce starts and executes a run inline. Used by the CLI one-shot mode
// and the cron scheduler.
func (s *AttributionService) RunOnce(ctx context.Context, req RunRequest) (engine.Summary, *models.EngineRun, error) {
	run, err := s.StartRun(ctx, req)
	if err != nil {
		return engine.Summary{}, nil, err
	}
	sum, err := s.Execute(ctx, run, req)
	return sum, run, err
}

func (s *AttributionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AttributionService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
