package repository

import (
	"context"
	"time"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
)

// Repository is the storage boundary for the attribution engine and its
// surrounding services. Fills and resolutions are read-only from the
// engine's perspective; the engine writes trade outcomes, wallet metrics,
// and run bookkeeping.
type Repository interface {
	// Fill ledger (read-only).
	ListResolvedMarketIDs(ctx context.Context, since, until *time.Time) ([]string, error)
	ListMarketFillCounts(ctx context.Context, marketIDs []string) ([]MarketFillCount, error)
	CountCrossMarketTransactions(ctx context.Context, marketIDs []string) (int64, error)
	ForEachMarketFill(ctx context.Context, marketID string, batchSize int, fn func(fills []models.Fill) error) error

	// Resolution registry.
	GetResolution(ctx context.Context, marketID string) (*models.MarketResolution, error)
	UpsertResolutions(ctx context.Context, items []models.MarketResolution) error

	// Trade outcomes.
	UpsertTradeOutcomes(ctx context.Context, items []models.TradeOutcome) error
	ForEachTradeOutcome(ctx context.Context, params OutcomeScanParams, fn func(rows []models.TradeOutcome) error) error
	ListTradeOutcomes(ctx context.Context, params ListTradeOutcomesParams) ([]models.TradeOutcome, error)
	CountTradeOutcomes(ctx context.Context, params ListTradeOutcomesParams) (int64, error)

	// Wallet metrics.
	ReplaceWalletMetrics(ctx context.Context, windowStart time.Time, items []models.WalletMetrics) error
	GetLatestWalletMetrics(ctx context.Context, wallet string) (*models.WalletMetrics, error)
	LatestMetricsWindow(ctx context.Context) (*time.Time, error)
	ListWalletMetrics(ctx context.Context, params ListWalletMetricsParams) ([]models.WalletMetrics, error)
	CountWalletMetrics(ctx context.Context, params ListWalletMetricsParams) (int64, error)

	// Engine runs.
	InsertEngineRun(ctx context.Context, item *models.EngineRun) error
	UpdateEngineRun(ctx context.Context, item *models.EngineRun) error
	GetEngineRunByID(ctx context.Context, id string) (*models.EngineRun, error)
	ListEngineRuns(ctx context.Context, params ListEngineRunsParams) ([]models.EngineRun, error)

	// Sync state.
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
}

type MarketFillCount struct {
	MarketID  string
	FillCount int64
}

// OutcomeScanParams bounds a streamed scan over trade outcomes. The window
// applies to entry_time.
type OutcomeScanParams struct {
	Since     *time.Time
	Until     *time.Time
	BatchSize int
}

type ListTradeOutcomesParams struct {
	Limit    int
	Offset   int
	Wallet   *string
	MarketID *string
	Since    *time.Time
	Until    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListWalletMetricsParams struct {
	Limit       int
	Offset      int
	WindowStart *time.Time
	MinTrades   *int
	OrderBy     string
	Asc         *bool
}

type ListEngineRunsParams struct {
	Limit   int
	Offset  int
	Status  *string
	OrderBy string
	Asc     *bool
}
