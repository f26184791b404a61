package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

var errBoom = errors.New("boom")

// stubRepo is a test-only in-memory repository.Repository. Sync state,
// resolutions, engine runs and the attribution read/write paths carry real
// logic; the rest are no-ops.
type stubRepo struct {
	mu            sync.Mutex
	fillsByMarket map[string][]models.Fill
	resolutions   map[string]models.MarketResolution
	outcomes      map[string]models.TradeOutcome
	syncStates    map[string]models.SyncState
	runs          map[string]models.EngineRun

	spanning           int64
	failUpsertRes      bool
	failReplaceMetrics bool

	replacedWindow time.Time
	replaced       []models.WalletMetrics
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		fillsByMarket: map[string][]models.Fill{},
		resolutions:   map[string]models.MarketResolution{},
		outcomes:      map[string]models.TradeOutcome{},
		syncStates:    map[string]models.SyncState{},
		runs:          map[string]models.EngineRun{},
	}
}

func (s *stubRepo) ListResolvedMarketIDs(ctx context.Context, since, until *time.Time) ([]string, error) {
	var out []string
	for id, res := range s.resolutions {
		if res.IsDeleted {
			continue
		}
		if since != nil && res.ResolvedAt.Before(*since) {
			continue
		}
		if until != nil && res.ResolvedAt.After(*until) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *stubRepo) ListMarketFillCounts(ctx context.Context, marketIDs []string) ([]repository.MarketFillCount, error) {
	out := make([]repository.MarketFillCount, 0, len(marketIDs))
	for _, id := range marketIDs {
		out = append(out, repository.MarketFillCount{MarketID: id, FillCount: int64(len(s.fillsByMarket[id]))})
	}
	return out, nil
}

func (s *stubRepo) CountCrossMarketTransactions(ctx context.Context, marketIDs []string) (int64, error) {
	return s.spanning, nil
}

func (s *stubRepo) ForEachMarketFill(ctx context.Context, marketID string, batchSize int, fn func(fills []models.Fill) error) error {
	s.mu.Lock()
	fills := s.fillsByMarket[marketID]
	s.mu.Unlock()
	if batchSize <= 0 {
		batchSize = 1000
	}
	for start := 0; start < len(fills); start += batchSize {
		end := start + batchSize
		if end > len(fills) {
			end = len(fills)
		}
		if err := fn(fills[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubRepo) GetResolution(ctx context.Context, marketID string) (*models.MarketResolution, error) {
	res, ok := s.resolutions[marketID]
	if !ok || res.IsDeleted {
		return nil, nil
	}
	out := res
	return &out, nil
}

func (s *stubRepo) UpsertResolutions(ctx context.Context, items []models.MarketResolution) error {
	if s.failUpsertRes {
		return errBoom
	}
	for _, it := range items {
		s.resolutions[it.MarketID] = it
	}
	return nil
}

func (s *stubRepo) UpsertTradeOutcomes(ctx context.Context, items []models.TradeOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.outcomes[it.Wallet+"|"+it.TradeID] = it
	}
	return nil
}

func (s *stubRepo) ForEachTradeOutcome(ctx context.Context, params repository.OutcomeScanParams, fn func(rows []models.TradeOutcome) error) error {
	s.mu.Lock()
	rows := make([]models.TradeOutcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if params.Since != nil && o.EntryTime.Before(*params.Since) {
			continue
		}
		if params.Until != nil && o.EntryTime.After(*params.Until) {
			continue
		}
		rows = append(rows, o)
	}
	s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	return fn(rows)
}

func (s *stubRepo) ListTradeOutcomes(ctx context.Context, params repository.ListTradeOutcomesParams) ([]models.TradeOutcome, error) {
	return nil, nil
}
func (s *stubRepo) CountTradeOutcomes(ctx context.Context, params repository.ListTradeOutcomesParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) ReplaceWalletMetrics(ctx context.Context, windowStart time.Time, items []models.WalletMetrics) error {
	if s.failReplaceMetrics {
		return errBoom
	}
	s.replacedWindow = windowStart
	s.replaced = items
	return nil
}

func (s *stubRepo) GetLatestWalletMetrics(ctx context.Context, wallet string) (*models.WalletMetrics, error) {
	return nil, nil
}
func (s *stubRepo) LatestMetricsWindow(ctx context.Context) (*time.Time, error) { return nil, nil }
func (s *stubRepo) ListWalletMetrics(ctx context.Context, params repository.ListWalletMetricsParams) ([]models.WalletMetrics, error) {
	return nil, nil
}
func (s *stubRepo) CountWalletMetrics(ctx context.Context, params repository.ListWalletMetricsParams) (int64, error) {
	return 0, nil
}

func (s *stubRepo) InsertEngineRun(ctx context.Context, item *models.EngineRun) error {
	if _, ok := s.runs[item.ID]; ok {
		return fmt.Errorf("duplicate run %s", item.ID)
	}
	s.runs[item.ID] = *item
	return nil
}

func (s *stubRepo) UpdateEngineRun(ctx context.Context, item *models.EngineRun) error {
	if _, ok := s.runs[item.ID]; !ok {
		return fmt.Errorf("run %s not found", item.ID)
	}
	s.runs[item.ID] = *item
	return nil
}

func (s *stubRepo) GetEngineRunByID(ctx context.Context, id string) (*models.EngineRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	out := run
	return &out, nil
}

func (s *stubRepo) ListEngineRuns(ctx context.Context, params repository.ListEngineRunsParams) ([]models.EngineRun, error) {
	return nil, nil
}

func (s *stubRepo) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	st, ok := s.syncStates[scope]
	if !ok {
		return nil, nil
	}
	out := st
	return &out, nil
}

func (s *stubRepo) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	s.syncStates[state.Scope] = *state
	return nil
}
