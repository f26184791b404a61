package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Scotty108/Cascadian-sub021/internal/config"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

// ErrPartitionKey reports transactions whose fills span more than one market.
// Sharding by market would split such a transaction across workers, so the
// run refuses to start.
var ErrPartitionKey = errors.New("transactions spanning multiple markets")

// Engine runs FIFO attribution passes over the fill ledger. Work is sharded
// by market: every transaction belongs to exactly one market, which the
// engine audits before fanning out.
type Engine struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.EngineConfig

	// Now stamps computed_at once per run. Defaults to time.Now.
	Now func() time.Time
}

// RunParams scopes a single pass. Zero fields fall back to configured
// defaults; an empty market list means every market resolved inside the
// window.
type RunParams struct {
	Since        *time.Time
	Until        *time.Time
	MarketIDs    []string
	WorkerCount  int
	MinTradeCost decimal.Decimal
}

type runParams struct {
	workerCount    int
	minTradeCost   decimal.Decimal
	readBatchSize  int
	writeBatchSize int
	retryAttempts  int
	retryBase      time.Duration
	computedAt     time.Time
}

// Run executes one attribution pass and returns the merged summary. The
// summary is valid even on error: it holds whatever the shards completed
// before the run stopped.
func (e *Engine) Run(ctx context.Context, params RunParams) (Summary, error) {
	var sum Summary
	if e == nil || e.Repo == nil {
		return sum, errors.New("engine not configured")
	}
	p := e.normalize(params)
	log := e.logger()

	marketIDs := normalizeMarkets(params.MarketIDs)
	if len(marketIDs) == 0 {
		since, until := e.window(params)
		ids, err := e.Repo.ListResolvedMarketIDs(ctx, since, until)
		if err != nil {
			return sum, fmt.Errorf("enumerate markets: %w", err)
		}
		marketIDs = ids
	}
	sum.MarketsTotal = int64(len(marketIDs))
	if len(marketIDs) == 0 {
		log.Info("attribution run has no markets in scope")
		return sum, nil
	}

	spanning, err := e.Repo.CountCrossMarketTransactions(ctx, marketIDs)
	if err != nil {
		return sum, fmt.Errorf("partition audit: %w", err)
	}
	if spanning > 0 {
		return sum, fmt.Errorf("%w: %d in scope", ErrPartitionKey, spanning)
	}

	counts, err := e.Repo.ListMarketFillCounts(ctx, marketIDs)
	if err != nil {
		return sum, fmt.Errorf("weigh markets: %w", err)
	}
	weights := make(map[string]int64, len(counts))
	for _, c := range counts {
		weights[c.MarketID] = c.FillCount
	}

	shards := packShards(marketIDs, weights, p.workerCount)
	log.Info("attribution run starting",
		zap.Int("markets", len(marketIDs)),
		zap.Int("shards", len(shards)),
		zap.String("min_trade_cost", p.minTradeCost.String()),
		zap.Time("computed_at", p.computedAt),
	)

	results := make([]Summary, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		sh := shards[i]
		out := &results[i]
		g.Go(func() error {
			if err := e.runShard(gctx, sh, p, out); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return fmt.Errorf("shard %d: %w", sh.Index, err)
			}
			return nil
		})
	}
	err = g.Wait()
	for i := range results {
		sum.add(results[i])
	}
	if err != nil {
		return sum, err
	}
	log.Info("attribution run finished", sum.Fields()...)
	return sum, nil
}

func (e *Engine) normalize(params RunParams) runParams {
	p := runParams{
		workerCount:    params.WorkerCount,
		minTradeCost:   params.MinTradeCost,
		readBatchSize:  e.Config.ReadBatchSize,
		writeBatchSize: e.Config.WriteBatchSize,
		retryAttempts:  e.Config.RetryAttempts,
		retryBase:      e.Config.RetryBase,
		computedAt:     e.now().UTC(),
	}
	if p.workerCount <= 0 {
		p.workerCount = e.Config.WorkerCount
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	if p.minTradeCost.IsZero() {
		if v, err := decimal.NewFromString(e.Config.MinTradeCost); err == nil {
			p.minTradeCost = v
		}
	}
	if p.readBatchSize <= 0 {
		p.readBatchSize = 2000
	}
	if p.writeBatchSize <= 0 {
		p.writeBatchSize = 200
	}
	if p.retryAttempts <= 0 {
		p.retryAttempts = 3
	}
	if p.retryBase <= 0 {
		p.retryBase = 500 * time.Millisecond
	}
	return p
}

func (e *Engine) window(params RunParams) (*time.Time, *time.Time) {
	if params.Since != nil || params.Until != nil {
		return params.Since, params.Until
	}
	days := e.Config.WindowDays
	if days <= 0 {
		days = 30
	}
	until := e.now().UTC()
	since := until.AddDate(0, 0, -days)
	return &since, &until
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// normalizeMarkets trims, dedupes and sorts an explicit market list so the
// shard layout is deterministic regardless of caller order.
func normalizeMarkets(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
