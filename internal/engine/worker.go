package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
)

// runShard processes one shard's markets sequentially, folding into its own
// summary. Per-market failures are counted and skipped; only cancellation
// stops a shard early.
func (e *Engine) runShard(ctx context.Context, sh Shard, p runParams, sum *Summary) error {
	log := e.logger().With(
		zap.Int("shard", sh.Index),
		zap.Int("markets", len(sh.MarketIDs)),
		zap.Int64("weight", sh.Weight),
	)
	log.Info("shard started")
	for i, marketID := range sh.MarketIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.processMarket(ctx, marketID, p, sum); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			sum.MarketsFailed++
			log.Warn("market failed, skipping", zap.String("market_id", marketID), zap.Error(err))
		}
		if (i+1)%100 == 0 {
			log.Info("shard progress", zap.Int("done", i+1))
		}
	}
	log.Info("shard finished", sum.Fields()...)
	return nil
}

func (e *Engine) processMarket(ctx context.Context, marketID string, p runParams, sum *Summary) error {
	var res *models.MarketResolution
	if err := withRetry(ctx, p.retryAttempts, p.retryBase, func() error {
		var err error
		res, err = e.Repo.GetResolution(ctx, marketID)
		return err
	}); err != nil {
		return fmt.Errorf("read resolution: %w", err)
	}

	// A read failure mid-stream restarts the fold from scratch so no fill
	// is counted twice.
	var trades []Trade
	var stats BuildStats
	if err := withRetry(ctx, p.retryAttempts, p.retryBase, func() error {
		builder := NewTradeBuilder(marketID)
		if err := e.Repo.ForEachMarketFill(ctx, marketID, p.readBatchSize, func(fills []models.Fill) error {
			for _, f := range fills {
				builder.Add(f)
			}
			return nil
		}); err != nil {
			return err
		}
		trades = builder.Build()
		stats = builder.Stats
		return nil
	}); err != nil {
		return fmt.Errorf("read fills: %w", err)
	}

	sum.FillsSeen += stats.FillsSeen
	sum.FillsMalformedSkipped += stats.FillsMalformed
	sum.FillsFiltered += stats.FillsFiltered
	sum.FlipTradesDropped += stats.FlipTradesDropped

	positions, keys := GroupPositions(trades)

	resolution, resolved := toResolution(res)
	if !resolved {
		sum.MarketsSkippedUnresolved++
		sum.PositionsSkippedUnresolved += int64(len(keys))
		e.logger().Debug("market unresolved, skipped",
			zap.String("market_id", marketID),
			zap.Int("positions", len(keys)))
		return nil
	}

	batch := make([]models.TradeOutcome, 0, p.writeBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		rows := batch
		if err := withRetry(ctx, p.retryAttempts, p.retryBase, func() error {
			return e.Repo.UpsertTradeOutcomes(ctx, rows)
		}); err != nil {
			return err
		}
		sum.OutcomesWritten += int64(len(rows))
		batch = batch[:0]
		return nil
	}

	for _, key := range keys {
		results, err := AttributePosition(key, positions[key], resolution, p.minTradeCost)
		switch {
		case errors.Is(err, ErrDustPosition):
			sum.PositionsSkippedDust++
			continue
		case errors.Is(err, ErrNoPayoutRate):
			sum.PositionsSkippedUnresolved++
			continue
		case errors.Is(err, ErrInvariant):
			sum.PositionsFailedInvariant++
			e.logger().Error("position excluded from output",
				zap.String("position", key.String()),
				zap.Error(err))
			continue
		case err != nil:
			return fmt.Errorf("attribute position %s: %w", key, err)
		}
		for _, r := range results {
			batch = append(batch, outcomeRow(r, resolution.ResolvedAt, p.computedAt))
			sum.TradesEmitted++
			if len(batch) >= p.writeBatchSize {
				if err := flush(); err != nil {
					return fmt.Errorf("write outcomes: %w", err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("write outcomes: %w", err)
	}
	sum.MarketsProcessed++
	return nil
}

// toResolution converts the stored registry row into payout rates per
// outcome. Deleted rows, unreadable numerators, and zero sums all mean
// "unresolved": skipped, never defaulted.
func toResolution(res *models.MarketResolution) (Resolution, bool) {
	if res == nil || res.IsDeleted || res.ResolvedAt.IsZero() {
		return Resolution{}, false
	}
	var numerators []uint64
	if err := json.Unmarshal(res.PayoutNumerators, &numerators); err != nil || len(numerators) == 0 {
		return Resolution{}, false
	}
	var total uint64
	for _, n := range numerators {
		total += n
	}
	if total == 0 {
		return Resolution{}, false
	}
	den := decimal.NewFromUint64(total)
	rates := make([]decimal.Decimal, len(numerators))
	for i, n := range numerators {
		rates[i] = decimal.NewFromUint64(n).Div(den)
	}
	return Resolution{MarketID: res.MarketID, Rates: rates, ResolvedAt: res.ResolvedAt.UTC()}, true
}

func outcomeRow(r BuyResult, resolvedAt, computedAt time.Time) models.TradeOutcome {
	return models.TradeOutcome{
		Wallet:             r.Trade.Wallet,
		TradeID:            r.Trade.TradeID,
		MarketID:           r.Trade.MarketID,
		OutcomeIndex:       r.Trade.OutcomeIndex,
		EntryTime:          r.Trade.EntryTime,
		Tokens:             r.Trade.Tokens,
		CostUSD:            r.Cost,
		ExitValueUSD:       r.ExitValue,
		PnLUSD:             r.PnL,
		ROI:                r.ROI,
		PctTokensSoldEarly: r.PctSoldEarly,
		IsMaker:            r.Trade.IsMaker,
		ResolvedAt:         resolvedAt,
		ComputedAt:         computedAt,
	}
}
