package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Scotty108/Cascadian-sub021/internal/config"
	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

// Aggregator rebuilds wallet_metrics from trade_outcomes in one grouped pass
// over a rolling window. Rebuilt wholesale, never mutated incrementally, so
// every row reflects exactly one pass.
type Aggregator struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Config config.MetricsConfig

	// Now stamps computed_at and anchors the window. Defaults to time.Now.
	Now func() time.Time
}

type walletAccum struct {
	trades      int
	scored      int
	wins        int
	losses      int
	rois        []float64
	winRois     []float64
	lossMags    []float64
	volume      decimal.Decimal
	realizedPnL decimal.Decimal
	pctSoldSum  decimal.Decimal
	makerCount  int
	firstEntry  time.Time
	lastEntry   time.Time
}

// Rebuild scans the window's trade outcomes and replaces that window's
// wallet metrics. Returns the number of wallets written. Unscored trades
// (nil roi) stay in volume, pnl, and activity counts but never enter rate
// or distribution statistics.
func (a *Aggregator) Rebuild(ctx context.Context) (int, error) {
	if a == nil || a.Repo == nil {
		return 0, errors.New("aggregator not configured")
	}
	now := a.now().UTC()
	days := a.Config.WindowDays
	if days <= 0 {
		days = 30
	}
	windowStart := now.AddDate(0, 0, -days).Truncate(24 * time.Hour)
	batchSize := a.Config.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}

	accums := map[string]*walletAccum{}
	scan := repository.OutcomeScanParams{Since: &windowStart, Until: &now, BatchSize: batchSize}
	err := a.Repo.ForEachTradeOutcome(ctx, scan, func(rows []models.TradeOutcome) error {
		for i := range rows {
			fold(accums, &rows[i])
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan trade outcomes: %w", err)
	}

	wallets := make([]string, 0, len(accums))
	for w := range accums {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)

	items := make([]models.WalletMetrics, 0, len(wallets))
	for _, w := range wallets {
		items = append(items, buildMetrics(w, accums[w], windowStart, now))
	}
	if err := a.Repo.ReplaceWalletMetrics(ctx, windowStart, items); err != nil {
		return 0, fmt.Errorf("replace wallet metrics: %w", err)
	}
	a.logger().Info("wallet metrics rebuilt",
		zap.Time("window_start", windowStart),
		zap.Int("wallets", len(items)))
	return len(items), nil
}

func fold(accums map[string]*walletAccum, row *models.TradeOutcome) {
	acc := accums[row.Wallet]
	if acc == nil {
		acc = &walletAccum{firstEntry: row.EntryTime, lastEntry: row.EntryTime}
		accums[row.Wallet] = acc
	}
	acc.trades++
	acc.volume = acc.volume.Add(row.CostUSD)
	acc.realizedPnL = acc.realizedPnL.Add(row.PnLUSD)
	acc.pctSoldSum = acc.pctSoldSum.Add(row.PctTokensSoldEarly)
	if row.IsMaker {
		acc.makerCount++
	}
	if row.EntryTime.Before(acc.firstEntry) {
		acc.firstEntry = row.EntryTime
	}
	if row.EntryTime.After(acc.lastEntry) {
		acc.lastEntry = row.EntryTime
	}
	if row.ROI == nil {
		return
	}
	roi := row.ROI.InexactFloat64()
	acc.scored++
	acc.rois = append(acc.rois, roi)
	switch {
	case roi > 0:
		acc.wins++
		acc.winRois = append(acc.winRois, roi)
	case roi < 0:
		acc.losses++
		acc.lossMags = append(acc.lossMags, -roi)
	}
}

func buildMetrics(wallet string, acc *walletAccum, windowStart, now time.Time) models.WalletMetrics {
	item := models.WalletMetrics{
		Wallet:       wallet,
		WindowStart:  windowStart,
		WindowEnd:    now,
		TradesTotal:  acc.trades,
		TradesScored: acc.scored,
		Wins:         acc.wins,
		Losses:       acc.losses,
		VolumeUSD:    acc.volume,
		RealizedPnL:  acc.realizedPnL,
		ComputedAt:   now,
	}

	first := acc.firstEntry
	last := acc.lastEntry
	item.FirstEntryAt = &first
	item.LastEntryAt = &last
	item.ActiveDays = int(last.Sub(first).Hours()/24) + 1
	if acc.trades > 0 {
		perDay := decimal.NewFromInt(int64(acc.trades)).Div(decimal.NewFromInt(int64(item.ActiveDays)))
		item.TradesPerDay = &perDay
		maker := decimal.NewFromInt(int64(acc.makerCount)).Div(decimal.NewFromInt(int64(acc.trades)))
		item.MakerRatio = &maker
		pct := acc.pctSoldSum.Div(decimal.NewFromInt(int64(acc.trades)))
		item.AvgPctSoldEarly = &pct
	}

	if acc.scored == 0 {
		return item
	}
	winRate := float64(acc.wins) / float64(acc.scored)
	lossRate := float64(acc.losses) / float64(acc.scored)
	avgWin := mean(acc.winRois)
	avgLossMag := mean(acc.lossMags)

	item.WinRate = decPtr(winRate)
	item.Expectancy = decPtr(winRate*avgWin - lossRate*avgLossMag)
	item.Score = decPtr(compressedScore(acc.rois))
	item.ROIStdDev = decPtr(stddev(acc.rois, mean(acc.rois)))
	if acc.wins > 0 {
		item.AvgWinROI = decPtr(avgWin)
		item.MedianWinROI = decPtr(median(acc.winRois))
		item.P95WinROI = decPtr(percentile(acc.winRois, 95))
	}
	if acc.losses > 0 {
		item.AvgLossROI = decPtr(-avgLossMag)
		item.P95LossROI = decPtr(-percentile(acc.lossMags, 95))
	}
	return item
}

func decPtr(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Aggregator) logger() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return zap.NewNop()
}
