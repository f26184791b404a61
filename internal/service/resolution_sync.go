package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	polymarketgamma "github.com/Scotty108/Cascadian-sub021/internal/client/polymarket/gamma"
	"github.com/Scotty108/Cascadian-sub021/internal/config"
	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

const resolutionSyncScope = "resolution_sync"

// MarketSource is the slice of the Gamma client the resolution sync needs.
type MarketSource interface {
	ListClosedMarkets(ctx context.Context, params polymarketgamma.ListClosedMarketsParams) ([]polymarketgamma.Market, error)
	GetMarketRaw(ctx context.Context, marketID string) ([]byte, error)
}

// ResolutionSyncService pages closed markets from Gamma and mirrors their
// payout information into market_resolutions, advancing a persistent cursor
// so each run only walks markets that closed since the last success.
type ResolutionSyncService struct {
	Repo   repository.Repository
	Gamma  MarketSource
	Config config.ResolutionSyncConfig
	Logger *zap.Logger
	Now    func() time.Time
}

type ResolutionSyncStats struct {
	PagesFetched    int       `json:"pages_fetched"`
	MarketsSeen     int       `json:"markets_seen"`
	MarketsUpserted int       `json:"markets_upserted"`
	MarketsSkipped  int       `json:"markets_skipped"`
	Watermark       time.Time `json:"watermark"`
}

// RunOnce performs one full sync pass. The watermark only advances past
// markets whose page has been fully persisted, so a mid-run failure re-reads
// that page on the next pass instead of losing it.
func (s *ResolutionSyncService) RunOnce(ctx context.Context) (ResolutionSyncStats, error) {
	var stats ResolutionSyncStats
	if s.Repo == nil || s.Gamma == nil {
		return stats, errors.New("resolution sync not configured")
	}

	pageLimit := s.Config.PageLimit
	if pageLimit <= 0 {
		pageLimit = 250
	}
	maxPages := s.Config.MaxPages
	if maxPages <= 0 {
		maxPages = 40
	}
	overlap := s.Config.Overlap
	if overlap <= 0 {
		overlap = time.Hour
	}

	now := s.now().UTC()
	state, err := s.Repo.GetSyncState(ctx, resolutionSyncScope)
	if err != nil {
		return stats, fmt.Errorf("load sync state: %w", err)
	}
	from := s.startFrom(state, now, overlap)

	watermark := time.Time{}
	if state != nil && state.WatermarkTS != nil {
		watermark = state.WatermarkTS.UTC()
	}

	s.logger().Info("resolution sync starting",
		zap.Time("from", from),
		zap.Int("page_limit", pageLimit))

	offset := 0
	drained := false
	for page := 0; page < maxPages; page++ {
		markets, err := s.Gamma.ListClosedMarkets(ctx, polymarketgamma.ListClosedMarketsParams{
			Limit:      pageLimit,
			Offset:     offset,
			EndDateMin: from,
		})
		if err != nil {
			err = fmt.Errorf("list closed markets at offset %d: %w", offset, err)
			s.saveState(ctx, state, watermark, now, stats, err)
			return stats, err
		}
		stats.PagesFetched++
		stats.MarketsSeen += len(markets)
		if len(markets) == 0 {
			drained = true
			break
		}

		batch := make([]models.MarketResolution, 0, len(markets))
		pageMax := time.Time{}
		for _, mkt := range markets {
			res, reason := s.resolutionFromMarket(ctx, mkt)
			if res == nil {
				stats.MarketsSkipped++
				s.logger().Debug("skipping market",
					zap.String("market_id", mkt.ID),
					zap.String("reason", reason))
				continue
			}
			batch = append(batch, *res)
			if res.ResolvedAt.After(pageMax) {
				pageMax = res.ResolvedAt
			}
		}

		if len(batch) > 0 {
			if err := s.Repo.UpsertResolutions(ctx, batch); err != nil {
				err = fmt.Errorf("upsert resolutions at offset %d: %w", offset, err)
				s.saveState(ctx, state, watermark, now, stats, err)
				return stats, err
			}
			stats.MarketsUpserted += len(batch)
			if pageMax.After(watermark) {
				watermark = pageMax
			}
		}

		if len(markets) < pageLimit {
			drained = true
			break
		}
		offset += len(markets)
	}
	if !drained {
		s.logger().Warn("resolution sync stopped by page budget",
			zap.Int("max_pages", maxPages),
			zap.Int("markets_seen", stats.MarketsSeen))
	}

	stats.Watermark = watermark
	s.saveState(ctx, state, watermark, now, stats, nil)

	s.logger().Info("resolution sync finished",
		zap.Int("pages", stats.PagesFetched),
		zap.Int("seen", stats.MarketsSeen),
		zap.Int("upserted", stats.MarketsUpserted),
		zap.Int("skipped", stats.MarketsSkipped),
		zap.Time("watermark", watermark))
	return stats, nil
}

// resolutionFromMarket converts one Gamma market into a resolution row, or
// returns a skip reason. When the listing omits outcome prices it re-fetches
// the raw market body once, best effort.
func (s *ResolutionSyncService) resolutionFromMarket(ctx context.Context, mkt polymarketgamma.Market) (*models.MarketResolution, string) {
	id := strings.TrimSpace(mkt.ID)
	if id == "" {
		return nil, "missing market id"
	}

	resolvedAt, ok := parseGammaTime(mkt.ClosedTime)
	if !ok {
		resolvedAt, ok = parseGammaTime(mkt.EndDate)
	}
	if !ok {
		return nil, "no usable close time"
	}

	prices := strings.TrimSpace(mkt.OutcomePrices)
	if prices == "" {
		if raw, err := s.Gamma.GetMarketRaw(ctx, id); err == nil {
			prices = outcomePricesFromRaw(raw)
		}
	}
	nums, err := payoutNumerators(prices)
	if err != nil {
		return nil, "outcome prices: " + err.Error()
	}

	payload, err := json.Marshal(nums)
	if err != nil {
		return nil, "encode numerators: " + err.Error()
	}
	return &models.MarketResolution{
		MarketID:         id,
		Question:         strings.TrimSpace(mkt.Question),
		PayoutNumerators: datatypes.JSON(payload),
		ResolvedAt:       resolvedAt,
	}, ""
}

func (s *ResolutionSyncService) startFrom(state *models.SyncState, now time.Time, overlap time.Duration) time.Time {
	if state != nil && state.WatermarkTS != nil {
		return state.WatermarkTS.Add(-overlap).UTC()
	}
	if ts, ok := parseGammaTime(s.Config.InitialFrom); ok {
		return ts
	}
	return now.AddDate(0, 0, -90)
}

func (s *ResolutionSyncService) saveState(ctx context.Context, prev *models.SyncState, watermark, attemptedAt time.Time, stats ResolutionSyncStats, runErr error) {
	st := &models.SyncState{
		Scope:         resolutionSyncScope,
		LastAttemptAt: &attemptedAt,
	}
	if !watermark.IsZero() {
		wm := watermark
		st.WatermarkTS = &wm
	}
	if runErr != nil {
		msg := runErr.Error()
		st.LastError = &msg
		if prev != nil {
			st.LastSuccessAt = prev.LastSuccessAt
		}
	} else {
		ok := attemptedAt
		st.LastSuccessAt = &ok
	}
	if payload, err := json.Marshal(stats); err == nil {
		st.StatsJSON = datatypes.JSON(payload)
	}
	if err := s.Repo.SaveSyncState(ctx, st); err != nil {
		s.logger().Warn("failed to persist sync state", zap.Error(err))
	}
}

// payoutNumerators converts a Gamma outcomePrices payload (a JSON string
// array like `["1","0"]`, occasionally bare numbers) into integer payout
// numerators scaled by 1e4. Prices must land on the 1e-4 grid within [0, 1]
// and cannot all be zero.
func payoutNumerators(outcomePrices string) ([]uint64, error) {
	trimmed := strings.TrimSpace(outcomePrices)
	if trimmed == "" {
		return nil, errors.New("empty")
	}
	var raw []string
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		var nums []float64
		if err2 := json.Unmarshal([]byte(trimmed), &nums); err2 != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		raw = make([]string, 0, len(nums))
		for _, f := range nums {
			raw = append(raw, strconv.FormatFloat(f, 'f', -1, 64))
		}
	}
	if len(raw) == 0 {
		return nil, errors.New("no outcomes")
	}

	out := make([]uint64, len(raw))
	var total uint64
	for i, p := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("outcome %d: %w", i, err)
		}
		scaled := d.Shift(4)
		if scaled.IsNegative() || !scaled.IsInteger() {
			return nil, fmt.Errorf("outcome %d: price %s off the payout grid", i, d)
		}
		v := scaled.BigInt().Uint64()
		if v > 10000 {
			return nil, fmt.Errorf("outcome %d: price %s above 1", i, d)
		}
		out[i] = v
		total += v
	}
	if total == 0 {
		return nil, errors.New("all prices zero")
	}
	return out, nil
}

var gammaTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
}

func parseGammaTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range gammaTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func outcomePricesFromRaw(raw []byte) string {
	var body struct {
		OutcomePrices string `json:"outcomePrices"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.OutcomePrices)
}

func (s *ResolutionSyncService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ResolutionSyncService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
