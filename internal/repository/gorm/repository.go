package gormrepository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Fill ledger -------------------------------------------------------------

func (s *Store) ListResolvedMarketIDs(ctx context.Context, since, until *time.Time) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.MarketResolution{}).
		Where("is_deleted = ?", false)
	if since != nil && !since.IsZero() {
		query = query.Where("resolved_at >= ?", since.UTC())
	}
	if until != nil && !until.IsZero() {
		query = query.Where("resolved_at < ?", until.UTC())
	}
	var ids []string
	if err := query.Order("market_id asc").Pluck("market_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) ListMarketFillCounts(ctx context.Context, marketIDs []string) ([]repository.MarketFillCount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	ids := cleanStrings(marketIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]repository.MarketFillCount, 0, len(ids))
	for _, chunk := range chunkStrings(ids, 500) {
		var rows []repository.MarketFillCount
		err := s.db.WithContext(ctx).
			Model(&models.Fill{}).
			Select("market_id AS market_id, COUNT(*) AS fill_count").
			Where("market_id IN ?", chunk).
			Group("market_id").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// CountCrossMarketTransactions counts transactions whose fills span more than
// one market inside the given scope. Any non-zero result makes market-keyed
// sharding unsound for that scope.
func (s *Store) CountCrossMarketTransactions(ctx context.Context, marketIDs []string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	sub := s.db.WithContext(ctx).
		Model(&models.Fill{}).
		Select("transaction_id").
		Group("transaction_id").
		Having("COUNT(DISTINCT market_id) > 1")
	if ids := cleanStrings(marketIDs); len(ids) > 0 {
		sub = sub.Where("market_id IN ?", ids)
	}
	var n int64
	if err := s.db.WithContext(ctx).Table("(?) AS spanning", sub).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ForEachMarketFill(ctx context.Context, marketID string, batchSize int, fn func(fills []models.Fill) error) error {
	if s == nil || s.db == nil || fn == nil {
		return nil
	}
	if strings.TrimSpace(marketID) == "" {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 2000
	}
	var batch []models.Fill
	res := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	return res.Error
}

// --- Resolution registry -----------------------------------------------------

func (s *Store) GetResolution(ctx context.Context, marketID string) (*models.MarketResolution, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MarketResolution
	err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Where("is_deleted = ?", false).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertResolutions(ctx context.Context, items []models.MarketResolution) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question",
			"payout_numerators",
			"resolved_at",
			"is_deleted",
			"updated_at",
		}),
	}).CreateInBatches(items, 200).Error
}

// --- Trade outcomes ----------------------------------------------------------

func (s *Store) UpsertTradeOutcomes(ctx context.Context, items []models.TradeOutcome) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "trade_id"}},
		// Last write wins only while it is not older than what is stored.
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "trade_outcomes.computed_at <= excluded.computed_at"},
		}},
		DoUpdates: clause.AssignmentColumns([]string{
			"market_id",
			"outcome_index",
			"entry_time",
			"tokens",
			"cost_usd",
			"exit_value_usd",
			"pnl_usd",
			"roi",
			"pct_tokens_sold_early",
			"is_maker",
			"resolved_at",
			"computed_at",
		}),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) ForEachTradeOutcome(ctx context.Context, params repository.OutcomeScanParams, fn func(rows []models.TradeOutcome) error) error {
	if s == nil || s.db == nil || fn == nil {
		return nil
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}
	query := s.db.WithContext(ctx).Model(&models.TradeOutcome{})
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("entry_time >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("entry_time < ?", params.Until.UTC())
	}
	var batch []models.TradeOutcome
	res := query.FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
		return fn(batch)
	})
	return res.Error
}

func (s *Store) ListTradeOutcomes(ctx context.Context, params repository.ListTradeOutcomesParams) ([]models.TradeOutcome, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.outcomeQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "entry_time")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.TradeOutcome
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTradeOutcomes(ctx context.Context, params repository.ListTradeOutcomesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.outcomeQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) outcomeQuery(ctx context.Context, params repository.ListTradeOutcomesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.TradeOutcome{})
	if params.Wallet != nil && strings.TrimSpace(*params.Wallet) != "" {
		query = query.Where("wallet = ?", strings.TrimSpace(*params.Wallet))
	}
	if params.MarketID != nil && strings.TrimSpace(*params.MarketID) != "" {
		query = query.Where("market_id = ?", strings.TrimSpace(*params.MarketID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("entry_time >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("entry_time < ?", params.Until.UTC())
	}
	return query
}

// --- Wallet metrics ----------------------------------------------------------

func (s *Store) ReplaceWalletMetrics(ctx context.Context, windowStart time.Time, items []models.WalletMetrics) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("window_start = ?", windowStart.UTC()).
			Delete(&models.WalletMetrics{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.CreateInBatches(items, 200).Error
	})
}

func (s *Store) GetLatestWalletMetrics(ctx context.Context, wallet string) (*models.WalletMetrics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.WalletMetrics
	err := s.db.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("window_start desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) LatestMetricsWindow(ctx context.Context) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ts sql.NullTime
	row := s.db.WithContext(ctx).
		Model(&models.WalletMetrics{}).
		Select("MAX(window_start)").
		Row()
	if err := row.Scan(&ts); err != nil {
		return nil, err
	}
	if !ts.Valid {
		return nil, nil
	}
	t := ts.Time.UTC()
	return &t, nil
}

func (s *Store) ListWalletMetrics(ctx context.Context, params repository.ListWalletMetricsParams) ([]models.WalletMetrics, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.metricsQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "score")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.WalletMetrics
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountWalletMetrics(ctx context.Context, params repository.ListWalletMetricsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	if err := s.metricsQuery(ctx, params).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) metricsQuery(ctx context.Context, params repository.ListWalletMetricsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.WalletMetrics{})
	if params.WindowStart != nil && !params.WindowStart.IsZero() {
		query = query.Where("window_start = ?", params.WindowStart.UTC())
	}
	if params.MinTrades != nil && *params.MinTrades > 0 {
		query = query.Where("trades_scored >= ?", *params.MinTrades)
	}
	return query
}

// --- Engine runs ---------------------------------------------------------------

func (s *Store) InsertEngineRun(ctx context.Context, item *models.EngineRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateEngineRun(ctx context.Context, item *models.EngineRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.EngineRun{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"status":      item.Status,
			"summary":     item.Summary,
			"error":       item.Error,
			"finished_at": item.FinishedAt,
		}).Error
}

func (s *Store) GetEngineRunByID(ctx context.Context, id string) (*models.EngineRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.EngineRun
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListEngineRuns(ctx context.Context, params repository.ListEngineRunsParams) ([]models.EngineRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EngineRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.EngineRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Sync state ----------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"watermark_ts",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

// --- helpers -------------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func chunkStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = 500
	}
	var chunks [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
