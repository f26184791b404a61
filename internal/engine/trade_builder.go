package engine

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
)

// Trade is one decision unit: every fill sharing a transaction, wallet,
// market, and outcome, folded together. Positive tokens is a buy, negative a
// sell, zero a flip that offset itself inside one transaction.
type Trade struct {
	TradeID      string
	Wallet       string
	MarketID     string
	OutcomeIndex uint8
	EntryTime    time.Time
	Tokens       decimal.Decimal
	Cash         decimal.Decimal
	IsMaker      bool
}

type tradeKey struct {
	tradeID      string
	wallet       string
	outcomeIndex uint8
}

// BuildStats counts what the builder dropped on the way to trades.
type BuildStats struct {
	FillsSeen         int64
	FillsMalformed    int64
	FillsFiltered     int64
	FlipTradesDropped int64
}

// TradeBuilder folds a fill stream into trades for one market. Fills arrive
// in storage batches; only the per-decision accumulators are held, so a
// market's fill volume never dictates memory.
type TradeBuilder struct {
	marketID string
	trades   map[tradeKey]*Trade

	Stats BuildStats
}

func NewTradeBuilder(marketID string) *TradeBuilder {
	return &TradeBuilder{
		marketID: marketID,
		trades:   make(map[tradeKey]*Trade),
	}
}

// Add folds one fill. Malformed fills, maker-side self-fills, and burn-wallet
// fills are dropped and counted.
func (b *TradeBuilder) Add(f models.Fill) {
	b.Stats.FillsSeen++
	if f.TransactionID == "" || f.Wallet == "" || f.MarketID == "" || f.EventTime.IsZero() {
		b.Stats.FillsMalformed++
		return
	}
	if f.IsSelfFill && f.IsMaker {
		b.Stats.FillsFiltered++
		return
	}
	if isBurnWallet(f.Wallet) {
		b.Stats.FillsFiltered++
		return
	}

	key := tradeKey{tradeID: f.TransactionID, wallet: f.Wallet, outcomeIndex: f.OutcomeIndex}
	t, ok := b.trades[key]
	if !ok {
		t = &Trade{
			TradeID:      f.TransactionID,
			Wallet:       f.Wallet,
			MarketID:     b.marketID,
			OutcomeIndex: f.OutcomeIndex,
			EntryTime:    f.EventTime,
		}
		b.trades[key] = t
	}
	if f.EventTime.Before(t.EntryTime) {
		t.EntryTime = f.EventTime
	}
	t.Tokens = t.Tokens.Add(f.TokenDelta)
	t.Cash = t.Cash.Add(f.CashDelta)
	t.IsMaker = t.IsMaker || f.IsMaker
}

// Build returns the accumulated trades, dropping net-zero flips. Order is
// stable: entry time, then trade id, then wallet, then outcome.
func (b *TradeBuilder) Build() []Trade {
	out := make([]Trade, 0, len(b.trades))
	for _, t := range b.trades {
		if t.Tokens.IsZero() {
			b.Stats.FlipTradesDropped++
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		if out[i].TradeID != out[j].TradeID {
			return out[i].TradeID < out[j].TradeID
		}
		if out[i].Wallet != out[j].Wallet {
			return out[i].Wallet < out[j].Wallet
		}
		return out[i].OutcomeIndex < out[j].OutcomeIndex
	})
	return out
}

func isBurnWallet(wallet string) bool {
	return common.IsHexAddress(wallet) && common.HexToAddress(wallet) == (common.Address{})
}
