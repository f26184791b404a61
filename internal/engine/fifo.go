package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDustPosition marks a position whose every buy is below the dust
	// threshold; it is skipped whole, there is no usable denominator.
	ErrDustPosition = errors.New("every buy below dust threshold")
	// ErrNoPayoutRate marks a position whose outcome index has no payout
	// rate in the market's resolution.
	ErrNoPayoutRate = errors.New("no payout rate for outcome")
	// ErrInvariant marks a FIFO conservation violation. The position is
	// excluded from output, never clamped.
	ErrInvariant = errors.New("fifo conservation violated")
)

// Resolution is a market's settlement in domain form: one payout rate per
// outcome index, rates summing to 1 across outcomes.
type Resolution struct {
	MarketID   string
	Rates      []decimal.Decimal
	ResolvedAt time.Time
}

func (r Resolution) Rate(outcome uint8) (decimal.Decimal, bool) {
	if int(outcome) >= len(r.Rates) {
		return decimal.Decimal{}, false
	}
	return r.Rates[int(outcome)], true
}

// PositionKey identifies one wallet/market/outcome aggregate.
type PositionKey struct {
	Wallet       string
	MarketID     string
	OutcomeIndex uint8
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Wallet, k.MarketID, k.OutcomeIndex)
}

// BuyResult is the FIFO verdict for one buy decision.
type BuyResult struct {
	Trade        Trade
	Consumed     decimal.Decimal
	TokensHeld   decimal.Decimal
	Cost         decimal.Decimal
	ExitValue    decimal.Decimal
	PnL          decimal.Decimal
	ROI          *decimal.Decimal
	PctSoldEarly decimal.Decimal
}

type buyState struct {
	trade     Trade
	remaining decimal.Decimal
	consumed  decimal.Decimal
}

// AttributePosition walks one position's sells in time order, consuming
// tokens from the oldest buys first, then values every buy against the
// pooled sell proceeds and the resolution payout. Sells at or after
// resolved_at are settlement, not exits, and are ignored. Proceeds are
// pooled across the position and allocated pro-rata by consumed tokens.
func AttributePosition(key PositionKey, trades []Trade, res Resolution, minTradeCost decimal.Decimal) ([]BuyResult, error) {
	rate, ok := res.Rate(key.OutcomeIndex)
	if !ok {
		return nil, fmt.Errorf("%w: position %s has %d rates", ErrNoPayoutRate, key, len(res.Rates))
	}

	var buys []*buyState
	var sells []Trade
	for _, t := range trades {
		switch {
		case t.Tokens.IsPositive():
			buys = append(buys, &buyState{trade: t, remaining: t.Tokens})
		case t.Tokens.IsNegative():
			if t.EntryTime.Before(res.ResolvedAt) {
				sells = append(sells, t)
			}
		}
	}
	if len(buys) == 0 {
		return nil, nil
	}

	sort.Slice(buys, func(i, j int) bool {
		if !buys[i].trade.EntryTime.Equal(buys[j].trade.EntryTime) {
			return buys[i].trade.EntryTime.Before(buys[j].trade.EntryTime)
		}
		return buys[i].trade.TradeID < buys[j].trade.TradeID
	})
	sort.Slice(sells, func(i, j int) bool {
		if !sells[i].EntryTime.Equal(sells[j].EntryTime) {
			return sells[i].EntryTime.Before(sells[j].EntryTime)
		}
		return sells[i].TradeID < sells[j].TradeID
	})

	allDust := true
	for _, b := range buys {
		if cost := b.trade.Cash.Neg(); cost.IsPositive() && cost.GreaterThanOrEqual(minTradeCost) {
			allDust = false
			break
		}
	}
	if allDust {
		return nil, fmt.Errorf("%w: position %s", ErrDustPosition, key)
	}

	totalSold := decimal.Zero
	totalProceeds := decimal.Zero
	oldest := 0
	for _, s := range sells {
		size := s.Tokens.Neg()
		totalSold = totalSold.Add(size)
		totalProceeds = totalProceeds.Add(s.Cash)
		for size.IsPositive() && oldest < len(buys) {
			b := buys[oldest]
			if !b.remaining.IsPositive() {
				oldest++
				continue
			}
			take := decimal.Min(size, b.remaining)
			b.consumed = b.consumed.Add(take)
			b.remaining = b.remaining.Sub(take)
			size = size.Sub(take)
			if b.remaining.IsZero() {
				oldest++
			}
		}
	}

	for _, b := range buys {
		if b.consumed.GreaterThan(b.trade.Tokens) || b.remaining.IsNegative() {
			return nil, fmt.Errorf("%w: position %s trade %s consumed=%s tokens=%s remaining=%s",
				ErrInvariant, key, b.trade.TradeID, b.consumed, b.trade.Tokens, b.remaining)
		}
	}

	results := make([]BuyResult, 0, len(buys))
	for _, b := range buys {
		held := b.trade.Tokens.Sub(b.consumed)
		exit := decimal.Zero
		if totalSold.IsPositive() && b.consumed.IsPositive() {
			exit = b.consumed.Mul(totalProceeds).Div(totalSold)
		}
		exit = exit.Add(held.Mul(rate))
		cost := b.trade.Cash.Neg()
		pnl := exit.Sub(cost)

		var roi *decimal.Decimal
		if cost.IsPositive() && cost.GreaterThanOrEqual(minTradeCost) {
			r := pnl.Div(cost)
			roi = &r
		}

		results = append(results, BuyResult{
			Trade:        b.trade,
			Consumed:     b.consumed,
			TokensHeld:   held,
			Cost:         cost,
			ExitValue:    exit,
			PnL:          pnl,
			ROI:          roi,
			PctSoldEarly: b.consumed.Div(b.trade.Tokens),
		})
	}
	return results, nil
}

// GroupPositions buckets one market's trades by wallet and outcome. Keys come
// back sorted so iteration order is stable across runs.
func GroupPositions(trades []Trade) (map[PositionKey][]Trade, []PositionKey) {
	positions := make(map[PositionKey][]Trade)
	for _, t := range trades {
		key := PositionKey{Wallet: t.Wallet, MarketID: t.MarketID, OutcomeIndex: t.OutcomeIndex}
		positions[key] = append(positions[key], t)
	}
	keys := make([]PositionKey, 0, len(positions))
	for k := range positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Wallet != keys[j].Wallet {
			return keys[i].Wallet < keys[j].Wallet
		}
		return keys[i].OutcomeIndex < keys[j].OutcomeIndex
	})
	return positions, keys
}
