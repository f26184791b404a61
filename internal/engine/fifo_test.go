package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var minCost = decimal.RequireFromString("0.01")

func mkRes(resolvedAt time.Time, rates ...string) Resolution {
	out := Resolution{MarketID: "m1", ResolvedAt: resolvedAt}
	for _, r := range rates {
		out.Rates = append(out.Rates, decimal.RequireFromString(r))
	}
	return out
}

func mkTrade(id, tokens, cash string, at time.Time) Trade {
	return Trade{
		TradeID:   id,
		Wallet:    "0xabc",
		MarketID:  "m1",
		EntryTime: at,
		Tokens:    decimal.RequireFromString(tokens),
		Cash:      decimal.RequireFromString(cash),
	}
}

func decEq(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if got.Cmp(decimal.RequireFromString(want)) != 0 {
		t.Fatalf("%s=%s want=%s", name, got, want)
	}
}

func TestAttributePosition_EarlyExitAsymmetric(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("txA", "100", "-50", base),
		mkTrade("txB", "50", "-40", base.Add(5*time.Minute)),
		mkTrade("txS", "-80", "56", base.Add(10*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "0", "1")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d want=2", len(results))
	}

	a := results[0]
	if a.Trade.TradeID != "txA" {
		t.Fatalf("results[0]=%s want txA", a.Trade.TradeID)
	}
	decEq(t, "a.consumed", a.Consumed, "80")
	decEq(t, "a.held", a.TokensHeld, "20")
	decEq(t, "a.exit", a.ExitValue, "56")
	decEq(t, "a.pnl", a.PnL, "6")
	decEq(t, "a.pct_sold", a.PctSoldEarly, "0.8")
	if a.ROI == nil {
		t.Fatalf("a.roi is nil")
	}
	decEq(t, "a.roi", *a.ROI, "0.12")

	b := results[1]
	if b.Trade.TradeID != "txB" {
		t.Fatalf("results[1]=%s want txB", b.Trade.TradeID)
	}
	decEq(t, "b.consumed", b.Consumed, "0")
	decEq(t, "b.held", b.TokensHeld, "50")
	decEq(t, "b.exit", b.ExitValue, "0")
	decEq(t, "b.pnl", b.PnL, "-40")
	decEq(t, "b.pct_sold", b.PctSoldEarly, "0")
	if b.ROI == nil {
		t.Fatalf("b.roi is nil")
	}
	decEq(t, "b.roi", *b.ROI, "-1")
}

func TestAttributePosition_PureHoldWinning(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{mkTrade("tx1", "1000", "-500", base)}
	res := mkRes(base.Add(time.Hour), "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d want=1", len(results))
	}
	r := results[0]
	decEq(t, "exit", r.ExitValue, "1000")
	decEq(t, "pnl", r.PnL, "500")
	if r.ROI == nil {
		t.Fatalf("roi is nil")
	}
	decEq(t, "roi", *r.ROI, "1")
	decEq(t, "pct_sold", r.PctSoldEarly, "0")
}

func TestAttributePosition_HoldToResolutionPaysTokensTimesRate(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 1}
	trades := []Trade{
		mkTrade("tx1", "30", "-12", base),
		mkTrade("tx2", "70", "-35", base.Add(time.Minute)),
		mkTrade("tx3", "5", "-2.5", base.Add(2*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "0.5", "0.5")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d want=3", len(results))
	}
	for _, r := range results {
		want := r.Trade.Tokens.Mul(decimal.RequireFromString("0.5"))
		if r.ExitValue.Cmp(want) != 0 {
			t.Fatalf("trade %s exit=%s want=%s", r.Trade.TradeID, r.ExitValue, want)
		}
		decEq(t, "consumed", r.Consumed, "0")
	}
}

func TestAttributePosition_DustBuyStaysInFIFOWalk(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("txDust", "10", "-0.001", base),
		mkTrade("txReal", "10", "-5", base.Add(time.Minute)),
		mkTrade("txSell", "-10", "8", base.Add(2*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "0", "1")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d want=2", len(results))
	}

	dust := results[0]
	if dust.Trade.TradeID != "txDust" {
		t.Fatalf("results[0]=%s want txDust", dust.Trade.TradeID)
	}
	// The dust buy still absorbs the whole sell (it is oldest) but earns no roi.
	decEq(t, "dust.consumed", dust.Consumed, "10")
	decEq(t, "dust.exit", dust.ExitValue, "8")
	if dust.ROI != nil {
		t.Fatalf("dust.roi=%s want nil", dust.ROI)
	}

	real := results[1]
	decEq(t, "real.consumed", real.Consumed, "0")
	decEq(t, "real.held", real.TokensHeld, "10")
	decEq(t, "real.exit", real.ExitValue, "0")
	if real.ROI == nil {
		t.Fatalf("real.roi is nil")
	}
	decEq(t, "real.roi", *real.ROI, "-1")
}

func TestAttributePosition_AllDustSkipped(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("tx1", "10", "-0.001", base),
		mkTrade("tx2", "5", "-0.004", base.Add(time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if !errors.Is(err, ErrDustPosition) {
		t.Fatalf("err=%v want ErrDustPosition", err)
	}
	if results != nil {
		t.Fatalf("results=%v want nil", results)
	}
}

func TestAttributePosition_MissingOutcomeRate(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 3}
	trades := []Trade{mkTrade("tx1", "10", "-5", base)}
	res := mkRes(base.Add(time.Hour), "1", "0")

	_, err := AttributePosition(key, trades, res, minCost)
	if !errors.Is(err, ErrNoPayoutRate) {
		t.Fatalf("err=%v want ErrNoPayoutRate", err)
	}
}

func TestAttributePosition_SellsAtOrAfterResolutionIgnored(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	resolvedAt := base.Add(time.Hour)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("txBuy", "100", "-50", base),
		mkTrade("txSettle", "-100", "95", resolvedAt),
		mkTrade("txLate", "-100", "95", resolvedAt.Add(time.Minute)),
	}
	res := mkRes(resolvedAt, "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results=%d want=1", len(results))
	}
	r := results[0]
	decEq(t, "consumed", r.Consumed, "0")
	decEq(t, "held", r.TokensHeld, "100")
	decEq(t, "exit", r.ExitValue, "100")
	decEq(t, "pnl", r.PnL, "50")
}

func TestAttributePosition_SellOnlyPositionEmitsNothing(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{mkTrade("tx1", "-10", "7", base)}
	res := mkRes(base.Add(time.Hour), "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if results != nil {
		t.Fatalf("results=%v want nil", results)
	}
}

func TestAttributePosition_ConservationUnderOversell(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	// 150 tokens bought, 180 sold: consumption caps at the buy total.
	trades := []Trade{
		mkTrade("tx1", "100", "-50", base),
		mkTrade("tx2", "50", "-30", base.Add(time.Minute)),
		mkTrade("tx3", "-120", "70", base.Add(2*time.Minute)),
		mkTrade("tx4", "-60", "20", base.Add(3*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "0", "1")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	consumed := decimal.Zero
	held := decimal.Zero
	for _, r := range results {
		consumed = consumed.Add(r.Consumed)
		held = held.Add(r.TokensHeld)
	}
	decEq(t, "sum(consumed)", consumed, "150")
	decEq(t, "sum(held)", held, "0")

	// Proceeds are pooled over all 180 sold tokens, allocated pro-rata.
	decEq(t, "tx1.exit", results[0].ExitValue, "50")
	decEq(t, "tx2.exit", results[1].ExitValue, "25")
}

func TestAttributePosition_ConservationPartialSell(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("tx1", "40", "-20", base),
		mkTrade("tx2", "60", "-33", base.Add(time.Minute)),
		mkTrade("tx3", "-25", "15", base.Add(2*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	consumed := decimal.Zero
	held := decimal.Zero
	for _, r := range results {
		consumed = consumed.Add(r.Consumed)
		held = held.Add(r.TokensHeld)
	}
	decEq(t, "sum(consumed)", consumed, "25")
	decEq(t, "sum(consumed)+sum(held)", consumed.Add(held), "100")
}

func TestAttributePosition_StrictFIFOOrdering(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("tx1", "100", "-50", base),
		mkTrade("tx2", "100", "-50", base.Add(time.Minute)),
		mkTrade("tx3", "100", "-50", base.Add(2*time.Minute)),
		mkTrade("txS", "-150", "90", base.Add(3*time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "1", "0")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	decEq(t, "tx1.consumed", results[0].Consumed, "100")
	decEq(t, "tx2.consumed", results[1].Consumed, "50")
	decEq(t, "tx3.consumed", results[2].Consumed, "0")

	// A younger buy may only be consumed once every older buy is exhausted.
	for i := 1; i < len(results); i++ {
		older := results[i-1]
		if results[i].Consumed.IsPositive() && older.TokensHeld.IsPositive() {
			t.Fatalf("buy %s consumed while older %s still held %s",
				results[i].Trade.TradeID, older.Trade.TradeID, older.TokensHeld)
		}
	}
}

func TestAttributePosition_EntryTimeTiesBreakByTradeID(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0}
	trades := []Trade{
		mkTrade("txB", "10", "-5", base),
		mkTrade("txA", "10", "-5", base),
		mkTrade("txS", "-10", "9", base.Add(time.Minute)),
	}
	res := mkRes(base.Add(time.Hour), "0", "1")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if results[0].Trade.TradeID != "txA" {
		t.Fatalf("results[0]=%s want txA", results[0].Trade.TradeID)
	}
	decEq(t, "txA.consumed", results[0].Consumed, "10")
	decEq(t, "txB.consumed", results[1].Consumed, "0")
}

func TestAttributePosition_VoidedMarketHalfPayout(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	key := PositionKey{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 1}
	trades := []Trade{mkTrade("tx1", "100", "-60", base)}
	res := mkRes(base.Add(time.Hour), "0.5", "0.5")

	results, err := AttributePosition(key, trades, res, minCost)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	r := results[0]
	decEq(t, "exit", r.ExitValue, "50")
	decEq(t, "pnl", r.PnL, "-10")
}

func TestGroupPositions_StableSortedKeys(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trades := []Trade{
		{TradeID: "t1", Wallet: "0xbbb", MarketID: "m1", OutcomeIndex: 1, EntryTime: base, Tokens: decimal.NewFromInt(1)},
		{TradeID: "t2", Wallet: "0xaaa", MarketID: "m1", OutcomeIndex: 1, EntryTime: base, Tokens: decimal.NewFromInt(1)},
		{TradeID: "t3", Wallet: "0xaaa", MarketID: "m1", OutcomeIndex: 0, EntryTime: base, Tokens: decimal.NewFromInt(1)},
		{TradeID: "t4", Wallet: "0xaaa", MarketID: "m1", OutcomeIndex: 0, EntryTime: base, Tokens: decimal.NewFromInt(2)},
	}
	positions, keys := GroupPositions(trades)
	if len(keys) != 3 {
		t.Fatalf("keys=%d want=3", len(keys))
	}
	want := []PositionKey{
		{Wallet: "0xaaa", MarketID: "m1", OutcomeIndex: 0},
		{Wallet: "0xaaa", MarketID: "m1", OutcomeIndex: 1},
		{Wallet: "0xbbb", MarketID: "m1", OutcomeIndex: 1},
	}
	for i, k := range keys {
		if k != want[i] {
			t.Fatalf("keys[%d]=%v want=%v", i, k, want[i])
		}
	}
	if got := len(positions[want[0]]); got != 2 {
		t.Fatalf("position trades=%d want=2", got)
	}
}
