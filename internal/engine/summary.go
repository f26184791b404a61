package engine

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// Summary is the batch job's final report. Skip counters are split by cause
// so operators can tell correctly excluded unresolved markets from
// data-quality problems.
type Summary struct {
	MarketsTotal             int64 `json:"markets_total"`
	MarketsProcessed         int64 `json:"markets_processed"`
	MarketsSkippedUnresolved int64 `json:"markets_skipped_unresolved"`
	MarketsFailed            int64 `json:"markets_failed"`

	PositionsSkippedUnresolved int64 `json:"positions_skipped_unresolved"`
	PositionsSkippedDust       int64 `json:"positions_skipped_dust"`
	PositionsFailedInvariant   int64 `json:"positions_failed_invariant"`

	TradesEmitted   int64 `json:"trades_emitted"`
	OutcomesWritten int64 `json:"outcomes_written"`

	FillsSeen             int64 `json:"fills_seen"`
	FillsMalformedSkipped int64 `json:"fills_malformed_skipped"`
	FillsFiltered         int64 `json:"fills_filtered"`
	FlipTradesDropped     int64 `json:"flip_trades_dropped"`
}

func (s *Summary) add(o Summary) {
	s.MarketsTotal += o.MarketsTotal
	s.MarketsProcessed += o.MarketsProcessed
	s.MarketsSkippedUnresolved += o.MarketsSkippedUnresolved
	s.MarketsFailed += o.MarketsFailed
	s.PositionsSkippedUnresolved += o.PositionsSkippedUnresolved
	s.PositionsSkippedDust += o.PositionsSkippedDust
	s.PositionsFailedInvariant += o.PositionsFailedInvariant
	s.TradesEmitted += o.TradesEmitted
	s.OutcomesWritten += o.OutcomesWritten
	s.FillsSeen += o.FillsSeen
	s.FillsMalformedSkipped += o.FillsMalformedSkipped
	s.FillsFiltered += o.FillsFiltered
	s.FlipTradesDropped += o.FlipTradesDropped
}

func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("markets_total", s.MarketsTotal),
		zap.Int64("markets_processed", s.MarketsProcessed),
		zap.Int64("markets_skipped_unresolved", s.MarketsSkippedUnresolved),
		zap.Int64("markets_failed", s.MarketsFailed),
		zap.Int64("positions_skipped_unresolved", s.PositionsSkippedUnresolved),
		zap.Int64("positions_skipped_dust", s.PositionsSkippedDust),
		zap.Int64("positions_failed_invariant", s.PositionsFailedInvariant),
		zap.Int64("trades_emitted", s.TradesEmitted),
		zap.Int64("outcomes_written", s.OutcomesWritten),
		zap.Int64("fills_seen", s.FillsSeen),
		zap.Int64("fills_malformed_skipped", s.FillsMalformedSkipped),
		zap.Int64("fills_filtered", s.FillsFiltered),
		zap.Int64("flip_trades_dropped", s.FlipTradesDropped),
	}
}

// RenderTable prints the summary for one-shot console runs.
func (s Summary) RenderTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.Header("Counter", "Value")
	for _, row := range [][2]string{
		{"markets total", itoa(s.MarketsTotal)},
		{"markets processed", itoa(s.MarketsProcessed)},
		{"markets skipped (unresolved)", itoa(s.MarketsSkippedUnresolved)},
		{"markets failed", itoa(s.MarketsFailed)},
		{"positions skipped (unresolved)", itoa(s.PositionsSkippedUnresolved)},
		{"positions skipped (dust)", itoa(s.PositionsSkippedDust)},
		{"positions failed (invariant)", itoa(s.PositionsFailedInvariant)},
		{"trades emitted", itoa(s.TradesEmitted)},
		{"outcomes written", itoa(s.OutcomesWritten)},
		{"fills seen", itoa(s.FillsSeen)},
		{"fills malformed (skipped)", itoa(s.FillsMalformedSkipped)},
		{"fills filtered (self/burn)", itoa(s.FillsFiltered)},
		{"flip trades dropped", itoa(s.FlipTradesDropped)},
	} {
		table.Append(row[0], row[1])
	}
	table.Render()
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
