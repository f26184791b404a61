package engine

// Shard is a contiguous slice of the market list owned by one worker.
type Shard struct {
	Index     int
	MarketIDs []string
	Weight    int64
}

// packShards splits an ordered market list into min(n, len) contiguous
// shards of roughly equal fill weight. Markets without a known count weigh 1
// so they still land somewhere. The split is a pure function of its inputs;
// shard boundaries never affect results, only balance.
func packShards(marketIDs []string, weights map[string]int64, n int) []Shard {
	if len(marketIDs) == 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}
	if n > len(marketIDs) {
		n = len(marketIDs)
	}

	remaining := int64(0)
	for _, id := range marketIDs {
		remaining += weightOf(weights, id)
	}

	out := make([]Shard, 0, n)
	cur := Shard{Index: 0}
	shardsLeft := n
	for i, id := range marketIDs {
		w := weightOf(weights, id)
		cur.MarketIDs = append(cur.MarketIDs, id)
		cur.Weight += w
		remaining -= w

		marketsLeft := len(marketIDs) - i - 1
		if shardsLeft <= 1 || marketsLeft < shardsLeft-1 {
			continue
		}
		// Close once this shard carries its share of what is still
		// unassigned, or when the tail has exactly one market left per
		// remaining shard.
		share := (remaining + cur.Weight + int64(shardsLeft) - 1) / int64(shardsLeft)
		if marketsLeft == shardsLeft-1 || cur.Weight >= share {
			out = append(out, cur)
			shardsLeft--
			cur = Shard{Index: len(out)}
		}
	}
	out = append(out, cur)
	return out
}

func weightOf(weights map[string]int64, id string) int64 {
	if w := weights[id]; w > 0 {
		return w
	}
	return 1
}
