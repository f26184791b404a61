package engine

import (
	"fmt"
	"reflect"
	"testing"
)

func TestPackShards_CoversAllMarketsContiguously(t *testing.T) {
	ids := make([]string, 10)
	weights := map[string]int64{}
	for i := range ids {
		ids[i] = fmt.Sprintf("m%02d", i)
		weights[ids[i]] = int64(i*7 + 1)
	}

	shards := packShards(ids, weights, 4)
	if len(shards) != 4 {
		t.Fatalf("shards=%d want=4", len(shards))
	}
	var flat []string
	for i, sh := range shards {
		if sh.Index != i {
			t.Fatalf("shard index=%d want=%d", sh.Index, i)
		}
		if len(sh.MarketIDs) == 0 {
			t.Fatalf("shard %d is empty", i)
		}
		flat = append(flat, sh.MarketIDs...)
	}
	if !reflect.DeepEqual(flat, ids) {
		t.Fatalf("concat=%v want=%v", flat, ids)
	}
}

func TestPackShards_HeavyMarketGetsOwnShard(t *testing.T) {
	ids := []string{"m00", "m01", "m02", "m03", "m04", "m05", "m06", "m07", "m08", "m09"}
	weights := map[string]int64{"m00": 1000}

	shards := packShards(ids, weights, 2)
	if len(shards) != 2 {
		t.Fatalf("shards=%d want=2", len(shards))
	}
	if len(shards[0].MarketIDs) != 1 || shards[0].MarketIDs[0] != "m00" {
		t.Fatalf("shard0=%v want=[m00]", shards[0].MarketIDs)
	}
	if len(shards[1].MarketIDs) != 9 {
		t.Fatalf("shard1 markets=%d want=9", len(shards[1].MarketIDs))
	}
}

func TestPackShards_MoreWorkersThanMarkets(t *testing.T) {
	ids := []string{"m1", "m2", "m3"}
	shards := packShards(ids, nil, 10)
	if len(shards) != 3 {
		t.Fatalf("shards=%d want=3", len(shards))
	}
	for i, sh := range shards {
		if len(sh.MarketIDs) != 1 {
			t.Fatalf("shard %d markets=%d want=1", i, len(sh.MarketIDs))
		}
	}
}

func TestPackShards_NonPositiveWorkerCount(t *testing.T) {
	ids := []string{"m1", "m2", "m3"}
	shards := packShards(ids, nil, 0)
	if len(shards) != 1 {
		t.Fatalf("shards=%d want=1", len(shards))
	}
	if len(shards[0].MarketIDs) != 3 {
		t.Fatalf("shard0 markets=%d want=3", len(shards[0].MarketIDs))
	}
}

func TestPackShards_Deterministic(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	weights := map[string]int64{"a": 5, "c": 12, "f": 3}
	first := packShards(ids, weights, 3)
	second := packShards(ids, weights, 3)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("layouts differ: %v vs %v", first, second)
	}
}

func TestPackShards_Empty(t *testing.T) {
	if shards := packShards(nil, nil, 4); shards != nil {
		t.Fatalf("shards=%v want nil", shards)
	}
}
