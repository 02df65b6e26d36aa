package rank

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/feature"
	"github.com/maxwelljhuang/knytt/store"
)

func catalogItem(id string, quality float64, createdAt time.Time) *core.Item {
	it := core.NewItem(id)
	it.SetProduct(&core.ProductEntry{ID: id, Quality: quality, CreatedAt: createdAt})
	return it
}

func TestPopularity_ColdStartOrdering(t *testing.T) {
	// 无任何互动数据：质量分降序、上架时间降序、ID 升序
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*core.Item{
		catalogItem("old-good", 0.9, base),
		catalogItem("new-good", 0.9, base.AddDate(0, 1, 0)),
		catalogItem("best", 0.95, base),
		catalogItem("b-tie", 0.5, base),
		catalogItem("a-tie", 0.5, base),
	}

	node := &PopularityNode{}
	got, err := node.Process(context.Background(), nil, items)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	want := []string{"best", "new-good", "old-good", "a-tie", "b-tie"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("第 %d 位 = %s，期望 %s", i, got[i].ID, id)
		}
	}
}

func TestPopularity_EngagementDominates(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// hot：大量购买且互动新鲜；cold：质量更高但无人问津
	_, _ = kv.HIncrBy(ctx, feature.StatsKeyPrefix+"hot", feature.FieldPurchases, 100)
	_ = kv.HSet(ctx, feature.StatsKeyPrefix+"hot", feature.FieldLastAt,
		[]byte(strconv.FormatInt(now.AddDate(0, 0, -1).Unix(), 10)))

	items := []*core.Item{
		catalogItem("cold", 0.9, now.AddDate(0, 0, -10)),
		catalogItem("hot", 0.5, now.AddDate(0, 0, -10)),
	}

	node := &PopularityNode{
		Provider: feature.NewStoreProvider(kv),
		Now:      func() time.Time { return now },
	}
	got, err := node.Process(ctx, nil, items)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if got[0].ID != "hot" {
		t.Errorf("首位 = %s，期望互动热度占优的 hot", got[0].ID)
	}
}

func TestPopularity_RecencyDecay(t *testing.T) {
	now := time.Now()
	halfLife := 30 * 24 * time.Hour

	cases := []struct {
		name string
		last time.Time
		want float64
		eps  float64
	}{
		{"刚互动", now, 1, 1e-9},
		{"一个半衰期", now.Add(-halfLife), 0.5, 1e-9},
		{"两个半衰期", now.Add(-2 * halfLife), 0.25, 1e-9},
		{"远古互动", now.AddDate(-5, 0, 0), decayFloor, 1e-9},
		{"从未互动", time.Time{}, decayFloor, 1e-9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := recencyDecay(now, tc.last, halfLife)
			if diff := got - tc.want; diff > tc.eps || diff < -tc.eps {
				t.Errorf("decay = %v，期望 %v", got, tc.want)
			}
		})
	}
}

func TestPopularity_BatchNormalization(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()
	now := time.Now()

	lastAt := []byte(strconv.FormatInt(now.Unix(), 10))
	_, _ = kv.HIncrBy(ctx, feature.StatsKeyPrefix+"a", feature.FieldViews, 1000)
	_ = kv.HSet(ctx, feature.StatsKeyPrefix+"a", feature.FieldLastAt, lastAt)
	_, _ = kv.HIncrBy(ctx, feature.StatsKeyPrefix+"b", feature.FieldViews, 500)
	_ = kv.HSet(ctx, feature.StatsKeyPrefix+"b", feature.FieldLastAt, lastAt)

	items := []*core.Item{
		catalogItem("a", 0, now),
		catalogItem("b", 0, now),
	}
	node := &PopularityNode{
		Provider: feature.NewStoreProvider(kv),
		Now:      func() time.Time { return now },
	}
	got, err := node.Process(ctx, nil, items)
	if err != nil {
		t.Fatalf("Process error = %v", err)
	}

	// 批内归一：最热商品 pop=1 → score=0.5；次热为其一半
	if got[0].ID != "a" || got[0].Score < 0.499 || got[0].Score > 0.501 {
		t.Errorf("首位 = (%s, %v)，期望 (a, 0.5)", got[0].ID, got[0].Score)
	}
	if got[1].Score < 0.249 || got[1].Score > 0.251 {
		t.Errorf("次位分数 = %v，期望 0.25", got[1].Score)
	}
}
