package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/maxwelljhuang/knytt/core"
)

// 生成 n 个 2 维商品：与查询向量 (1,0) 的相似度随序号严格递减。
func testProducts(n int, category func(i int) string) []core.ProductEntry {
	products := make([]core.ProductEntry, 0, n)
	for i := 0; i < n; i++ {
		products = append(products, core.ProductEntry{
			ID:        fmt.Sprintf("p%02d", i),
			Embedding: []float64{1, float64(i)},
			Category:  category(i),
			Price:     float64(i * 10),
			InStock:   true,
		})
	}
	return products
}

func newTestIndex(t *testing.T, products []core.ProductEntry, opts ...IndexOption) *MemoryIndex {
	t.Helper()
	snap, err := BuildSnapshot(products)
	if err != nil {
		t.Fatalf("BuildSnapshot error = %v", err)
	}
	idx := NewMemoryIndex(opts...)
	idx.Swap(snap)
	return idx
}

func TestSearch_TopKOrdering(t *testing.T) {
	idx := newTestIndex(t, testProducts(10, func(int) string { return "c" }))

	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector: []float64{1, 0},
		TopK:   3,
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if res.Strategy != StrategyNone {
		t.Errorf("Strategy = %q，期望 none", res.Strategy)
	}
	if len(res.Items) != 3 {
		t.Fatalf("len(Items) = %d", len(res.Items))
	}
	for i, want := range []string{"p00", "p01", "p02"} {
		if res.Items[i].ID != want {
			t.Errorf("Items[%d] = %s，期望 %s", i, res.Items[i].ID, want)
		}
	}
	for i := 1; i < len(res.Items); i++ {
		if res.Items[i].Score > res.Items[i-1].Score {
			t.Errorf("结果未按相似度降序：%v", res.Items)
		}
	}
}

func TestSearch_PrefilterOnSelectiveFilter(t *testing.T) {
	// 20 个商品中只有 1 个属于 rare（5% < 10% 阈值）→ pre-filter
	idx := newTestIndex(t, testProducts(20, func(i int) string {
		if i == 19 {
			return "rare"
		}
		return "common"
	}))

	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector:  []float64{1, 0},
		TopK:    5,
		Filters: &core.ProductFilters{Categories: []string{"rare"}},
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if res.Strategy != StrategyPrefilter {
		t.Errorf("Strategy = %q，期望 prefilter", res.Strategy)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "p19" {
		t.Fatalf("Items = %v，期望仅 p19", res.Items)
	}
	for _, item := range res.Items {
		if item.Entry.Category != "rare" {
			t.Errorf("结果包含未通过过滤的商品 %s", item.ID)
		}
	}
}

func TestSearch_PostfilterOnBroadFilter(t *testing.T) {
	// 偶数序号属于 even（50% ≥ 10% 阈值）→ post-filter
	idx := newTestIndex(t, testProducts(20, func(i int) string {
		if i%2 == 0 {
			return "even"
		}
		return "odd"
	}))

	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector:  []float64{1, 0},
		TopK:    3,
		Filters: &core.ProductFilters{Categories: []string{"even"}},
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if res.Strategy != StrategyPostfilter {
		t.Errorf("Strategy = %q，期望 postfilter", res.Strategy)
	}
	if res.Retries != 0 {
		t.Errorf("Retries = %d，期望首轮超采即满足", res.Retries)
	}
	if len(res.Items) != 3 {
		t.Fatalf("len(Items) = %d，期望 3", len(res.Items))
	}
	for i, want := range []string{"p00", "p02", "p04"} {
		if res.Items[i].ID != want {
			t.Errorf("Items[%d] = %s，期望 %s", i, res.Items[i].ID, want)
		}
	}
}

func TestSearch_PostfilterDoublingRetries(t *testing.T) {
	// 匹配商品占 20%（不触发 pre-filter）但全部排在相似度末尾：
	// k=1 时首轮超采 k'=4 不够，需翻倍重试才能命中
	idx := newTestIndex(t, testProducts(20, func(i int) string {
		if i >= 16 {
			return "rare"
		}
		return "common"
	}))

	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector:  []float64{1, 0},
		TopK:    1,
		Filters: &core.ProductFilters{Categories: []string{"rare"}},
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if res.Strategy != StrategyPostfilter {
		t.Errorf("Strategy = %q，期望 postfilter", res.Strategy)
	}
	if res.Retries == 0 {
		t.Error("Retries = 0，期望发生翻倍重试")
	}
	if len(res.Items) != 1 || res.Items[0].ID != "p16" {
		t.Fatalf("Items = %v，期望命中 p16", res.Items)
	}
}

func TestSearch_RetriesExhaustedAcceptsShort(t *testing.T) {
	// 匹配子集存活数 < k：重试耗尽后接受不足 k 的结果而非报错
	idx := newTestIndex(t, testProducts(20, func(i int) string {
		if i >= 16 {
			return "rare"
		}
		return "common"
	}))

	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector:  []float64{1, 0},
		TopK:    10,
		Filters: &core.ProductFilters{Categories: []string{"rare"}},
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if len(res.Items) != 4 {
		t.Fatalf("len(Items) = %d，期望存活的全部 4 个", len(res.Items))
	}
}

func TestSearch_SelectivePriceFilterRetriesThenShort(t *testing.T) {
	// 价格过滤没有选择率估算，走 post-filter：目录中只有 2% 满足条件，
	// k=20 时超采翻倍重试后仍不足 k，接受不足 k 的结果
	idx := newTestIndex(t, testProducts(100, func(int) string { return "c" }))

	maxPrice := 15.0
	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector:  []float64{1, 0},
		TopK:    20,
		Filters: &core.ProductFilters{MaxPrice: &maxPrice},
	})
	if err != nil {
		t.Fatalf("Search error = %v", err)
	}
	if res.Strategy != StrategyPostfilter {
		t.Errorf("Strategy = %q，期望 postfilter", res.Strategy)
	}
	if res.Retries < 1 {
		t.Errorf("Retries = %d，期望至少一次翻倍重试", res.Retries)
	}
	if len(res.Items) != 2 {
		t.Fatalf("len(Items) = %d，期望 2（p00 p01）", len(res.Items))
	}
	for _, item := range res.Items {
		if item.Entry.Price > maxPrice {
			t.Errorf("结果包含超价商品 %s", item.ID)
		}
	}
}

func TestSearch_NoSnapshotUnavailable(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector: []float64{1, 0},
		TopK:   1,
	})
	if !core.IsUnavailable(err) {
		t.Fatalf("空索引应返回 UNAVAILABLE，实际 %v", err)
	}
}

func TestSwap_ReplacesSnapshot(t *testing.T) {
	idx := newTestIndex(t, testProducts(5, func(int) string { return "c" }))
	if idx.Size() != 5 {
		t.Fatalf("Size = %d", idx.Size())
	}

	snap, err := BuildSnapshot(testProducts(2, func(int) string { return "c" }))
	if err != nil {
		t.Fatalf("BuildSnapshot error = %v", err)
	}
	old := idx.Swap(snap)
	if old == nil || old.Size() != 5 {
		t.Errorf("旧快照 = %v", old)
	}
	if idx.Size() != 2 {
		t.Errorf("替换后 Size = %d，期望 2", idx.Size())
	}
}

func TestGetProduct(t *testing.T) {
	idx := newTestIndex(t, testProducts(3, func(int) string { return "c" }))

	p, found, err := idx.GetProduct(context.Background(), "p01")
	if err != nil || !found || p.ID != "p01" {
		t.Fatalf("GetProduct = (%v, %v, %v)", p, found, err)
	}
	_, found, err = idx.GetProduct(context.Background(), "nope")
	if err != nil || found {
		t.Fatalf("未知商品应返回 (nil, false, nil)，实际 (%v, %v)", found, err)
	}
}

func TestBuildSnapshot_Validation(t *testing.T) {
	_, err := BuildSnapshot([]core.ProductEntry{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "a", Embedding: []float64{0, 1}},
	})
	if !core.IsInvalidInput(err) {
		t.Errorf("重复 ID 应返回 INVALID_INPUT，实际 %v", err)
	}

	_, err = BuildSnapshot([]core.ProductEntry{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b", Embedding: []float64{1, 0, 0}},
	})
	if !core.IsInvalidInput(err) {
		t.Errorf("维度不一致应返回 INVALID_INPUT，实际 %v", err)
	}
}

func TestBuildSnapshot_MissingEmbeddingKeptInCatalog(t *testing.T) {
	snap, err := BuildSnapshot([]core.ProductEntry{
		{ID: "a", Embedding: []float64{1, 0}},
		{ID: "b"}, // embedding 尚未生成
	})
	if err != nil {
		t.Fatalf("BuildSnapshot error = %v", err)
	}
	if snap.Size() != 1 {
		t.Errorf("可检索数 = %d，期望 1", snap.Size())
	}
	if _, ok := snap.Get("b"); !ok {
		t.Error("缺失 embedding 的商品应仍可按 ID 查询")
	}
}
