package vector

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

// 过滤策略名（VectorSearchResult.Strategy）
const (
	StrategyNone       = "none"
	StrategyPrefilter  = "prefilter"
	StrategyPostfilter = "postfilter"
)

// MemoryIndex 是内存暴力检索实现的 VectorIndex。
// 规模在十万级以内时精确余弦扫描足够快，且天然支持任意过滤条件；
// 替换为真正的 ANN 后端时只需保持 core.VectorIndex 接口不变。
//
// 策略选择：只有类目过滤能从快照的倒排子集 O(1) 估算选择率，
// 子集占比 < prefilterThreshold 时直接在子集上精确检索（pre-filter）；
// 其余条件（价格/库存/表达式）无廉价估算手段，一律走 post-filter：
// 超采 k' = overfetch·k，存活不足 k 时翻倍重试至多 maxRetries 次，
// 重试耗尽则接受不足 k 的结果。
type MemoryIndex struct {
	snap atomic.Pointer[Snapshot]

	prefilterThreshold float64
	overfetch          int
	maxRetries         int

	log zerolog.Logger
}

// IndexOption 配置 MemoryIndex。
type IndexOption func(*MemoryIndex)

// WithPrefilterThreshold 设置 pre-filter 的选择率阈值。
func WithPrefilterThreshold(t float64) IndexOption {
	return func(idx *MemoryIndex) { idx.prefilterThreshold = t }
}

// WithOverfetch 设置 post-filter 的超采倍数。
func WithOverfetch(n int) IndexOption {
	return func(idx *MemoryIndex) { idx.overfetch = n }
}

// WithIndexLogger 注入日志。
func WithIndexLogger(log zerolog.Logger) IndexOption {
	return func(idx *MemoryIndex) { idx.log = log }
}

// NewMemoryIndex 创建空索引；装载数据用 Swap。
func NewMemoryIndex(opts ...IndexOption) *MemoryIndex {
	idx := &MemoryIndex{
		prefilterThreshold: 0.10,
		overfetch:          4,
		maxRetries:         3,
		log:                zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Swap 原子替换当前快照，返回旧快照（可能为 nil）。
// 离线批量重建完成后调用；进行中的查询继续使用旧快照。
func (idx *MemoryIndex) Swap(snap *Snapshot) *Snapshot {
	old := idx.snap.Swap(snap)
	if snap != nil {
		idx.log.Info().Int("size", snap.Size()).Int("dim", snap.Dim()).Msg("vector index snapshot swapped")
	}
	return old
}

// Size 实现 core.VectorIndex 接口。
func (idx *MemoryIndex) Size() int {
	if snap := idx.snap.Load(); snap != nil {
		return snap.Size()
	}
	return 0
}

// GetProduct 实现 core.Catalog 接口：按 ID 查询当前快照中的商品。
func (idx *MemoryIndex) GetProduct(ctx context.Context, id string) (*core.ProductEntry, bool, error) {
	snap := idx.snap.Load()
	if snap == nil {
		return nil, false, core.ErrIndexUnavailable
	}
	p, ok := snap.Get(id)
	return p, ok, nil
}

// ListProducts 实现 core.CatalogBrowser 接口：返回当前快照全部商品。
func (idx *MemoryIndex) ListProducts(ctx context.Context) ([]*core.ProductEntry, error) {
	snap := idx.snap.Load()
	if snap == nil {
		return nil, core.ErrIndexUnavailable
	}
	out := make([]*core.ProductEntry, 0, len(snap.byID))
	for _, p := range snap.byID {
		out = append(out, p)
	}
	return out, nil
}

// Search 实现 core.VectorIndex 接口。
func (idx *MemoryIndex) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil || len(req.Vector) == 0 {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector: empty query vector")
	}
	if req.TopK <= 0 {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector: non-positive topk")
	}

	snap := idx.snap.Load()
	if snap == nil || snap.Size() == 0 {
		return nil, core.ErrIndexUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Filters.Empty() {
		items := scoreAndRank(snap.entries, req.Vector, req.TopK)
		return &core.VectorSearchResult{Items: items, Strategy: StrategyNone}, nil
	}

	if len(req.Filters.Categories) > 0 {
		subset := snap.categorySubset(req.Filters.Categories)
		if float64(len(subset)) < idx.prefilterThreshold*float64(snap.Size()) {
			// 类目已给出小子集，其余条件在子集扫描时顺带判定
			survivors := make([]*core.ProductEntry, 0, len(subset))
			for _, p := range subset {
				if req.Filters.Match(p) {
					survivors = append(survivors, p)
				}
			}
			items := scoreAndRank(survivors, req.Vector, req.TopK)
			return &core.VectorSearchResult{Items: items, Strategy: StrategyPrefilter}, nil
		}
	}

	return idx.postFilter(snap, req)
}

// postFilter 全量排序后超采过滤：k' 从 overfetch·k 起，
// 存活不足 k 时翻倍重试，重试耗尽则接受不足 k 的结果。
func (idx *MemoryIndex) postFilter(snap *Snapshot, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	ranked := scoreAndRank(snap.entries, req.Vector, snap.Size())

	fetch := idx.overfetch * req.TopK
	retries := 0
	for {
		if fetch > len(ranked) {
			fetch = len(ranked)
		}

		survivors := make([]core.VectorSearchItem, 0, req.TopK)
		for _, item := range ranked[:fetch] {
			if req.Filters.Match(item.Entry) {
				survivors = append(survivors, item)
				if len(survivors) == req.TopK {
					break
				}
			}
		}

		if len(survivors) >= req.TopK || fetch == len(ranked) || retries >= idx.maxRetries {
			idx.log.Debug().Int("topk", req.TopK).Int("survivors", len(survivors)).
				Int("retries", retries).Msg("vector post-filter search")
			return &core.VectorSearchResult{Items: survivors, Strategy: StrategyPostfilter, Retries: retries}, nil
		}
		fetch *= 2
		retries++
	}
}

// scoreAndRank 对候选集计算余弦相似度并返回 TopK，
// 同分按 ID 升序保证确定性。
func scoreAndRank(entries []*core.ProductEntry, query []float64, topK int) []core.VectorSearchItem {
	scored := make([]core.VectorSearchItem, 0, len(entries))
	for _, p := range entries {
		scored = append(scored, core.VectorSearchItem{
			ID:    p.ID,
			Score: vecmath.Cosine(query, p.Embedding),
			Entry: p,
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// Close 实现 core.VectorIndex 接口。
func (idx *MemoryIndex) Close() error {
	idx.snap.Store(nil)
	return nil
}

// 确保实现了接口
var _ core.VectorIndex = (*MemoryIndex)(nil)
var _ core.CatalogBrowser = (*MemoryIndex)(nil)
