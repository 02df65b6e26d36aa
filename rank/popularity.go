// Package rank 提供排序节点：互动热度 + 质量分的启发式排序，
// 用于匿名流量与向量索引不可用时的兜底路径。
package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/feature"
	"github.com/maxwelljhuang/knytt/pipeline"
)

// PopularityNode 按互动热度与质量分给候选打分并排序。
//
//	pop(p)   = engagement(p) · 0.5^(days_since_last/half_life)，按批内最大值归一
//	score(p) = PopWeight·pop(p) + QualityWeight·quality(p)
//
// engagement 权重 view=1 like=2 cart=3 purchase=5。衰减下限 1%，
// 老商品不至于完全沉底。无任何互动数据时排序退化为
// 质量分降序、上架时间降序、ID 升序（确定性的冷启动顺序）。
type PopularityNode struct {
	Provider feature.Provider

	// PopWeight / QualityWeight 两路信号的混合权重，零值取 0.5/0.5
	PopWeight     float64
	QualityWeight float64

	// HalfLife 热度时间衰减的半衰期，零值取 30 天
	HalfLife time.Duration

	Now func() time.Time // 测试注入
}

const decayFloor = 0.01

func (n *PopularityNode) Name() string        { return "rank.popularity" }
func (n *PopularityNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *PopularityNode) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	popWeight, qualityWeight := n.PopWeight, n.QualityWeight
	if popWeight == 0 && qualityWeight == 0 {
		popWeight, qualityWeight = 0.5, 0.5
	}
	halfLife := n.HalfLife
	if halfLife <= 0 {
		halfLife = 30 * 24 * time.Hour
	}
	now := time.Now()
	if n.Now != nil {
		now = n.Now()
	}

	var pops map[string]float64
	if n.Provider != nil {
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		var err error
		pops, err = PopScores(ctx, n.Provider, ids, now, halfLife)
		if err != nil {
			return nil, err
		}
	}

	for _, it := range items {
		var quality float64
		if p := it.Product(); p != nil {
			quality = p.Quality
		}
		it.Score = popWeight*pops[it.ID] + qualityWeight*quality
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		pi, pj := items[i].Product(), items[j].Product()
		if pi != nil && pj != nil && !pi.CreatedAt.Equal(pj.CreatedAt) {
			return pi.CreatedAt.After(pj.CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// PopScores 批量计算归一化热度分 ∈ [0,1]：加权互动 × 时间衰减，
// 按批内最大值归一。无统计的商品不出现在返回 map 中（取值为 0）。
// 个性化路径把热度先验混入相关性时也走这条口径。
func PopScores(ctx context.Context, provider feature.Provider, ids []string, now time.Time, halfLife time.Duration) (map[string]float64, error) {
	stats, err := provider.ProductStats(ctx, ids)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]float64, len(stats))
	var maxRaw float64
	for id, s := range stats {
		v := s.Engagement() * recencyDecay(now, s.LastInteraction, halfLife)
		raw[id] = v
		if v > maxRaw {
			maxRaw = v
		}
	}
	if maxRaw == 0 {
		return map[string]float64{}, nil
	}
	for id := range raw {
		raw[id] /= maxRaw
	}
	return raw, nil
}

// recencyDecay 指数时间衰减，最近互动缺失时视为完全衰减的旧商品。
func recencyDecay(now, last time.Time, halfLife time.Duration) float64 {
	if last.IsZero() {
		return decayFloor
	}
	age := now.Sub(last)
	if age <= 0 {
		return 1
	}
	decay := math.Pow(0.5, float64(age)/float64(halfLife))
	if decay < decayFloor {
		return decayFloor
	}
	return decay
}

var _ pipeline.Node = (*PopularityNode)(nil)
