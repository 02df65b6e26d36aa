// Package rerank 提供重排节点：MMR 多样性重排与 Top-N 分页截断。
package rerank

import (
	"context"
	"sort"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

// MMRNode 实现 Maximal Marginal Relevance 多样性重排：
// 迭代选出使 (1-λ)·rel(c) - λ·max_{s∈selected} sim(c, s) 最大的候选，
// sim 为商品 embedding 的余弦相似度。
//
//   - λ=0 与按相关性降序的稳定排序逐位一致（回归基线）
//   - λ=1 首选之后完全忽略相关性，贪心最大化新颖度
//
// 对 growing selected 集合的两两相似度计算是 O(n·|候选|)，
// 候选池先按相关性截断到 PoolSize，复杂度有界。
type MMRNode struct {
	// Lambda 多样性强度 ∈ [0,1]；请求显式携带的 DiversityLambda
	// 优先于节点配置（显式的 0 也生效，关闭多样性）
	Lambda float64

	// PoolSize 参与重排的候选池上限，<=0 使用默认 200
	PoolSize int
}

const defaultPoolSize = 200

func (n *MMRNode) Name() string {
	return "rerank.mmr"
}

func (n *MMRNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *MMRNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	lambda := n.Lambda
	if rctx != nil && rctx.DiversityLambda != nil {
		lambda = *rctx.DiversityLambda
	}
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}

	pool := n.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}

	// 稳定排序保证 λ=0 时同分候选保持原始顺序
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if lambda == 0 {
		return items, nil
	}

	tail := items[min(pool, len(items)):]
	candidates := items[:min(pool, len(items))]

	selected := make([]*core.Item, 0, len(candidates))
	remaining := make([]*core.Item, len(candidates))
	copy(remaining, candidates)

	for len(remaining) > 0 {
		best := 0
		bestScore := mmrScore(remaining[0], selected, lambda)
		for i := 1; i < len(remaining); i++ {
			if score := mmrScore(remaining[i], selected, lambda); score > bestScore {
				best, bestScore = i, score
			}
		}
		selected = append(selected, remaining[best])
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return append(selected, tail...), nil
}

func mmrScore(c *core.Item, selected []*core.Item, lambda float64) float64 {
	score := (1 - lambda) * c.Score
	if len(selected) == 0 {
		return score
	}
	maxSim := -1.0
	for _, s := range selected {
		if sim := vecmath.Cosine(c.Embedding, s.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return score - lambda*maxSim
}

var _ pipeline.Node = (*MMRNode)(nil)
