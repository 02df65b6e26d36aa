package recall

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/pkg/utils"
)

// CatalogNode 目录遍历召回：没有查询向量（匿名冷启动）或向量索引
// 不可用时的兜底候选源，排序交给下游热度节点。
// 结构化过滤在枚举时就地应用，避免把整个目录灌进 Pipeline。
type CatalogNode struct {
	Browser core.CatalogBrowser

	// MaxCandidates 兜底候选上限，<=0 使用默认 500
	MaxCandidates int
}

func (n *CatalogNode) Name() string        { return "recall.catalog" }
func (n *CatalogNode) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口：已有候选（向量召回成功）时直接透传。
func (n *CatalogNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) > 0 {
		return items, nil
	}
	return n.Recall(ctx, rctx)
}

// Recall 实现 Source 接口。
func (n *CatalogNode) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if n.Browser == nil {
		return nil, nil
	}

	limit := n.MaxCandidates
	if limit <= 0 {
		limit = 500
	}

	products, err := n.Browser.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	var filters *core.ProductFilters
	if rctx != nil {
		filters = rctx.Filters
	}

	out := make([]*core.Item, 0, min(limit, len(products)))
	for _, p := range products {
		if !filters.Match(p) {
			continue
		}
		it := core.NewItem(p.ID)
		it.SetProduct(p)
		it.PutLabel("recall", utils.Label{Value: n.Name(), Source: "fallback"})
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ pipeline.Node = (*CatalogNode)(nil)
var _ Source = (*CatalogNode)(nil)
