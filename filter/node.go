package filter

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/pkg/utils"
)

// FilterNode 组合多个过滤器顺序执行；任一过滤器命中即移除候选。
// 单个过滤器出错不中断整条链路（候选保留，宁可多出不可漏出的反向：
// 过滤是剔除逻辑，出错时保守放行，由下游截断兜底）。
type FilterNode struct {
	Filters []Filter
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		removed := false
		for _, f := range n.Filters {
			hit, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				continue
			}
			if hit {
				item.PutLabel("filtered", utils.Label{Value: "true", Source: f.Name()})
				removed = true
				break
			}
		}
		if !removed {
			out = append(out, item)
		}
	}
	return out, nil
}

var _ pipeline.Node = (*FilterNode)(nil)
