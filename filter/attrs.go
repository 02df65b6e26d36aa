package filter

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
)

// AttrsFilter 按请求的结构化条件（价格带/类目/库存）过滤候选。
// 检索侧已按策略应用过同样的条件，这里兜底两类漏网：
// 热度兜底路径不经过向量索引，以及索引 post-filter 接受不足 k 时
// 混入的池外候选。
type AttrsFilter struct{}

func (f *AttrsFilter) Name() string {
	return "filter.attrs"
}

func (f *AttrsFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if rctx == nil || rctx.Filters.Empty() {
		return false, nil
	}
	p := item.Product()
	if p == nil {
		// 没有商品快照无从判定，保守放行
		return false, nil
	}
	return !rctx.Filters.Match(p), nil
}

var _ Filter = (*AttrsFilter)(nil)
