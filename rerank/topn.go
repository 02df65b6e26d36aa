package rerank

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pipeline"
)

// TopNNode 分页截断节点：按请求的 Offset/Limit 截取结果窗口。
// 通常作为 Pipeline 的最后一个节点，放在 MMR 重排之后，
// 保证分页是在最终顺序上切片的。
type TopNNode struct {
	// DefaultLimit 请求未指定 Limit 时的页大小，<=0 表示不截断
	DefaultLimit int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindPostProcess
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	offset, limit := 0, n.DefaultLimit
	if rctx != nil {
		if rctx.Offset > 0 {
			offset = rctx.Offset
		}
		if rctx.Limit > 0 {
			limit = rctx.Limit
		}
	}

	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

var _ pipeline.Node = (*TopNNode)(nil)
