package recall

import (
	"context"
	"strconv"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/pkg/utils"
)

// VectorNode 向量检索召回：用引擎混合好的查询向量（rctx.QueryVector）
// 做近邻检索，命中的商品快照直接挂到 Item 上供下游复用。
// 查询向量缺失（匿名且无任何信号）时产出为空，由兜底召回接管。
type VectorNode struct {
	Index core.VectorIndex

	// TopK 召回条数；要覆盖 MMR 候选池与分页窗口，通常取
	// max(pool, offset+limit) 由引擎配置
	TopK int
}

func (n *VectorNode) Name() string        { return "recall.vector" }
func (n *VectorNode) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口。
func (n *VectorNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return n.Recall(ctx, rctx)
}

// Recall 实现 Source 接口。
func (n *VectorNode) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if n.Index == nil || rctx == nil || len(rctx.QueryVector) == 0 {
		return nil, nil
	}

	topK := n.TopK
	if topK <= 0 {
		topK = 200
	}

	res, err := n.Index.Search(ctx, &core.VectorSearchRequest{
		Vector:  rctx.QueryVector,
		TopK:    topK,
		Filters: rctx.Filters,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*core.Item, 0, len(res.Items))
	for _, hit := range res.Items {
		it := core.NewItem(hit.ID)
		it.Score = hit.Score
		it.SetProduct(hit.Entry)
		it.PutLabel("recall", utils.Label{Value: n.Name(), Source: res.Strategy})
		out = append(out, it)
	}
	if res.Retries > 0 {
		rctx.PutLabel("recall.retries", utils.Label{
			Value:  strconv.Itoa(res.Retries),
			Source: n.Name(),
		})
	}
	return out, nil
}

var _ pipeline.Node = (*VectorNode)(nil)
var _ Source = (*VectorNode)(nil)
