// Package recall 提供候选生成节点：向量检索召回与目录遍历兜底召回。
package recall

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
)

// Source 表示一个可复用的召回源。
// 召回节点同时实现 Source 与 pipeline.Node，既可单独调用也可编排进 Pipeline。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}
