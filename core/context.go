package core

import "github.com/maxwelljhuang/knytt/pkg/utils"

// Scene 表示推荐请求的场景，决定查询向量的混合策略。
type Scene string

const (
	SceneFeed    Scene = "feed"    // 个性化信息流
	SceneSearch  Scene = "search"  // 文本搜索
	SceneSimilar Scene = "similar" // 相似商品（以锚点商品为中心）
)

// ValidScene 校验场景取值。
func ValidScene(s Scene) bool {
	switch s {
	case SceneFeed, SceneSearch, SceneSimilar:
		return true
	default:
		return false
	}
}

// RecommendContext 承载一次请求的用户/场景/过滤信息，贯穿整个 Pipeline 透传。
// UserID 为空表示匿名流量（无个性化，走热度兜底）。
type RecommendContext struct {
	UserID string
	Scene  Scene

	// AnchorProductID 相似推荐的锚点商品（Scene == similar 时使用）
	AnchorProductID string

	// QueryText 搜索原文；QueryEmbedding 由上游 embed(text) 产出，
	// 本引擎不负责文本编码（见外部协作者约定）。
	QueryText      string
	QueryEmbedding []float64

	// QueryVector 混合后的最终查询向量，由引擎在召回前写入；
	// nil 表示无个性化信号，召回节点应跳过向量检索
	QueryVector []float64

	// Filters 结构化过滤条件（价格/类目/库存），nil 表示不过滤
	Filters *ProductFilters

	// 分页与多样性参数；DiversityLambda 为 nil 表示请求未显式指定，
	// 由消费方（MMR 节点）使用自身配置。显式的 0 同样生效（关闭多样性）
	Offset          int
	Limit           int
	DiversityLambda *float64

	// Labels 请求级标签，可驱动 Pipeline 行为，同时用于 explain
	Labels map[string]utils.Label

	// Params 请求级上下文参数（device_type、time_of_day 等）
	Params map[string]any
}

// Anonymous 是否匿名请求。
func (rctx *RecommendContext) Anonymous() bool {
	return rctx == nil || rctx.UserID == ""
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
