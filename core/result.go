package core

import "context"

// RankRequest 是排序请求（engine.Rank 的入参）。
type RankRequest struct {
	Scene  Scene  `json:"scene"`
	UserID string `json:"user_id,omitempty"` // 空表示匿名

	AnchorProductID string `json:"anchor_product_id,omitempty"`

	QueryText string `json:"query_text,omitempty"`
	// QueryEmbedding 由上游 embed(text) 产出；为空且 QueryText 非空时
	// 引擎会尝试 TextEncoder 协作者
	QueryEmbedding []float64 `json:"-"`

	Filters *ProductFilters `json:"filters,omitempty"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`

	// DiversityLambda ∈ [0,1]；nil 使用配置默认值
	DiversityLambda *float64 `json:"diversity_lambda,omitempty"`
}

// RankResult 是排序响应：结果列表 + 个性化元数据。
// 所有降级（信号缺失、索引不可用）都吸收为元数据标志而非错误。
type RankResult struct {
	Items []*Item `json:"items"`
	Total int     `json:"total"`

	Personalized bool `json:"personalized"`
	Cached       bool `json:"cached"`

	// BlendWeights 实际生效（重归一化后）的混合权重
	BlendWeights map[string]float64 `json:"blend_weights,omitempty"`

	HasLongTermProfile bool `json:"has_long_term_profile"`
	HasSessionContext  bool `json:"has_session_context"`
}

// TextEncoder 是文本编码协作者接口：embed(text) -> R^d。
// 训练与推理均在上游完成，本引擎只消费结果。
type TextEncoder interface {
	EncodeText(ctx context.Context, text string) ([]float64, error)
}
