package core

import "time"

// InteractionType 是用户与商品的交互类型。
type InteractionType string

const (
	InteractionView      InteractionType = "view"
	InteractionClick     InteractionType = "click"
	InteractionLike      InteractionType = "like"
	InteractionAddToCart InteractionType = "add_to_cart"
	InteractionPurchase  InteractionType = "purchase"
	// InteractionDislike 是负反馈：不走 β 学习权重，而是做固定步长的反向偏移
	InteractionDislike InteractionType = "dislike"
)

// ValidInteractionType 校验交互类型取值。
func ValidInteractionType(t InteractionType) bool {
	switch t {
	case InteractionView, InteractionClick, InteractionLike,
		InteractionAddToCart, InteractionPurchase, InteractionDislike:
		return true
	default:
		return false
	}
}

// DefaultLearningWeights 是各交互类型的默认学习权重 β(type) ∈ (0,1]。
// 信号越强，口味向量向该商品 embedding 靠拢得越快，但永远不会整体替换
//（γ = w/(w+β) 保证旧画像按比例衰减而非清零）。
func DefaultLearningWeights() map[InteractionType]float64 {
	return map[InteractionType]float64{
		InteractionView:      0.05,
		InteractionClick:     0.15,
		InteractionLike:      0.5,
		InteractionAddToCart: 0.6,
		InteractionPurchase:  0.9,
	}
}

// InteractionEvent 是一次交互事件，由反馈链路的调用方产出。
type InteractionEvent struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Type      InteractionType `json:"type"`

	// UpdateTaste 为 false 时只记录交互，不扰动口味向量
	UpdateTaste bool `json:"update_taste"`

	Scene Scene     `json:"scene,omitempty"`
	At    time.Time `json:"at,omitempty"`
}

// FeedbackOutcome 是反馈处理结果，供调用方回报 embeddings_updated /
// cache_invalidated 字段；epoch 递增本身就是缓存失效。
type FeedbackOutcome struct {
	EmbeddingsUpdated bool  `json:"embeddings_updated"`
	CacheInvalidated  bool  `json:"cache_invalidated"`
	Epoch             int64 `json:"epoch,omitempty"`
}
