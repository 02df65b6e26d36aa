// Package feature 提供商品互动统计的读取层：热度排序的数据来源。
// 统计由反馈链路累积（store 实现），也可从 Feast 在线特征库拉取
// （离线批处理物化的全量口径），两者可组成降级链。
package feature

import (
	"context"
	"time"
)

// ProductStats 单个商品的互动统计。
type ProductStats struct {
	Views      int64
	Likes      int64
	AddToCarts int64
	Purchases  int64

	// LastInteraction 最近一次互动时间，驱动热度的时间衰减；
	// 零值表示从未有互动
	LastInteraction time.Time
}

// Engagement 加权互动分：view=1 like=2 cart=3 purchase=5。
func (s ProductStats) Engagement() float64 {
	return float64(s.Views) + 2*float64(s.Likes) + 3*float64(s.AddToCarts) + 5*float64(s.Purchases)
}

// Provider 批量读取商品互动统计。
// 缺失统计的商品不出现在返回 map 中（视为零互动），不是错误。
type Provider interface {
	ProductStats(ctx context.Context, productIDs []string) (map[string]ProductStats, error)
}
