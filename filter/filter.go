// Package filter 提供过滤节点：结构化属性过滤、CEL 表达式过滤、
// 用户负反馈过滤。过滤器实现 Filter 接口，由 FilterNode 组合执行。
package filter

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
)

// Filter 判断一个候选是否应该被过滤掉。
// 返回 true 表示过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称（用于 explain 标签）
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}
