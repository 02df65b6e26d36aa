package filter

import (
	"context"

	"github.com/maxwelljhuang/knytt/core"
)

// DislikedKeyPrefix 负反馈集合的 key 前缀，成员由反馈链路写入。
const DislikedKeyPrefix = "feedback:disliked:"

// DislikedFilter 过滤用户明确表达过负反馈（dislike）的商品。
// 口味向量的反向偏移只能降低这类商品的相关性，不能保证它们
// 永不出现；显式拉黑集合提供硬性保证。
type DislikedFilter struct {
	kv core.KeyValueStore
}

// NewDislikedFilter 创建负反馈过滤器。
func NewDislikedFilter(kv core.KeyValueStore) *DislikedFilter {
	return &DislikedFilter{kv: kv}
}

func (f *DislikedFilter) Name() string {
	return "filter.disliked"
}

func (f *DislikedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.kv == nil || rctx.Anonymous() {
		return false, nil
	}

	_, err := f.kv.ZScore(ctx, DislikedKeyPrefix+rctx.UserID, item.ID)
	if core.IsStoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ Filter = (*DislikedFilter)(nil)
