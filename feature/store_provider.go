package feature

import (
	"context"
	"strconv"
	"time"

	"github.com/maxwelljhuang/knytt/core"
)

// 统计哈希的 key 前缀与字段名；反馈链路按同一布局累积计数。
const (
	StatsKeyPrefix = "stats:product:"

	FieldViews      = "views"
	FieldLikes      = "likes"
	FieldAddToCarts = "add_to_carts"
	FieldPurchases  = "purchases"
	FieldLastAt     = "last_at" // unix 秒
)

// StoreProvider 从 KeyValueStore 的哈希表读取互动统计。
// 这是在线累积口径：反馈每到一条计数即时 +1，无物化延迟。
type StoreProvider struct {
	kv core.KeyValueStore
}

// NewStoreProvider 创建 store 实现的统计读取层。
func NewStoreProvider(kv core.KeyValueStore) *StoreProvider {
	return &StoreProvider{kv: kv}
}

// ProductStats 实现 Provider 接口。
func (p *StoreProvider) ProductStats(ctx context.Context, productIDs []string) (map[string]ProductStats, error) {
	out := make(map[string]ProductStats, len(productIDs))
	for _, id := range productIDs {
		fields, err := p.kv.HGetAll(ctx, StatsKeyPrefix+id)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}

		var s ProductStats
		s.Views = parseCount(fields[FieldViews])
		s.Likes = parseCount(fields[FieldLikes])
		s.AddToCarts = parseCount(fields[FieldAddToCarts])
		s.Purchases = parseCount(fields[FieldPurchases])
		if sec := parseCount(fields[FieldLastAt]); sec > 0 {
			s.LastInteraction = time.Unix(sec, 0)
		}
		out[id] = s
	}
	return out, nil
}

func parseCount(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}

var _ Provider = (*StoreProvider)(nil)
