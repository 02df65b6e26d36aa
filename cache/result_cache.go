// Package cache 实现结果缓存：epoch 入键的记忆化层。
// 用户口味每次写入都会推进 epoch，旧 epoch 的缓存键不再被构造，
// 失效是结构性的（无需主动驱逐，孤儿项由 TTL 回收），
// 从根上消除"驱逐与读取竞态"。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/maxwelljhuang/knytt/core"
)

const keyPrefix = "cache:result:"

// anonIdentity 匿名流量共享同一身份段（epoch 恒为 0）。
const anonIdentity = "anon"

// Key 构造缓存键：场景、身份、过滤条件、分页窗口、多样性参数
// 与 blend epoch 共同决定结果，任一变化都落到不同的键上。
func Key(rctx *core.RecommendContext, epoch int64) string {
	identity := rctx.UserID
	if rctx.Anonymous() {
		identity = anonIdentity
	}

	var b strings.Builder
	b.WriteString(string(rctx.Scene))
	b.WriteByte('|')
	b.WriteString(identity)
	b.WriteByte('|')
	b.WriteString(rctx.AnchorProductID)
	b.WriteByte('|')
	b.WriteString(rctx.QueryText)
	b.WriteByte('|')
	b.WriteString(rctx.Filters.Canonical())
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(rctx.Offset))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(rctx.Limit))
	b.WriteByte('|')
	if rctx.DiversityLambda != nil {
		b.WriteString(strconv.FormatFloat(*rctx.DiversityLambda, 'f', 4, 64))
	} else {
		b.WriteByte('-')
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(epoch, 10))

	return keyPrefix + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// ResultCache 是 TTL 存储之上的 get-or-compute 层。
// 并发的同键未命中经 singleflight 合并为一次计算，
// 羊群效应下重算只发生一次。
type ResultCache struct {
	store core.Store
	ttl   int // 秒
	group singleflight.Group
}

// NewResultCache 创建结果缓存；ttl 为秒，<=0 使用默认 300。
func NewResultCache(store core.Store, ttl int) *ResultCache {
	if ttl <= 0 {
		ttl = 300
	}
	return &ResultCache{store: store, ttl: ttl}
}

// GetOrCompute 命中直接返回缓存值（cached=true）；
// 未命中执行 compute 并写回（cached=false）。
// compute 的错误原样透出且不落缓存（负向结果不记忆）。
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (*core.RankResult, error),
) (*core.RankResult, bool, error) {
	if data, err := c.store.Get(ctx, key); err == nil {
		var result core.RankResult
		if err := json.Unmarshal(data, &result); err == nil {
			return &result, true, nil
		}
		// 坏条目当作未命中覆盖写
	} else if !core.IsStoreNotFound(err) {
		// 缓存后端故障降级为直接计算，不阻断读路径
		result, err := compute(ctx)
		return result, false, err
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("cache: encode result: %w", err)
		}
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			// 写缓存失败不影响本次结果
			return result, nil
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*core.RankResult), false, nil
}
