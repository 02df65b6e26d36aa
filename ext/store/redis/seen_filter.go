// Package redis 提供基于 Redis 的扩展过滤组件。
//
// 注意：此实现位于扩展包中，需要单独引入：
//
//	go get github.com/maxwelljhuang/knytt/ext/store/redis
package redis

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/filter"
)

// SeenKeyPrefix 曝光布隆过滤器的 key 前缀，按用户按天分片：
// {prefix}{userID}:{yyyy-mm-dd}
const SeenKeyPrefix = "feedback:seen:bloom:"

// SeenFilter 过滤近期已曝光给用户的商品，避免 feed 反复推同一批结果。
// 每用户每天一个布隆过滤器：误判（把未曝光当已曝光）只会少推一个候选，
// 漏判不存在，符合"宁可多滤不可重复"的曝光语义。
//
// 使用方式：
//
//	seen := redis.NewSeenFilter(client, 100000, 0.01)
//	node := &filter.FilterNode{Filters: []filter.Filter{seen}}
//	// 曝光落地（响应返回后由业务侧调用）
//	seen.MarkSeen(ctx, userID, productIDs)
type SeenFilter struct {
	client *redis.Client

	// capacity 单个布隆过滤器的预期容量（单用户单天的曝光量级）
	capacity uint
	// falsePositiveRate 期望误判率（如 0.01 表示 1%）
	falsePositiveRate float64
	// dayWindow 回看的天数窗口（含当天），默认 7
	dayWindow int
	// ttl 布隆过滤器的过期秒数，默认 dayWindow+1 天
	ttl time.Duration

	now func() time.Time

	// 本地缓存反序列化后的布隆过滤器，避免每个候选一次 Redis 读
	mu    sync.RWMutex
	cache map[string]*bloom.BloomFilter
}

// SeenOption 配置 SeenFilter。
type SeenOption func(*SeenFilter)

// WithDayWindow 设置回看天数窗口。
func WithDayWindow(days int) SeenOption {
	return func(f *SeenFilter) {
		if days > 0 {
			f.dayWindow = days
		}
	}
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) SeenOption {
	return func(f *SeenFilter) { f.now = now }
}

// NewSeenFilter 创建曝光过滤器。
func NewSeenFilter(client *redis.Client, capacity uint, falsePositiveRate float64, opts ...SeenOption) *SeenFilter {
	f := &SeenFilter{
		client:            client,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
		dayWindow:         7,
		now:               time.Now,
		cache:             make(map[string]*bloom.BloomFilter),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.ttl == 0 {
		f.ttl = time.Duration(f.dayWindow+1) * 24 * time.Hour
	}
	return f
}

func (f *SeenFilter) Name() string { return "filter.seen" }

// ShouldFilter 实现 filter.Filter：近 dayWindow 天任一布隆命中即过滤。
func (f *SeenFilter) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	if rctx.Anonymous() {
		return false, nil
	}

	now := f.now()
	for d := 0; d < f.dayWindow; d++ {
		key := f.key(rctx.UserID, now.AddDate(0, 0, -d))
		hit, err := f.test(ctx, key, item.ID)
		if err != nil {
			return false, err
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

// MarkSeen 把一批商品记入当天的曝光布隆并回写 Redis。
// 读改写无锁竞争保护（同用户并发曝光少量丢失可接受）。
func (f *SeenFilter) MarkSeen(ctx context.Context, userID string, productIDs []string) error {
	if userID == "" || len(productIDs) == 0 {
		return nil
	}
	key := f.key(userID, f.now())

	bf, err := f.load(ctx, key)
	if err != nil {
		return err
	}
	if bf == nil {
		bf = bloom.NewWithEstimates(f.capacity, f.falsePositiveRate)
	}
	for _, id := range productIDs {
		bf.Add([]byte(id))
	}

	var buf bytes.Buffer
	if _, err := bf.WriteTo(&buf); err != nil {
		return fmt.Errorf("serialize bloom filter: %w", err)
	}
	if err := f.client.Set(ctx, key, buf.Bytes(), f.ttl).Err(); err != nil {
		return fmt.Errorf("write bloom filter to redis: %w", err)
	}

	f.mu.Lock()
	f.cache[key] = bf
	f.mu.Unlock()
	return nil
}

func (f *SeenFilter) key(userID string, day time.Time) string {
	return SeenKeyPrefix + userID + ":" + day.Format("2006-01-02")
}

func (f *SeenFilter) test(ctx context.Context, key, productID string) (bool, error) {
	bf, err := f.load(ctx, key)
	if err != nil {
		return false, err
	}
	if bf == nil {
		return false, nil
	}
	return bf.Test([]byte(productID)), nil
}

// load 取布隆过滤器：本地缓存 → Redis → 不存在返回 nil。
func (f *SeenFilter) load(ctx context.Context, key string) (*bloom.BloomFilter, error) {
	f.mu.RLock()
	cached, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := f.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bloom filter from redis: %w", err)
	}

	bf := bloom.NewWithEstimates(f.capacity, f.falsePositiveRate)
	if _, err := bf.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("deserialize bloom filter: %w", err)
	}

	f.mu.Lock()
	f.cache[key] = bf
	f.mu.Unlock()
	return bf, nil
}

var _ filter.Filter = (*SeenFilter)(nil)
