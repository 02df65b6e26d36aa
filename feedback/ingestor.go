// Package feedback 实现交互事件摄取：落交互时间线、累积商品互动计数、
// 驱动口味向量在线学习。
package feedback

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/feature"
	"github.com/maxwelljhuang/knytt/filter"
)

// EventsKeyPrefix 用户交互时间线（有序集合，score 为事件时间）。
const EventsKeyPrefix = "feedback:events:"

// Ingestor 是反馈摄取器。
//
// 背压：并发摄取受信号量约束，预算占满时立即返回可重试的 BUSY
// 而非无界排队（反馈是写放大路径，排队只会把口味写锁的队伍拉长）。
//
// 每条事件做三件事：
//  1. 交互时间线 ZAdd（审计/回放）
//  2. 商品互动计数 HIncrBy（热度排序的数据源）
//  3. update_taste=true 时经 TasteStore 更新口味向量并推进 epoch
type Ingestor struct {
	kv      core.KeyValueStore
	tastes  core.TasteStore
	catalog core.Catalog

	sem chan struct{}
	seq atomic.Uint64 // 时间线成员的进程内序号
	now func() time.Time
	log zerolog.Logger
}

// Option 配置 Ingestor。
type Option func(*Ingestor)

// WithConcurrency 设置并发摄取预算（默认 64）。
func WithConcurrency(n int) Option {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.sem = make(chan struct{}, n)
		}
	}
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(ing *Ingestor) { ing.now = now }
}

// WithLogger 注入日志。
func WithLogger(log zerolog.Logger) Option {
	return func(ing *Ingestor) { ing.log = log }
}

// NewIngestor 创建摄取器。catalog 用于按 product_id 取 embedding；
// 商品缺失时口味更新降级为计数（见 TasteStore.Apply）。
func NewIngestor(kv core.KeyValueStore, tastes core.TasteStore, catalog core.Catalog, opts ...Option) *Ingestor {
	ing := &Ingestor{
		kv:      kv,
		tastes:  tastes,
		catalog: catalog,
		sem:     make(chan struct{}, 64),
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// ErrBusy 并发预算占满；调用方应退避重试。
var ErrBusy = core.NewDomainError(core.ModuleFeedback, core.ErrorCodeBusy, "feedback: ingestion budget exhausted, retry later")

// Ingest 处理一条交互事件。
func (ing *Ingestor) Ingest(ctx context.Context, event *core.InteractionEvent) (*core.FeedbackOutcome, error) {
	if err := validate(event); err != nil {
		return nil, err
	}

	select {
	case ing.sem <- struct{}{}:
		defer func() { <-ing.sem }()
	default:
		return nil, ErrBusy
	}

	at := event.At
	if at.IsZero() {
		at = ing.now()
	}

	if err := ing.record(ctx, event, at); err != nil {
		return nil, err
	}

	if !event.UpdateTaste {
		// 只计数不学习：total_interactions 照常累计，
		// 向量与 epoch 均不变，既有缓存仍然有效
		epoch, err := ing.tastes.Touch(ctx, event.UserID)
		if err != nil {
			return nil, err
		}
		return &core.FeedbackOutcome{Epoch: epoch}, nil
	}

	var embedding []float64
	product, found, err := ing.catalog.GetProduct(ctx, event.ProductID)
	if err != nil && !core.IsUnavailable(err) {
		return nil, err
	}
	if found {
		embedding = product.Embedding
	} else {
		ing.log.Warn().Str("product_id", event.ProductID).
			Msg("feedback for unknown product, taste update degrades to counting")
	}

	applied, err := ing.tastes.Apply(ctx, event.UserID, embedding, event.Type)
	if err != nil {
		return nil, err
	}

	ing.log.Debug().Str("user_id", event.UserID).Str("product_id", event.ProductID).
		Str("type", string(event.Type)).Int64("epoch", applied.Epoch).
		Bool("vectors_updated", applied.VectorsUpdated).Msg("feedback ingested")

	return &core.FeedbackOutcome{
		EmbeddingsUpdated: applied.VectorsUpdated,
		CacheInvalidated:  true, // epoch 推进即结构性失效
		Epoch:             applied.Epoch,
	}, nil
}

// record 落交互时间线与商品互动计数。
// 时间线成员带进程内序号：同一秒的重复事件（快速连点）各占一条，
// 不会因 zset 成员去重而合并。
func (ing *Ingestor) record(ctx context.Context, event *core.InteractionEvent, at time.Time) error {
	ts := at.Unix()
	member := fmt.Sprintf("%d:%d:%s:%s", ts, ing.seq.Add(1), event.Type, event.ProductID)
	if err := ing.kv.ZAdd(ctx, EventsKeyPrefix+event.UserID, float64(ts), member); err != nil {
		return err
	}

	if event.Type == core.InteractionDislike {
		// 负反馈进显式拉黑集合，供过滤节点硬性剔除
		return ing.kv.ZAdd(ctx, filter.DislikedKeyPrefix+event.UserID, float64(ts), event.ProductID)
	}

	statsKey := feature.StatsKeyPrefix + event.ProductID
	if field := statsField(event.Type); field != "" {
		if _, err := ing.kv.HIncrBy(ctx, statsKey, field, 1); err != nil {
			return err
		}
	}
	return ing.kv.HSet(ctx, statsKey, feature.FieldLastAt, []byte(strconv.FormatInt(ts, 10)))
}

// statsField 交互类型到计数字段的映射；click 记为一次 view
//（点击必然伴随曝光浏览，热度口径只区分四档）。
func statsField(t core.InteractionType) string {
	switch t {
	case core.InteractionView, core.InteractionClick:
		return feature.FieldViews
	case core.InteractionLike:
		return feature.FieldLikes
	case core.InteractionAddToCart:
		return feature.FieldAddToCarts
	case core.InteractionPurchase:
		return feature.FieldPurchases
	default:
		return ""
	}
}

func validate(event *core.InteractionEvent) error {
	if event == nil {
		return core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, "feedback: nil event")
	}
	if event.UserID == "" {
		return core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, "feedback: empty user id")
	}
	if event.ProductID == "" {
		return core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, "feedback: empty product id")
	}
	if !core.ValidInteractionType(event.Type) {
		return core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput,
			fmt.Sprintf("feedback: unknown interaction type %q", event.Type))
	}
	return nil
}
