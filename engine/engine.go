// Package engine 组装个性化排序引擎的读写两条链路：
//
//	读：口味画像 → 查询向量合成 → 向量召回 → 过滤 → MMR 重排 → 分页，
//	    外层包结果缓存；索引超时/不可用降级为热度排序
//	写：反馈摄取（交互落盘 + 计数 + 口味在线学习）
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maxwelljhuang/knytt/blend"
	"github.com/maxwelljhuang/knytt/cache"
	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/feature"
	"github.com/maxwelljhuang/knytt/feedback"
	"github.com/maxwelljhuang/knytt/filter"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/rank"
	"github.com/maxwelljhuang/knytt/recall"
	"github.com/maxwelljhuang/knytt/rerank"
)

// Engine 是引擎门面，持有全部协作者。
// 除 TextEncoder 与统计源外均为必选；统计源缺失时热度分恒为 0
//（冷启动排序退化为质量分）。
type Engine struct {
	tastes  core.TasteStore
	index   core.VectorIndex
	catalog core.CatalogBrowser
	kv      core.KeyValueStore
	stats   feature.Provider
	encoder core.TextEncoder

	blender  *blend.Blender
	results  *cache.ResultCache
	ingestor *feedback.Ingestor

	indexTimeout  time.Duration
	defaultLimit  int
	defaultLambda float64
	poolSize      int
	halfLife      time.Duration

	now func() time.Time
	log zerolog.Logger
}

// Option 配置 Engine。
type Option func(*Engine)

// WithIndexTimeout 设置单次向量检索预算（默认 200ms），
// 超时即降级为热度排序。
func WithIndexTimeout(d time.Duration) Option {
	return func(e *Engine) { e.indexTimeout = d }
}

// WithDefaultLimit 设置请求未指定 Limit 时的页大小（默认 20）。
func WithDefaultLimit(n int) Option {
	return func(e *Engine) { e.defaultLimit = n }
}

// WithDefaultLambda 设置默认多样性强度（默认 0.3）。
func WithDefaultLambda(l float64) Option {
	return func(e *Engine) { e.defaultLambda = l }
}

// WithPoolSize 设置召回条数 / MMR 候选池上限（默认 200）。
func WithPoolSize(n int) Option {
	return func(e *Engine) { e.poolSize = n }
}

// WithStore 注入 KV 存储，启用负反馈拉黑过滤。
func WithStore(kv core.KeyValueStore) Option {
	return func(e *Engine) { e.kv = kv }
}

// WithStats 注入商品互动统计源。
func WithStats(p feature.Provider) Option {
	return func(e *Engine) { e.stats = p }
}

// WithTextEncoder 注入文本编码协作者（search 场景）。
func WithTextEncoder(enc core.TextEncoder) Option {
	return func(e *Engine) { e.encoder = enc }
}

// WithHalfLife 设置热度时间衰减半衰期（默认 30 天）。
func WithHalfLife(d time.Duration) Option {
	return func(e *Engine) { e.halfLife = d }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger 注入日志。
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New 创建引擎。catalog 通常就是向量索引自身（MemoryIndex 同时实现
// VectorIndex 与 CatalogBrowser）。
func New(
	tastes core.TasteStore,
	index core.VectorIndex,
	catalog core.CatalogBrowser,
	blender *blend.Blender,
	results *cache.ResultCache,
	ingestor *feedback.Ingestor,
	opts ...Option,
) *Engine {
	e := &Engine{
		tastes:   tastes,
		index:    index,
		catalog:  catalog,
		blender:  blender,
		results:  results,
		ingestor: ingestor,

		indexTimeout:  200 * time.Millisecond,
		defaultLimit:  20,
		defaultLambda: 0.3,
		poolSize:      200,
		halfLife:      30 * 24 * time.Hour,

		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank 执行一次排序请求。
func (e *Engine) Rank(ctx context.Context, req *core.RankRequest) (*core.RankResult, error) {
	if req == nil || !core.ValidScene(req.Scene) {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			fmt.Sprintf("engine: invalid scene %q", scene(req)))
	}
	if req.Scene == core.SceneSimilar && req.AnchorProductID == "" {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			"engine: similar scene requires anchor_product_id")
	}

	rctx := e.buildContext(req)

	// 画像与锚点商品互不依赖，并行读取
	var profile *core.TasteProfile
	var anchor []float64
	g, gctx := errgroup.WithContext(ctx)
	if !rctx.Anonymous() {
		g.Go(func() error {
			p, _, err := e.tastes.Get(gctx, rctx.UserID)
			profile = p
			return err
		})
	}
	if req.Scene == core.SceneSimilar {
		g.Go(func() error {
			p, found, err := e.catalog.GetProduct(gctx, req.AnchorProductID)
			if err != nil {
				return err
			}
			if !found || len(p.Embedding) == 0 {
				return core.NewDomainError(core.ModuleEngine, core.ErrorCodeNotFound,
					fmt.Sprintf("engine: anchor product %q not found", req.AnchorProductID))
			}
			anchor = p.Embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	text := e.textEmbedding(ctx, req)

	blended, err := e.blender.Compose(req.Scene, profile, anchor, text)
	if err != nil {
		return nil, err
	}
	rctx.QueryVector = blended.Query

	var epoch int64
	if profile != nil {
		epoch = profile.Epoch
	}

	result, cached, err := e.results.GetOrCompute(ctx, cache.Key(rctx, epoch),
		func(ctx context.Context) (*core.RankResult, error) {
			return e.compute(ctx, rctx, blended)
		})
	if err != nil {
		return nil, err
	}
	result.Cached = cached
	return result, nil
}

// Feedback 处理一条交互事件。
func (e *Engine) Feedback(ctx context.Context, event *core.InteractionEvent) (*core.FeedbackOutcome, error) {
	return e.ingestor.Ingest(ctx, event)
}

// Close 释放协作者资源。
func (e *Engine) Close() error {
	err := e.tastes.Close()
	if cerr := e.index.Close(); err == nil {
		err = cerr
	}
	return err
}

// compute 缓存未命中时的完整读链路。
func (e *Engine) compute(ctx context.Context, rctx *core.RecommendContext, blended *blend.Blend) (*core.RankResult, error) {
	personalized := blended.Personalized()
	items, err := e.retrieve(ctx, rctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || core.IsUnavailable(err) {
			// 索引超时/不可用：降级为热度排序，对外可观测
			e.log.Warn().Err(err).Str("scene", string(rctx.Scene)).
				Msg("vector retrieval degraded to popularity ranking")
			personalized = false
			items = nil
		} else {
			return nil, err
		}
	}

	if personalized && blended.PriorWeight > 0 && e.stats != nil {
		if err := e.mixPrior(ctx, items, blended.PriorWeight); err != nil {
			return nil, err
		}
	}

	items, err = e.refine(ctx, rctx, items, personalized)
	if err != nil {
		return nil, err
	}

	total := len(items)
	topn := &rerank.TopNNode{DefaultLimit: e.defaultLimit}
	items, err = topn.Process(ctx, rctx, items)
	if err != nil {
		return nil, err
	}

	// 非个性化结果（无信号或降级）统一报告纯热度先验的权重口径，
	// blend_weights 与 personalized 标记保持一致
	weights := blended.Weights
	if !personalized {
		weights = map[string]float64{blend.SignalPrior: 1}
	}

	return &core.RankResult{
		Items:              items,
		Total:              total,
		Personalized:       personalized,
		BlendWeights:       weights,
		HasLongTermProfile: blended.HasLongTerm,
		HasSessionContext:  blended.HasSession,
	}, nil
}

// retrieve 向量召回；查询向量缺失时直接走兜底。
func (e *Engine) retrieve(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if len(rctx.QueryVector) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.indexTimeout)
	defer cancel()

	node := &recall.VectorNode{Index: e.index, TopK: e.recallDepth(rctx)}
	return node.Recall(ctx, rctx)
}

// refine 过滤 + 排序/重排（不含分页）。
func (e *Engine) refine(ctx context.Context, rctx *core.RecommendContext, items []*core.Item, personalized bool) ([]*core.Item, error) {
	nodes := []pipeline.Node{
		&recall.CatalogNode{Browser: e.catalog, MaxCandidates: e.recallDepth(rctx)},
		&filter.FilterNode{Filters: e.filters()},
	}
	if personalized {
		nodes = append(nodes, &rerank.MMRNode{Lambda: e.defaultLambda, PoolSize: e.poolSize})
	} else {
		nodes = append(nodes, &rank.PopularityNode{
			Provider: e.stats,
			HalfLife: e.halfLife,
			Now:      e.now,
		})
	}

	p := &pipeline.Pipeline{Nodes: nodes}
	return p.Run(ctx, rctx, items)
}

func (e *Engine) filters() []filter.Filter {
	fs := []filter.Filter{
		&filter.AttrsFilter{},
		filter.NewExprFilter(),
	}
	if e.kv != nil {
		fs = append(fs, filter.NewDislikedFilter(e.kv))
	}
	return fs
}

// mixPrior 把热度先验混入相关性：score = (1-w)·sim + w·pop。
// feed 策略表固定保留一份非个性化质量，成熟画像也会透出一定热度信号。
func (e *Engine) mixPrior(ctx context.Context, items []*core.Item, w float64) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	pops, err := rank.PopScores(ctx, e.stats, ids, e.now(), e.halfLife)
	if err != nil {
		return err
	}
	for _, it := range items {
		it.Score = (1-w)*it.Score + w*pops[it.ID]
	}
	return nil
}

// recallDepth 召回条数：覆盖 MMR 候选池与请求的分页窗口。
func (e *Engine) recallDepth(rctx *core.RecommendContext) int {
	depth := e.poolSize
	if window := rctx.Offset + rctx.Limit; window > depth {
		depth = window
	}
	return depth
}

func (e *Engine) buildContext(req *core.RankRequest) *core.RecommendContext {
	limit := req.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}
	return &core.RecommendContext{
		UserID:          req.UserID,
		Scene:           req.Scene,
		AnchorProductID: req.AnchorProductID,
		QueryText:       req.QueryText,
		QueryEmbedding:  req.QueryEmbedding,
		Filters:         req.Filters,
		Offset:          req.Offset,
		Limit:           limit,
		DiversityLambda: req.DiversityLambda,
	}
}

// textEmbedding 搜索文本向量：请求自带优先，否则尝试编码协作者；
// 编码失败降级为画像驱动的搜索，不阻断请求。
func (e *Engine) textEmbedding(ctx context.Context, req *core.RankRequest) []float64 {
	if len(req.QueryEmbedding) > 0 {
		return req.QueryEmbedding
	}
	if req.QueryText == "" || e.encoder == nil {
		return nil
	}
	vec, err := e.encoder.EncodeText(ctx, req.QueryText)
	if err != nil {
		e.log.Warn().Err(err).Msg("text encoding failed, search degrades to profile signals")
		return nil
	}
	return vec
}

func scene(req *core.RankRequest) core.Scene {
	if req == nil {
		return ""
	}
	return req.Scene
}
