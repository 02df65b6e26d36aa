// Package taste 实现口味状态存储（core.TasteStore）：
// 用户长期/会话向量的唯一写入方，所有在线学习都收敛到这里。
package taste

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

const (
	profileKeyPrefix = "taste:profile:"
	epochKeyPrefix   = "taste:epoch:"

	// lockShards 按用户分片的写锁数量。同分片的不同用户偶发串行，
	// 不影响正确性；跨分片写入完全并行。
	lockShards = 128
)

// Store 是基于 KeyValueStore 的口味状态存储。
//
// 并发模型：
//   - Apply 通过按 userID 分片的互斥锁实现 single-writer-per-key，
//     同一用户的并发反馈排队执行，避免 read-modify-write 丢失更新
//   - Get / Epoch 只读，不取写锁
//
// 写入顺序：先提交画像（向量），后递增 epoch。并发读至多观察到
// "旧 epoch + 新向量"（缓存多活一拍），绝不会观察到
// "新 epoch + 旧向量"（缓存永久装入脏结果）。
type Store struct {
	kv core.KeyValueStore

	betas         map[core.InteractionType]float64
	maxConfidence float64       // W_max：置信权重饱和上限
	sessionGap    time.Duration // 会话超时阈值
	dislikeStep   float64       // 负反馈的反向偏移步长

	locks [lockShards]chan struct{}

	now func() time.Time
	log zerolog.Logger
}

// Option 配置 Store。
type Option func(*Store)

// WithLearningWeights 覆盖交互类型 -> β 学习权重表。
func WithLearningWeights(w map[core.InteractionType]float64) Option {
	return func(s *Store) { s.betas = w }
}

// WithMaxConfidence 设置置信权重饱和上限 W_max。
func WithMaxConfidence(w float64) Option {
	return func(s *Store) { s.maxConfidence = w }
}

// WithSessionGap 设置会话超时阈值。
func WithSessionGap(gap time.Duration) Option {
	return func(s *Store) { s.sessionGap = gap }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger 注入日志。
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore 创建口味状态存储。
func NewStore(kv core.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:            kv,
		betas:         core.DefaultLearningWeights(),
		maxConfidence: 10.0,
		sessionGap:    30 * time.Minute,
		dislikeStep:   0.1,
		now:           time.Now,
		log:           zerolog.Nop(),
	}
	for i := range s.locks {
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		s.locks[i] = ch
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 实现 core.TasteStore 接口。
func (s *Store) Get(ctx context.Context, userID string) (*core.TasteProfile, bool, error) {
	if userID == "" {
		return nil, false, core.NewDomainError(core.ModuleTaste, core.ErrorCodeInvalidInput, "taste: empty user id")
	}

	data, err := s.kv.Get(ctx, profileKeyPrefix+userID)
	if core.IsStoreNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var p core.TasteProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("taste: decode profile %s: %w", userID, err)
	}

	epoch, err := s.Epoch(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	p.Epoch = epoch
	return &p, true, nil
}

// Epoch 实现 core.TasteStore 接口。
func (s *Store) Epoch(ctx context.Context, userID string) (int64, error) {
	data, err := s.kv.Get(ctx, epochKeyPrefix+userID)
	if core.IsStoreNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("taste: decode epoch %s: %w", userID, err)
	}
	return epoch, nil
}

// Apply 实现 core.TasteStore 接口。
func (s *Store) Apply(ctx context.Context, userID string, productEmbedding []float64, t core.InteractionType) (*core.ApplyResult, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleTaste, core.ErrorCodeInvalidInput, "taste: empty user id")
	}
	if !core.ValidInteractionType(t) {
		return nil, core.NewDomainError(core.ModuleTaste, core.ErrorCodeInvalidInput,
			fmt.Sprintf("taste: unknown interaction type %q", t))
	}

	// single-writer-per-key：同一分片的写排队，且可被 ctx 取消
	lock := s.locks[shardOf(userID)]
	select {
	case <-lock:
		defer func() { lock <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	profile, found, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		profile = &core.TasteProfile{UserID: userID}
	}

	now := s.now()
	result := &core.ApplyResult{}

	// 会话超时：先作废过期会话，下一次交互从零开始新会话，
	// 绝不与过期向量混合
	if len(profile.Session) > 0 && now.Sub(profile.SessionUpdatedAt) > s.sessionGap {
		profile.Session = nil
		profile.SessionWeight = 0
		result.SessionReset = true
	}

	if len(productEmbedding) > 0 {
		result.VectorsUpdated = s.blend(profile, productEmbedding, t, now)
	} else {
		// 商品尚未完成 embedding：只计数，可观测的降级而非错误
		s.log.Warn().Str("user_id", userID).Str("type", string(t)).
			Msg("taste apply without product embedding, counting only")
	}

	profile.TotalInteractions++
	profile.LastActiveAt = now

	// 先提交向量
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("taste: encode profile %s: %w", userID, err)
	}
	if err := s.kv.Set(ctx, profileKeyPrefix+userID, data); err != nil {
		return nil, err
	}

	// 后递增 epoch（持有写锁，read-modify-write 安全）
	epoch, err := s.Epoch(ctx, userID)
	if err != nil {
		return nil, err
	}
	epoch++
	if err := s.kv.Set(ctx, epochKeyPrefix+userID, []byte(strconv.FormatInt(epoch, 10))); err != nil {
		return nil, err
	}
	result.Epoch = epoch

	s.log.Debug().Str("user_id", userID).Str("type", string(t)).
		Int64("epoch", epoch).Bool("vectors_updated", result.VectorsUpdated).
		Msg("taste applied")
	return result, nil
}

// Touch 实现 core.TasteStore 接口：只累计交互计数，不碰向量也不推进
// epoch（既有缓存保持有效）。
func (s *Store) Touch(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, core.NewDomainError(core.ModuleTaste, core.ErrorCodeInvalidInput, "taste: empty user id")
	}

	lock := s.locks[shardOf(userID)]
	select {
	case <-lock:
		defer func() { lock <- struct{}{} }()
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	profile, found, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		profile = &core.TasteProfile{UserID: userID}
	}

	profile.TotalInteractions++
	profile.LastActiveAt = s.now()

	data, err := json.Marshal(profile)
	if err != nil {
		return 0, fmt.Errorf("taste: encode profile %s: %w", userID, err)
	}
	if err := s.kv.Set(ctx, profileKeyPrefix+userID, data); err != nil {
		return 0, err
	}
	return profile.Epoch, nil
}

// blend 把商品 embedding 融入长期/会话向量（EWMA with confidence）。
//
//	γ  = w / (w + β(type))
//	v' = normalize(γ·v + (1-γ)·e)
//	w' = min(w + β, W_max)
//
// w=0（全新画像）时 γ=0，v' 恰为 normalize(e)；饱和上限保证单个商品
// 永远无法抹掉成熟画像，而旧历史随交互累积按比例相对衰减。
//
// 返回向量是否被实际扰动：长期向量缺失时的 dislike 无从排斥，是 no-op。
func (s *Store) blend(p *core.TasteProfile, emb []float64, t core.InteractionType, now time.Time) bool {
	if t == core.InteractionDislike {
		// 负反馈：长期向量做固定步长的反向偏移，不消耗 β 预算
		if len(p.LongTerm) == 0 {
			return false
		}
		away := make([]float64, len(p.LongTerm))
		for i := range away {
			away[i] = p.LongTerm[i] - s.dislikeStep*(emb[i]-p.LongTerm[i])
		}
		v := vecmath.Normalize(away)
		if v == nil {
			return false
		}
		p.LongTerm = v
		return true
	}

	beta := s.betas[t]
	if beta <= 0 {
		return false
	}

	p.LongTerm = ewmaStep(p.LongTerm, emb, p.LongTermWeight, beta)
	p.LongTermWeight = min(p.LongTermWeight+beta, s.maxConfidence)

	fresh := len(p.Session) == 0
	p.Session = ewmaStep(p.Session, emb, p.SessionWeight, beta)
	p.SessionWeight = min(p.SessionWeight+beta, s.maxConfidence)
	if fresh {
		p.SessionStartedAt = now
	}
	p.SessionUpdatedAt = now
	return true
}

// ewmaStep 执行单步 EWMA 融合；当前向量为空视为 w=0（纯重置）。
func ewmaStep(cur, emb []float64, w, beta float64) []float64 {
	if len(cur) == 0 || w <= 0 {
		return vecmath.Normalize(emb)
	}
	gamma := w / (w + beta)
	blended := vecmath.Lerp(cur, emb, gamma)
	if v := vecmath.Normalize(blended); v != nil {
		return v
	}
	// γ 混合恰好相消为零向量（两向量反向），退回商品方向
	return vecmath.Normalize(emb)
}

// Close 实现 core.TasteStore 接口（底层 KV 的生命周期由调用方管理）。
func (s *Store) Close() error { return nil }

func shardOf(userID string) int {
	return int(xxhash.Sum64String(userID) % lockShards)
}

// 确保实现了接口
var _ core.TasteStore = (*Store)(nil)
