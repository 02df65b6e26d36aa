package taste

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
	"github.com/maxwelljhuang/knytt/store"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *store.MemoryStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	return NewStore(kv, opts...), kv
}

func TestApply_FreshUserLike(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	emb := []float64{3, 4, 0}
	res, err := s.Apply(ctx, "u1", emb, core.InteractionLike)
	if err != nil {
		t.Fatalf("Apply error = %v", err)
	}
	if !res.VectorsUpdated {
		t.Error("向量应被更新")
	}
	if res.Epoch != 1 {
		t.Errorf("epoch = %d，期望 1", res.Epoch)
	}

	p, found, err := s.Get(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v)", found, err)
	}

	// 全新画像（w=0）：长期向量应恰为 normalize(e)，权重恰为 β(like)=0.5
	want := vecmath.Normalize(emb)
	for i := range want {
		if math.Abs(p.LongTerm[i]-want[i]) > 1e-9 {
			t.Fatalf("LongTerm = %v，期望 %v", p.LongTerm, want)
		}
	}
	if math.Abs(p.LongTermWeight-0.5) > 1e-9 {
		t.Errorf("LongTermWeight = %v，期望 0.5", p.LongTermWeight)
	}
	if p.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d，期望 1", p.TotalInteractions)
	}
}

func TestApply_UnitNormInvariant(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	embs := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0.5, 0.5, 0.7},
		{-1, 2, 3},
	}
	types := []core.InteractionType{
		core.InteractionView, core.InteractionClick,
		core.InteractionPurchase, core.InteractionAddToCart,
	}
	for i, emb := range embs {
		if _, err := s.Apply(ctx, "u1", emb, types[i]); err != nil {
			t.Fatalf("Apply #%d error = %v", i, err)
		}
		p, _, _ := s.Get(ctx, "u1")
		if !vecmath.IsUnit(p.LongTerm, 1e-9) {
			t.Fatalf("第 %d 次写入后长期向量范数 = %v", i, vecmath.Norm(p.LongTerm))
		}
		if !vecmath.IsUnit(p.Session, 1e-9) {
			t.Fatalf("第 %d 次写入后会话向量范数 = %v", i, vecmath.Norm(p.Session))
		}
	}
}

func TestApply_GammaBlending(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 第一次 like 建立画像 (1,0)，第二次 like (0,1)：
	// γ = 0.5/(0.5+0.5) = 0.5 → v' = normalize(0.5, 0.5)
	_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionLike)
	_, _ = s.Apply(ctx, "u1", []float64{0, 1}, core.InteractionLike)

	p, _, _ := s.Get(ctx, "u1")
	want := 1 / math.Sqrt2
	if math.Abs(p.LongTerm[0]-want) > 1e-9 || math.Abs(p.LongTerm[1]-want) > 1e-9 {
		t.Fatalf("LongTerm = %v，期望 (%v, %v)", p.LongTerm, want, want)
	}
	if math.Abs(p.LongTermWeight-1.0) > 1e-9 {
		t.Errorf("LongTermWeight = %v，期望 1.0", p.LongTermWeight)
	}
}

func TestApply_ConfidenceSaturation(t *testing.T) {
	s, _ := newTestStore(t, WithMaxConfidence(1.5))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionPurchase)
	}
	p, _, _ := s.Get(ctx, "u1")
	if p.LongTermWeight > 1.5+1e-9 {
		t.Errorf("LongTermWeight = %v，应饱和在 1.5", p.LongTermWeight)
	}
}

func TestApply_SessionReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s, _ := newTestStore(t, WithClock(clock), WithSessionGap(30*time.Minute))
	ctx := context.Background()

	_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionLike)

	// 31 分钟后：会话过期，新交互从零开始，不与过期向量混合
	now = now.Add(31 * time.Minute)
	fresh := []float64{0, 2}
	res, err := s.Apply(ctx, "u1", fresh, core.InteractionClick)
	if err != nil {
		t.Fatalf("Apply error = %v", err)
	}
	if !res.SessionReset {
		t.Error("应报告会话重置")
	}

	p, _, _ := s.Get(ctx, "u1")
	want := vecmath.Normalize(fresh)
	for i := range want {
		if math.Abs(p.Session[i]-want[i]) > 1e-9 {
			t.Fatalf("重置后会话向量 = %v，期望纯 normalize(e) = %v", p.Session, want)
		}
	}
	if !p.SessionStartedAt.Equal(now) {
		t.Errorf("SessionStartedAt = %v，期望 %v", p.SessionStartedAt, now)
	}
}

func TestApply_WithinSessionNoReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s, _ := newTestStore(t, WithClock(clock))
	ctx := context.Background()

	_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionLike)
	now = now.Add(10 * time.Minute)
	res, _ := s.Apply(ctx, "u1", []float64{0, 1}, core.InteractionLike)
	if res.SessionReset {
		t.Error("gap 窗口内不应重置会话")
	}

	p, _, _ := s.Get(ctx, "u1")
	// 混合结果而非纯重置
	if math.Abs(p.Session[0]) < 1e-9 {
		t.Errorf("会话向量 = %v，应是混合结果", p.Session)
	}
}

func TestApply_MissingEmbeddingCountsOnly(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	res, err := s.Apply(ctx, "u1", nil, core.InteractionView)
	if err != nil {
		t.Fatalf("缺失 embedding 应为降级而非错误，实际 %v", err)
	}
	if res.VectorsUpdated {
		t.Error("缺失 embedding 不应更新向量")
	}
	if res.Epoch != 1 {
		t.Errorf("epoch = %d，期望仍然递增为 1", res.Epoch)
	}

	p, found, _ := s.Get(ctx, "u1")
	if !found || p.TotalInteractions != 1 {
		t.Fatalf("交互计数 = %v，期望 1", p)
	}
	if len(p.LongTerm) != 0 {
		t.Errorf("LongTerm = %v，期望为空", p.LongTerm)
	}
}

func TestTouch_CountsWithoutLearning(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 全新用户：Touch 建立画像，计数 1，epoch 保持 0
	epoch, err := s.Touch(ctx, "u1")
	if err != nil {
		t.Fatalf("Touch error = %v", err)
	}
	if epoch != 0 {
		t.Errorf("epoch = %d，Touch 不应推进 epoch", epoch)
	}
	p, found, err := s.Get(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v)，期望画像已建立", found, err)
	}
	if p.TotalInteractions != 1 || len(p.LongTerm) != 0 {
		t.Fatalf("画像 = %+v，期望只计数无向量", p)
	}

	// 既有画像：向量与 epoch 原样，仅计数 +1
	_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionLike)
	before, _, _ := s.Get(ctx, "u1")

	epoch, err = s.Touch(ctx, "u1")
	if err != nil {
		t.Fatalf("Touch error = %v", err)
	}
	if epoch != before.Epoch {
		t.Errorf("epoch = %d，期望保持 %d", epoch, before.Epoch)
	}

	after, _, _ := s.Get(ctx, "u1")
	if after.TotalInteractions != before.TotalInteractions+1 {
		t.Errorf("TotalInteractions = %d，期望 %d", after.TotalInteractions, before.TotalInteractions+1)
	}
	for i := range before.LongTerm {
		if after.LongTerm[i] != before.LongTerm[i] {
			t.Fatal("Touch 改变了长期向量")
		}
	}
}

func TestTouch_EmptyUser(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Touch(context.Background(), ""); !core.IsInvalidInput(err) {
		t.Fatalf("空用户应返回 INVALID_INPUT，实际 %v", err)
	}
}

func TestApply_EpochMonotonic(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		res, err := s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionView)
		if err != nil {
			t.Fatalf("Apply error = %v", err)
		}
		if res.Epoch <= last {
			t.Fatalf("epoch %d 未单调递增（上次 %d）", res.Epoch, last)
		}
		last = res.Epoch
	}

	epoch, err := s.Epoch(ctx, "u1")
	if err != nil || epoch != last {
		t.Fatalf("Epoch() = (%d, %v)，期望 %d", epoch, err, last)
	}
}

func TestApply_Dislike(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionLike)
	p1, _, _ := s.Get(ctx, "u1")

	_, _ = s.Apply(ctx, "u1", []float64{0, 1}, core.InteractionDislike)
	p2, _, _ := s.Get(ctx, "u1")

	// 负反馈后与被踩商品的相似度应下降，且向量保持单位范数
	before := vecmath.Cosine(p1.LongTerm, []float64{0, 1})
	after := vecmath.Cosine(p2.LongTerm, []float64{0, 1})
	if after >= before {
		t.Errorf("dislike 后相似度 %v 应低于 %v", after, before)
	}
	if !vecmath.IsUnit(p2.LongTerm, 1e-9) {
		t.Errorf("dislike 后范数 = %v", vecmath.Norm(p2.LongTerm))
	}
}

func TestApply_DislikeWithoutLongTermIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 长期向量尚不存在时无从排斥：向量不被扰动，但交互照常计数
	res, err := s.Apply(ctx, "u1", []float64{0, 1}, core.InteractionDislike)
	if err != nil {
		t.Fatalf("Apply error = %v", err)
	}
	if res.VectorsUpdated {
		t.Error("无长期向量的 dislike 不应标记向量更新")
	}

	p, _, _ := s.Get(ctx, "u1")
	if len(p.LongTerm) != 0 {
		t.Errorf("LongTerm = %v，期望仍为空", p.LongTerm)
	}
	if p.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d，期望 1", p.TotalInteractions)
	}
}

func TestApply_ConcurrentSameUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Apply(ctx, "u1", []float64{1, 0}, core.InteractionView); err != nil {
				t.Errorf("Apply error = %v", err)
			}
		}()
	}
	wg.Wait()

	p, _, _ := s.Get(ctx, "u1")
	if p.TotalInteractions != n {
		t.Errorf("TotalInteractions = %d，期望 %d（无丢失更新）", p.TotalInteractions, n)
	}
	epoch, _ := s.Epoch(ctx, "u1")
	if epoch != n {
		t.Errorf("epoch = %d，期望 %d", epoch, n)
	}
}

func TestGet_UnknownUser(t *testing.T) {
	s, _ := newTestStore(t)
	p, found, err := s.Get(context.Background(), "nobody")
	if err != nil || found || p != nil {
		t.Fatalf("Get = (%v, %v, %v)，期望 (nil, false, nil)", p, found, err)
	}
}

func TestApply_InvalidType(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Apply(context.Background(), "u1", []float64{1}, core.InteractionType("bogus"))
	if !core.IsInvalidInput(err) {
		t.Fatalf("未知交互类型应返回 INVALID_INPUT，实际 %v", err)
	}
}
