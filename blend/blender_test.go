package blend

import (
	"math"
	"testing"
	"time"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func activeProfile(now time.Time, long, session []float64) *core.TasteProfile {
	p := &core.TasteProfile{UserID: "u1"}
	if long != nil {
		p.LongTerm = long
		p.LongTermWeight = 10
	}
	if session != nil {
		p.Session = session
		p.SessionWeight = 1
		p.SessionUpdatedAt = now
	}
	return p
}

func TestCompose_SimilarRenormalization(t *testing.T) {
	now := time.Now()
	b := NewBlender(WithClock(fixedClock(now)))

	// 长期画像在、会话缺席：anchor/long 按 0.6:0.25 比例瓜分全部质量
	profile := activeProfile(now, []float64{1, 0}, nil)
	out, err := b.Compose(core.SceneSimilar, profile, []float64{0, 1}, nil)
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}

	wantAnchor := 0.6 / 0.85
	wantLong := 0.25 / 0.85
	if math.Abs(out.Weights[SignalAnchor]-wantAnchor) > 1e-3 {
		t.Errorf("anchor 权重 = %v，期望 %.3f", out.Weights[SignalAnchor], wantAnchor)
	}
	if math.Abs(out.Weights[SignalLongTerm]-wantLong) > 1e-3 {
		t.Errorf("long_term 权重 = %v，期望 %.3f", out.Weights[SignalLongTerm], wantLong)
	}
	if _, ok := out.Weights[SignalSession]; ok {
		t.Error("缺席信号不应出现在权重表中")
	}
	if !out.HasLongTerm || out.HasSession {
		t.Errorf("标志 = (%v, %v)，期望 (true, false)", out.HasLongTerm, out.HasSession)
	}
	if !vecmath.IsUnit(out.Query, 1e-9) {
		t.Errorf("查询向量范数 = %v", vecmath.Norm(out.Query))
	}
}

func TestCompose_WeightsSumToOne(t *testing.T) {
	now := time.Now()
	b := NewBlender(WithClock(fixedClock(now)))

	long := []float64{1, 0}
	session := []float64{0, 1}
	anchor := []float64{1, 1}
	text := []float64{-1, 1}

	cases := []struct {
		name    string
		scene   core.Scene
		profile *core.TasteProfile
		anchor  []float64
		text    []float64
	}{
		{"feed 全画像", core.SceneFeed, activeProfile(now, long, session), nil, nil},
		{"feed 仅长期", core.SceneFeed, activeProfile(now, long, nil), nil, nil},
		{"feed 仅会话", core.SceneFeed, activeProfile(now, nil, session), nil, nil},
		{"feed 匿名", core.SceneFeed, nil, nil, nil},
		{"similar 全信号", core.SceneSimilar, activeProfile(now, long, session), anchor, nil},
		{"similar 仅锚点", core.SceneSimilar, nil, anchor, nil},
		{"search 全信号", core.SceneSearch, activeProfile(now, long, session), nil, text},
		{"search 无文本", core.SceneSearch, activeProfile(now, long, session), nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := b.Compose(tc.scene, tc.profile, tc.anchor, tc.text)
			if err != nil {
				t.Fatalf("Compose error = %v", err)
			}
			var sum float64
			for _, w := range out.Weights {
				sum += w
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("权重总和 = %v，期望 1（%v）", sum, out.Weights)
			}
		})
	}
}

func TestCompose_FeedDegradation(t *testing.T) {
	now := time.Now()
	b := NewBlender(WithClock(fixedClock(now)))

	// 无会话：长期信号吸收会话的质量，热度先验保持 0.2
	out, err := b.Compose(core.SceneFeed, activeProfile(now, []float64{1, 0}, nil), nil, nil)
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}
	if math.Abs(out.Weights[SignalLongTerm]-0.8) > 1e-9 {
		t.Errorf("long_term 权重 = %v，期望 0.8", out.Weights[SignalLongTerm])
	}
	if math.Abs(out.PriorWeight-0.2) > 1e-9 {
		t.Errorf("PriorWeight = %v，期望 0.2", out.PriorWeight)
	}
}

func TestCompose_AnonymousFeed(t *testing.T) {
	b := NewBlender()
	out, err := b.Compose(core.SceneFeed, nil, nil, nil)
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}
	if out.Personalized() {
		t.Error("匿名请求不应个性化")
	}
	if out.PriorWeight != 1 || out.Weights[SignalPrior] != 1 {
		t.Errorf("全部质量应落在热度先验上：%v", out.Weights)
	}
}

func TestCompose_ExpiredSessionIgnored(t *testing.T) {
	now := time.Now()
	b := NewBlender(WithClock(fixedClock(now)), WithSessionGap(30*time.Minute))

	p := activeProfile(now, []float64{1, 0}, []float64{0, 1})
	p.SessionUpdatedAt = now.Add(-31 * time.Minute)

	out, err := b.Compose(core.SceneFeed, p, nil, nil)
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}
	if out.HasSession {
		t.Error("过期会话应视为缺席")
	}
	if math.Abs(out.Weights[SignalLongTerm]-0.8) > 1e-9 {
		t.Errorf("long_term 权重 = %v，期望 0.8", out.Weights[SignalLongTerm])
	}
}

func TestCompose_SearchTextDominant(t *testing.T) {
	now := time.Now()
	b := NewBlender(WithClock(fixedClock(now)))

	out, err := b.Compose(core.SceneSearch, activeProfile(now, []float64{1, 0}, []float64{0, 1}),
		nil, []float64{0, -1})
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}
	if math.Abs(out.Weights[SignalText]-0.7) > 1e-9 {
		t.Errorf("text 权重 = %v，期望 0.7", out.Weights[SignalText])
	}
}

func TestCompose_SimilarRequiresAnchor(t *testing.T) {
	b := NewBlender()
	_, err := b.Compose(core.SceneSimilar, nil, nil, nil)
	if !core.IsInvalidInput(err) {
		t.Fatalf("similar 无锚点应返回 INVALID_INPUT，实际 %v", err)
	}
}

func TestCompose_UnknownScene(t *testing.T) {
	b := NewBlender()
	_, err := b.Compose(core.Scene("bogus"), nil, nil, nil)
	if !core.IsInvalidInput(err) {
		t.Fatalf("未知场景应返回 INVALID_INPUT，实际 %v", err)
	}
}

func TestCompose_AnchorOnly(t *testing.T) {
	b := NewBlender()
	out, err := b.Compose(core.SceneSimilar, nil, []float64{0, 2}, nil)
	if err != nil {
		t.Fatalf("Compose error = %v", err)
	}
	if math.Abs(out.Weights[SignalAnchor]-1) > 1e-9 {
		t.Errorf("anchor 权重 = %v，期望 1", out.Weights[SignalAnchor])
	}
	if out.Query[1] < 0.999 {
		t.Errorf("查询向量 = %v，期望沿锚点方向", out.Query)
	}
}
