// Package blend 实现查询向量合成：按场景策略表把长期口味、会话意图、
// 锚点商品与搜索文本混合为单一查询向量，并输出可解释的实际权重。
package blend

import (
	"fmt"
	"time"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

// 权重表中的信号名（blend_weights 字段对外可见，命名保持稳定）
const (
	SignalLongTerm = "long_term"
	SignalSession  = "session"
	SignalAnchor   = "anchor_product"
	SignalText     = "text"
	SignalPrior    = "prior"
)

// Blend 是一次合成的产物。
type Blend struct {
	// Query 查询向量（单位范数）；nil 表示没有任何个性化信号，
	// 调用方应走热度排序（personalized=false）
	Query []float64

	// Weights 实际生效的权重（缺失信号按比例重分配后），总和为 1
	Weights map[string]float64

	// PriorWeight 热度先验的权重：feed 场景固定保留一份非个性化质量分，
	// 由调用方混入相关性；信号全缺时为 1
	PriorWeight float64

	HasLongTerm bool
	HasSession  bool
}

// Personalized 是否存在任何个性化信号。
func (b *Blend) Personalized() bool { return b.Query != nil }

// policy 单场景的基础权重；缺失信号的质量按比例重分配给在场信号。
type policy struct {
	longTerm float64
	session  float64
	anchor   float64
	text     float64
	prior    float64 // 固定保留的热度先验（仅 feed 非零）
}

// 策略表按场景穷举；场景集合与 core.ValidScene 一一对应。
var policies = map[core.Scene]policy{
	core.SceneFeed:    {longTerm: 0.5, session: 0.3, prior: 0.2},
	core.SceneSimilar: {anchor: 0.6, longTerm: 0.25, session: 0.15},
	core.SceneSearch:  {text: 0.7, longTerm: 0.2, session: 0.1},
}

// Blender 是无状态的合成器；会话有效性判定依赖时钟与超时阈值。
type Blender struct {
	sessionGap time.Duration
	now        func() time.Time
}

// Option 配置 Blender。
type Option func(*Blender)

// WithSessionGap 设置会话超时阈值（须与口味存储一致）。
func WithSessionGap(gap time.Duration) Option {
	return func(b *Blender) { b.sessionGap = gap }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(b *Blender) { b.now = now }
}

// NewBlender 创建合成器。
func NewBlender(opts ...Option) *Blender {
	b := &Blender{
		sessionGap: 30 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Compose 按场景策略合成查询向量。
// profile 可为 nil（匿名/新用户）；anchor 仅 similar 场景必填；
// text 为搜索文本向量，缺失时搜索退化为画像驱动。
func (b *Blender) Compose(scene core.Scene, profile *core.TasteProfile, anchor, text []float64) (*Blend, error) {
	pol, ok := policies[scene]
	if !ok {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			fmt.Sprintf("blend: unknown scene %q", scene))
	}
	if scene == core.SceneSimilar && len(anchor) == 0 {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput,
			"blend: similar scene requires anchor product embedding")
	}

	type signal struct {
		name string
		vec  []float64
		base float64
	}

	out := &Blend{Weights: make(map[string]float64)}

	var present []signal
	if profile != nil && profile.HasLongTerm() {
		out.HasLongTerm = true
		present = append(present, signal{SignalLongTerm, profile.LongTerm, pol.longTerm})
	}
	if profile != nil && profile.SessionActive(b.now(), b.sessionGap) {
		out.HasSession = true
		present = append(present, signal{SignalSession, profile.Session, pol.session})
	}
	if len(anchor) > 0 && pol.anchor > 0 {
		present = append(present, signal{SignalAnchor, anchor, pol.anchor})
	}
	if len(text) > 0 && pol.text > 0 {
		present = append(present, signal{SignalText, text, pol.text})
	}

	if len(present) == 0 {
		// 无任何信号：全部质量落在热度先验上
		out.PriorWeight = 1
		out.Weights[SignalPrior] = 1
		return out, nil
	}

	// 在场信号按基础权重比例瓜分 (1 - prior) 的质量
	var sum float64
	for _, s := range present {
		sum += s.base
	}
	mass := 1 - pol.prior
	acc := make([]float64, len(present[0].vec))
	for _, s := range present {
		w := s.base / sum * mass
		out.Weights[s.name] = w
		for i, v := range s.vec {
			acc[i] += w * v
		}
	}
	if pol.prior > 0 {
		out.PriorWeight = pol.prior
		out.Weights[SignalPrior] = pol.prior
	}

	out.Query = vecmath.Normalize(acc)
	if out.Query == nil {
		// 信号恰好相互抵消：视为无信号，降级为热度排序
		out.Weights = map[string]float64{SignalPrior: 1}
		out.PriorWeight = 1
		return out, nil
	}
	return out, nil
}
