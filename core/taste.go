package core

import "time"

// TasteProfile 是用户口味状态：长期向量 + 会话向量 + 各自的置信权重。
//
// 一句话定义：口味画像 = 个性化检索的"查询信号源 + 在线学习状态"
//
// 设计要点：
//  维度          作用
//  长期向量      跨会话的稳定品味（EWMA 累积）
//  会话向量      当前会话意图（超时即作废）
//  置信权重      控制单次交互的扰动幅度（γ = w/(w+β)）
//  Epoch        每次写入单调递增，嵌入缓存 key 实现结构化失效
//
// 不变量：LongTerm / Session 存在时必须是单位 L2 范数向量。
type TasteProfile struct {
	UserID string `json:"user_id"`

	LongTerm       []float64 `json:"long_term,omitempty"`
	LongTermWeight float64   `json:"long_term_weight"`

	Session          []float64 `json:"session,omitempty"`
	SessionWeight    float64   `json:"session_weight"`
	SessionStartedAt time.Time `json:"session_started_at,omitempty"`
	SessionUpdatedAt time.Time `json:"session_updated_at,omitempty"`

	TotalInteractions int64     `json:"total_interactions"`
	LastActiveAt      time.Time `json:"last_active_at,omitempty"`

	// Epoch 为只读视图字段，由 TasteStore 在读取时填充；
	// 真实计数独立存储，保证"先提交向量、后递增 epoch"的顺序。
	Epoch int64 `json:"-"`
}

// HasLongTerm 是否存在长期画像。
func (p *TasteProfile) HasLongTerm() bool {
	return p != nil && len(p.LongTerm) > 0 && p.LongTermWeight > 0
}

// SessionActive 会话向量在 gap 窗口内是否仍然有效。
func (p *TasteProfile) SessionActive(now time.Time, gap time.Duration) bool {
	if p == nil || len(p.Session) == 0 || p.SessionWeight <= 0 {
		return false
	}
	return now.Sub(p.SessionUpdatedAt) <= gap
}
