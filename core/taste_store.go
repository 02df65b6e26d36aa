package core

import "context"

// TasteStore 是口味状态存储的领域接口，唯一的口味写入方。
//
// 并发约束：
//   - Apply 对同一 userID 必须串行（single-writer-per-key），
//     避免两次并发反馈各自读到更新前的向量后互相覆盖
//   - 跨用户写入完全并行；读路径（Get/Epoch）不加全局锁
//
// 顺序约束：
//   - Apply 内部先提交向量，最后递增 epoch；
//     否则并发读可能拿到新 epoch（缓存 miss 重算）却读到旧向量
type TasteStore interface {
	// Get 读取用户口味画像；从未交互过的用户返回 (nil, false, nil)。
	// 返回的画像已填充 Epoch 视图字段。
	Get(ctx context.Context, userID string) (*TasteProfile, bool, error)

	// Apply 按交互类型把商品 embedding 融入用户口味向量。
	// productEmbedding 为 nil 时不扰动向量，只累计 total_interactions
	//（商品尚未完成 embedding 属于可观测的降级，不是错误）。
	Apply(ctx context.Context, userID string, productEmbedding []float64, t InteractionType) (*ApplyResult, error)

	// Touch 只累计 total_interactions，向量与 epoch 均不变
	//（update_taste=false 的交互路径）。画像不存在时创建空画像。
	// 与 Apply 同样满足 single-writer-per-key 约束；返回当前 epoch。
	Touch(ctx context.Context, userID string) (int64, error)

	// Epoch 读取用户当前 blend epoch；从未写入过的用户返回 0。
	Epoch(ctx context.Context, userID string) (int64, error)

	// Close 释放资源
	Close() error
}

// ApplyResult 是一次口味写入的结果。
type ApplyResult struct {
	// Epoch 写入后的 blend epoch（每次 Apply 单调递增）
	Epoch int64

	// VectorsUpdated 向量是否被实际扰动（embedding 缺失时为 false）
	VectorsUpdated bool

	// SessionReset 本次写入前会话是否因超过 gap 阈值被重置
	SessionReset bool
}
