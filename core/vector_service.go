package core

import "context"

// VectorIndex 是向量检索的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（vector）实现
//   - 可插拔：重排与混合逻辑不依赖具体 ANN 算法/库
//   - 底层数据结构在服务期内只读；结构化重建由离线批处理完成后
//     整体原子替换快照，查询永远不会看到半成品索引
//
// 过滤策略（由实现负责）：
//   - 过滤子集占比小：先过滤再扫描（pre-filter）
//   - 过滤子集占比大：超采 k' = overfetch·k 后过滤截断（post-filter），
//     存活不足 k 时有限次翻倍重试，重试耗尽则接受不足 k 的结果
type VectorIndex interface {
	// Search 近似余弦相似度 TopK 检索
	Search(ctx context.Context, req *VectorSearchRequest) (*VectorSearchResult, error)

	// Size 当前快照中的商品数（用于选择过滤策略与观测）
	Size() int

	// Close 关闭连接/释放资源
	Close() error
}

// VectorSearchRequest 向量搜索请求
type VectorSearchRequest struct {
	// Vector 查询向量（单位范数）
	Vector []float64

	// TopK 返回 TopK 个最相似的结果
	TopK int

	// Filters 结构化过滤条件（可选）
	Filters *ProductFilters
}

// VectorSearchItem 单个向量搜索结果项
type VectorSearchItem struct {
	ID    string
	Score float64 // 余弦相似度

	// Entry 命中的商品快照（重排/响应组装直接复用，避免二次查目录）
	Entry *ProductEntry
}

// VectorSearchResult 向量搜索结果
type VectorSearchResult struct {
	// Items 搜索结果项列表（按相似度降序）
	Items []VectorSearchItem

	// Strategy 实际采用的过滤策略：prefilter / postfilter / none
	Strategy string

	// Retries post-filter 超采翻倍重试次数
	Retries int
}

// ErrIndexUnavailable 表示检索后端不可用；调用方应降级为热度排序。
var ErrIndexUnavailable = NewDomainError(ModuleVector, ErrorCodeUnavailable, "vector: index unavailable")
