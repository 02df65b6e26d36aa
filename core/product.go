package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProductEntry 是商品快照：embedding + 可过滤属性 + 质量分。
// 由目录/摄取协作者离线产出，对本引擎只读；结构化重建通过整体替换
// 索引快照完成，单条记录在服务期内不可变。
type ProductEntry struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
	Quality   float64   `json:"quality"` // [0,1]，摄取侧的质量评分
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Brand     string    `json:"brand,omitempty"`
	InStock   bool      `json:"in_stock"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductFilters 是结构化过滤条件。指针字段为 nil 表示该维度不限制。
// Expr 为可选的 CEL 表达式（运营侧规则），由 filter 包解释执行。
type ProductFilters struct {
	MinPrice   *float64 `json:"min_price,omitempty"`
	MaxPrice   *float64 `json:"max_price,omitempty"`
	Categories []string `json:"categories,omitempty"`
	InStock    *bool    `json:"in_stock,omitempty"`
	Expr       string   `json:"expr,omitempty"`
}

// Empty 是否无任何过滤条件。
func (f *ProductFilters) Empty() bool {
	if f == nil {
		return true
	}
	return f.MinPrice == nil && f.MaxPrice == nil &&
		len(f.Categories) == 0 && f.InStock == nil && f.Expr == ""
}

// Match 判断商品是否通过结构化条件（不含 Expr，表达式由 filter 包评估）。
func (f *ProductFilters) Match(p *ProductEntry) bool {
	if f == nil || p == nil {
		return p != nil
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.InStock != nil && p.InStock != *f.InStock {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if c == p.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Canonical 输出确定性的字符串表示，用于缓存 key。
// 字段按固定顺序拼接，类目先排序，保证同义过滤条件命中同一缓存项。
func (f *ProductFilters) Canonical() string {
	if f.Empty() {
		return ""
	}
	var b strings.Builder
	if f.MinPrice != nil {
		fmt.Fprintf(&b, "min=%.2f;", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		fmt.Fprintf(&b, "max=%.2f;", *f.MaxPrice)
	}
	if f.InStock != nil {
		fmt.Fprintf(&b, "stock=%t;", *f.InStock)
	}
	if len(f.Categories) > 0 {
		cats := make([]string, len(f.Categories))
		copy(cats, f.Categories)
		sort.Strings(cats)
		fmt.Fprintf(&b, "cat=%s;", strings.Join(cats, ","))
	}
	if f.Expr != "" {
		fmt.Fprintf(&b, "expr=%s;", f.Expr)
	}
	return b.String()
}

// Catalog 是商品快照的领域接口，由目录协作者实现。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层实现
//   - 只读：本引擎绝不修改商品数据
//
// 使用场景：
//   - 反馈链路按 product_id 取 embedding 更新口味向量
//   - similar 场景按锚点商品取 embedding
type Catalog interface {
	// GetProduct 获取单个商品快照；不存在时返回 (nil, false, nil)
	GetProduct(ctx context.Context, productID string) (*ProductEntry, bool, error)
}

// CatalogBrowser 在 Catalog 之上增加遍历能力，
// 供热度兜底路径在没有查询向量时枚举候选。
type CatalogBrowser interface {
	Catalog

	// ListProducts 返回当前快照的全部商品（顺序不保证）
	ListProducts(ctx context.Context) ([]*ProductEntry, error)
}
