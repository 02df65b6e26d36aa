// Package vector 实现向量检索（core.VectorIndex）：
// 不可变快照 + 原子替换，查询路径完全无锁。
package vector

import (
	"fmt"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/vecmath"
)

// Snapshot 是一份只读的商品向量快照。
// 构建完成后不再修改，通过 MemoryIndex.Swap 整体替换；
// 正在执行的查询继续引用旧快照直至返回，不存在半成品索引。
//
// 按类目维护倒排子集，用于 O(1) 估算类目过滤的选择率；
// 价格/库存等其他条件没有廉价估算手段，由检索侧走 post-filter。
type Snapshot struct {
	entries    []*core.ProductEntry
	byID       map[string]*core.ProductEntry
	byCategory map[string][]*core.ProductEntry
	dim        int
}

// BuildSnapshot 从商品列表构建快照。
// 所有 embedding 会被归一化为单位向量，维度必须一致；
// 缺失 embedding 的商品不参与检索但保留在目录中（可按 ID 查询）。
func BuildSnapshot(products []core.ProductEntry) (*Snapshot, error) {
	snap := &Snapshot{
		entries:    make([]*core.ProductEntry, 0, len(products)),
		byID:       make(map[string]*core.ProductEntry, len(products)),
		byCategory: make(map[string][]*core.ProductEntry),
	}

	for i := range products {
		p := products[i] // 拷贝，快照不与调用方共享可变状态
		if p.ID == "" {
			return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector: product with empty id")
		}
		if _, exists := snap.byID[p.ID]; exists {
			return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
				fmt.Sprintf("vector: duplicate product id %q", p.ID))
		}

		if len(p.Embedding) > 0 {
			if snap.dim == 0 {
				snap.dim = len(p.Embedding)
			} else if len(p.Embedding) != snap.dim {
				return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
					fmt.Sprintf("vector: product %q embedding dim %d, want %d", p.ID, len(p.Embedding), snap.dim))
			}
			if v := vecmath.Normalize(p.Embedding); v != nil {
				p.Embedding = v
			} else {
				p.Embedding = nil // 零向量等同缺失
			}
		}

		snap.byID[p.ID] = &p
		if len(p.Embedding) > 0 {
			snap.entries = append(snap.entries, &p)
			if p.Category != "" {
				snap.byCategory[p.Category] = append(snap.byCategory[p.Category], &p)
			}
		}
	}
	return snap, nil
}

// Size 返回可检索的商品数。
func (s *Snapshot) Size() int { return len(s.entries) }

// Dim 返回向量维度（空快照为 0）。
func (s *Snapshot) Dim() int { return s.dim }

// Get 按 ID 返回商品。
func (s *Snapshot) Get(id string) (*core.ProductEntry, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// categorySubset 返回给定类目集合的可检索商品并集。
// 每个商品只属于一个类目，无需去重。
func (s *Snapshot) categorySubset(categories []string) []*core.ProductEntry {
	total := 0
	for _, c := range categories {
		total += len(s.byCategory[c])
	}
	subset := make([]*core.ProductEntry, 0, total)
	for _, c := range categories {
		subset = append(subset, s.byCategory[c]...)
	}
	return subset
}
