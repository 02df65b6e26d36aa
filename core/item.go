package core

import "github.com/maxwelljhuang/knytt/pkg/utils"

// Item 是推荐链路中的统一承载结构：候选商品 + 分数 + 元信息 + 标签。
// Score 用于排序决策；Embedding 供多样性重排计算相似度；Labels 用于解释与观测。
type Item struct {
	ID        string
	Score     float64
	Embedding []float64
	Meta      map[string]any
	Labels    map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Score:  0,
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// MetaProduct 是 Meta 中商品快照的约定 key，由召回节点写入，
// 过滤/排序节点读取，避免下游二次查目录。
const MetaProduct = "product"

// SetProduct 挂载商品快照并同步 embedding。
func (it *Item) SetProduct(p *ProductEntry) {
	if it.Meta == nil {
		it.Meta = make(map[string]any)
	}
	it.Meta[MetaProduct] = p
	if p != nil {
		it.Embedding = p.Embedding
	}
}

// Product 返回挂载的商品快照，未挂载时为 nil。
func (it *Item) Product() *ProductEntry {
	if it.Meta == nil {
		return nil
	}
	p, _ := it.Meta[MetaProduct].(*ProductEntry)
	return p
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// GetLabel 获取 Label。
func (it *Item) GetLabel(key string) (utils.Label, bool) {
	if it.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := it.Labels[key]
	return lbl, ok
}
