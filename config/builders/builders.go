// Package builders 在 init 中注册内置 Node 的配置构建器。
// 需要运行期依赖（向量索引、KV 存储、统计源）的 Node 不在此注册，
// 由引擎装配时直接注入。
package builders

import (
	"fmt"
	"time"

	"github.com/maxwelljhuang/knytt/config"
	"github.com/maxwelljhuang/knytt/filter"
	"github.com/maxwelljhuang/knytt/pipeline"
	"github.com/maxwelljhuang/knytt/pkg/conv"
	"github.com/maxwelljhuang/knytt/rank"
	"github.com/maxwelljhuang/knytt/rerank"
)

func init() {
	config.Register("rerank.mmr", BuildMMRNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rank.popularity", BuildPopularityNode)
	config.Register("filter", BuildFilterNode)
}

func BuildMMRNode(cfg map[string]interface{}) (pipeline.Node, error) {
	lambda := conv.ConfigGetFloat(cfg, "lambda", 0.3)
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("lambda %v out of [0,1]", lambda)
	}
	return &rerank.MMRNode{
		Lambda:   lambda,
		PoolSize: int(conv.ConfigGetInt64(cfg, "pool_size", 0)),
	}, nil
}

func BuildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.TopNNode{
		DefaultLimit: int(conv.ConfigGetInt64(cfg, "default_limit", 20)),
	}, nil
}

// BuildPopularityNode 统计源需运行期注入；配置驱动构建的实例
// 退化为质量分排序，适合纯离线回放。
func BuildPopularityNode(cfg map[string]interface{}) (pipeline.Node, error) {
	node := &rank.PopularityNode{
		PopWeight:     conv.ConfigGetFloat(cfg, "pop_weight", 0),
		QualityWeight: conv.ConfigGetFloat(cfg, "quality_weight", 0),
	}
	if days := conv.ConfigGetInt64(cfg, "half_life_days", 0); days > 0 {
		node.HalfLife = time.Duration(days) * 24 * time.Hour
	}
	return node, nil
}

func BuildFilterNode(cfg map[string]interface{}) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}

	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]interface{})
		if !ok {
			continue
		}
		filterType := conv.ConfigGet(filterMap, "type", "")
		switch filterType {
		case "attrs":
			filters = append(filters, &filter.AttrsFilter{})
		case "expr":
			filters = append(filters, filter.NewExprFilter())
		case "disliked":
			// 需 KV 存储，由引擎装配注入
			return nil, fmt.Errorf("disliked filter requires a store, inject it at assembly time")
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}

	return &filter.FilterNode{Filters: filters}, nil
}
