package feature

import (
	"context"
	"fmt"
	"strconv"
	"time"

	feastsdk "github.com/feast-dev/feast/sdk/go"
)

// Feast 在线特征库中的特征引用（feature_view:feature 形式）。
var feastFeatures = []string{
	"product_stats:views",
	"product_stats:likes",
	"product_stats:add_to_carts",
	"product_stats:purchases",
	"product_stats:last_interaction_ts",
}

// FeastProvider 从 Feast Feature Server 拉取商品互动统计。
// 离线批处理把全量口径的统计物化到在线存储，这里按 product_id
// 实体批量读取；与 StoreProvider 的在线累积口径互为补充。
type FeastProvider struct {
	client  *feastsdk.GrpcClient
	project string
}

// NewFeastProvider 连接 Feast Feature Server。
func NewFeastProvider(host string, port int, project string) (*FeastProvider, error) {
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("feature: connect feast %s:%d: %w", host, port, err)
	}
	return &FeastProvider{client: client, project: project}, nil
}

// ProductStats 实现 Provider 接口。
func (p *FeastProvider) ProductStats(ctx context.Context, productIDs []string) (map[string]ProductStats, error) {
	if len(productIDs) == 0 {
		return map[string]ProductStats{}, nil
	}

	entities := make([]feastsdk.Row, len(productIDs))
	for i, id := range productIDs {
		entities[i] = feastsdk.Row{"product_id": feastsdk.StrVal(id)}
	}

	resp, err := p.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: feastFeatures,
		Entities: entities,
		Project:  p.project,
	})
	if err != nil {
		return nil, fmt.Errorf("feature: feast get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) != len(productIDs) {
		return nil, fmt.Errorf("feature: feast row count mismatch: want %d, got %d", len(productIDs), len(rows))
	}

	out := make(map[string]ProductStats, len(productIDs))
	for i, id := range productIDs {
		row := rows[i]
		s := ProductStats{
			Views:      asInt64(row["product_stats:views"]),
			Likes:      asInt64(row["product_stats:likes"]),
			AddToCarts: asInt64(row["product_stats:add_to_carts"]),
			Purchases:  asInt64(row["product_stats:purchases"]),
		}
		if ts := asInt64(row["product_stats:last_interaction_ts"]); ts > 0 {
			s.LastInteraction = time.Unix(ts, 0)
		}
		if s != (ProductStats{}) {
			out[id] = s
		}
	}
	return out, nil
}

// Close 断开与 Feature Server 的连接。
func (p *FeastProvider) Close() error {
	return p.client.Close()
}

// asInt64 从 SDK 的 protobuf Value 提取整数。
// SDK 没有导出统一的取值方法，经由字符串表示解析（与数值的 proto
// 文本形式 "int64_val:<n>" 兼容的提取路径是取其 String 再扫描数字）。
func asInt64(val any) int64 {
	if val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		s := fmt.Sprintf("%v", val)
		var n int64
		var seen bool
		for _, r := range s {
			if r >= '0' && r <= '9' {
				n = n*10 + int64(r-'0')
				seen = true
			} else if seen {
				break
			}
		}
		return n
	}
}

var _ Provider = (*FeastProvider)(nil)
