package feature

import (
	"context"

	"github.com/rs/zerolog"
)

// FallbackProvider 组成降级链：主源失败时退回备源。
// 典型编排是 Feast（全量物化口径）为主、store 累积计数为备，
// Feature Server 故障时热度排序仍有数据可用。
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	log       zerolog.Logger
}

// NewFallbackProvider 创建降级链。
func NewFallbackProvider(primary, secondary Provider, log zerolog.Logger) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary, log: log}
}

// ProductStats 实现 Provider 接口。
func (p *FallbackProvider) ProductStats(ctx context.Context, productIDs []string) (map[string]ProductStats, error) {
	stats, err := p.primary.ProductStats(ctx, productIDs)
	if err == nil {
		return stats, nil
	}
	p.log.Warn().Err(err).Int("products", len(productIDs)).
		Msg("primary stats provider failed, falling back")
	return p.secondary.ProductStats(ctx, productIDs)
}

var _ Provider = (*FallbackProvider)(nil)
