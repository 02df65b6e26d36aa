// Package config 提供配置驱动的装配：Node 注册表 + 引擎整体配置。
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/maxwelljhuang/knytt/blend"
	"github.com/maxwelljhuang/knytt/cache"
	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/engine"
	"github.com/maxwelljhuang/knytt/feature"
	"github.com/maxwelljhuang/knytt/feedback"
	"github.com/maxwelljhuang/knytt/store"
	"github.com/maxwelljhuang/knytt/taste"
	"github.com/maxwelljhuang/knytt/vector"
)

// EngineConfig 是引擎的整体配置（YAML）。零值字段使用内置默认。
type EngineConfig struct {
	Engine struct {
		DefaultLimit        int     `yaml:"default_limit"`         // 默认页大小
		DefaultLambda       float64 `yaml:"default_lambda"`        // 默认多样性强度
		PoolSize            int     `yaml:"pool_size"`             // 召回/MMR 候选池
		IndexTimeoutMs      int     `yaml:"index_timeout_ms"`      // 向量检索预算
		CacheTTLSeconds     int     `yaml:"cache_ttl_seconds"`     // 结果缓存 TTL
		HalfLifeDays        int     `yaml:"half_life_days"`        // 热度衰减半衰期
		FeedbackConcurrency int     `yaml:"feedback_concurrency"`  // 反馈摄取并发预算
		SessionGapMinutes   int     `yaml:"session_gap_minutes"`   // 会话超时
	} `yaml:"engine"`

	Redis struct {
		Addr string `yaml:"addr"` // 空表示使用进程内存储（开发/测试）
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Feast struct {
		Host    string `yaml:"host"` // 空表示统计直接读 KV 存储
		Port    int    `yaml:"port"`
		Project string `yaml:"project"`
	} `yaml:"feast"`
}

// LoadEngineConfig 从 YAML 文件加载引擎配置。
func LoadEngineConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// BuildEngine 按配置装配完整引擎。index 由调用方提供（快照的构建与
// 热替换属于摄取侧职责，不在配置范围内）。
func (c *EngineConfig) BuildEngine(index *vector.MemoryIndex) (*engine.Engine, error) {
	var kv core.KeyValueStore
	if c.Redis.Addr != "" {
		rs, err := store.NewRedisStore(c.Redis.Addr, c.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		kv = rs
	} else {
		kv = store.NewMemoryStore()
	}

	var tasteOpts []taste.Option
	var blendOpts []blend.Option
	if m := c.Engine.SessionGapMinutes; m > 0 {
		gap := time.Duration(m) * time.Minute
		tasteOpts = append(tasteOpts, taste.WithSessionGap(gap))
		blendOpts = append(blendOpts, blend.WithSessionGap(gap))
	}
	tastes := taste.NewStore(kv, tasteOpts...)

	var stats feature.Provider = feature.NewStoreProvider(kv)
	if c.Feast.Host != "" {
		fp, err := feature.NewFeastProvider(c.Feast.Host, c.Feast.Port, c.Feast.Project)
		if err != nil {
			return nil, fmt.Errorf("connect feast: %w", err)
		}
		stats = feature.NewFallbackProvider(fp, stats, zerolog.Nop())
	}

	var ingestOpts []feedback.Option
	if n := c.Engine.FeedbackConcurrency; n > 0 {
		ingestOpts = append(ingestOpts, feedback.WithConcurrency(n))
	}

	opts := []engine.Option{
		engine.WithStore(kv),
		engine.WithStats(stats),
	}
	if c.Engine.DefaultLimit > 0 {
		opts = append(opts, engine.WithDefaultLimit(c.Engine.DefaultLimit))
	}
	if c.Engine.DefaultLambda > 0 {
		opts = append(opts, engine.WithDefaultLambda(c.Engine.DefaultLambda))
	}
	if c.Engine.PoolSize > 0 {
		opts = append(opts, engine.WithPoolSize(c.Engine.PoolSize))
	}
	if ms := c.Engine.IndexTimeoutMs; ms > 0 {
		opts = append(opts, engine.WithIndexTimeout(time.Duration(ms)*time.Millisecond))
	}
	if d := c.Engine.HalfLifeDays; d > 0 {
		opts = append(opts, engine.WithHalfLife(time.Duration(d)*24*time.Hour))
	}

	return engine.New(
		tastes,
		index,
		index,
		blend.NewBlender(blendOpts...),
		cache.NewResultCache(kv, c.Engine.CacheTTLSeconds),
		feedback.NewIngestor(kv, tastes, index, ingestOpts...),
		opts...,
	), nil
}
