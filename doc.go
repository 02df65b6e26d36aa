// Package knytt 是一个个性化排序引擎（Personalization & Ranking Engine）。
//
// 设计要点：
// - Taste-first: 用户口味以长期/会话双向量表达，交互事件在线 EWMA 学习
// - Pipeline-first: 读链路通过 Node 串联（Recall → Filter → ReRank → PostProcess）
// - 降级优先于报错: 信号缺失、索引不可用都吸收为热度兜底与结果元数据
package knytt

import "github.com/maxwelljhuang/knytt/pipeline"

// 轻量 facade：便于用户直接 import "knytt" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
