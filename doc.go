// Package feedrank 是一个面向学生社区的个性化 Feed 排序引擎。
//
// 设计要点：
// - Pipeline-first: 一次排序由 Node 串联完成（候选池 → 协同过滤 → 质量门 → 打分 → 本地化均衡 → 多样性注入），各页从同一份排序中截取
// - Labels-first: 召回来源、策略、多样性分桶等 labels 全链路透传，便于 explain 与观测
// - 不阻塞读: 兴趣向量两级缓存，过期时先返回旧值再后台刷新；任何失败都退化为时间序 Feed
package feedrank

import (
	"github.com/rushteam/feedrank/feed"
	"github.com/rushteam/feedrank/pipeline"
)

// 轻量 facade：便于直接 import "feedrank" 使用核心抽象。
type (
	Pipeline = pipeline.Pipeline
	Node     = pipeline.Node
	Kind     = pipeline.Kind

	Engine  = feed.Engine
	Request = feed.Request
	Result  = feed.Result
)

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)

// NewEngine 创建 Feed 排序引擎，见 feed.NewEngine。
var NewEngine = feed.NewEngine
