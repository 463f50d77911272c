// Package profile 构建、缓存并维护用户兴趣向量。
//
// 组成：
//   - Builder：交互事件 -> 兴趣向量（纯函数，无 I/O）
//   - DetectDrift / ApplyGradeTransition：兴趣漂移检测与年级升级处理
//   - DefaultVector：交互不足时的年级课程先验
//   - StableCache：快层 + 持久层两级缓存，过期数据立即返回并后台刷新
package profile

import (
	"time"

	"github.com/rushteam/feedrank/core"
)

// BuilderConfig 是兴趣向量构建参数。
type BuilderConfig struct {
	// TopK 每个维度（学科/年级）保留的最大条目数
	TopK int

	// Renormalize 裁剪后是否重新归一，使权重和保持为 1
	Renormalize bool
}

// DefaultBuilderConfig 返回默认参数：TopK=50，裁剪后重新归一。
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{TopK: core.DefaultVectorTopK, Renormalize: true}
}

// Builder 把一段时间窗口内的交互事件转换为兴趣向量。
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder 创建构建器；TopK <= 0 时使用默认值。
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.TopK <= 0 {
		cfg.TopK = core.DefaultVectorTopK
	}
	return &Builder{cfg: cfg}
}

// Config 返回构建参数。
func (b *Builder) Config() BuilderConfig { return b.cfg }

// Build 按行为权重累加学科/年级，按各自总权重归一后裁剪到 TopK，并计算学科分布熵作为多样性。
// 缺少学科/年级的交互不计入对应维度；未知行为类型的交互被忽略。
func (b *Builder) Build(ownerID string, interactions []*core.Interaction, now time.Time) *core.InterestVector {
	subjects := make(core.SparseVector)
	grades := make(core.SparseVector)
	counted := 0

	for _, it := range interactions {
		if it == nil {
			continue
		}
		w := it.Weight
		if w <= 0 {
			w = core.InteractionWeight(it.Type)
		}
		if w <= 0 {
			continue
		}
		counted++
		if it.Subject != "" {
			subjects[it.Subject] += w
		}
		if it.Grade != "" {
			grades[it.Grade] += w
		}
	}

	vec := &core.InterestVector{
		OwnerID:  ownerID,
		Subjects: b.shape(subjects),
		Grades:   b.shape(grades),
		Metadata: core.VectorMetadata{
			LastUpdated:      now,
			InteractionCount: counted,
		},
	}
	vec.Metadata.DiversityScore = vec.Subjects.Entropy()
	return vec
}

func (b *Builder) shape(v core.SparseVector) core.SparseVector {
	pruned := v.Normalize().Prune(b.cfg.TopK)
	if b.cfg.Renormalize {
		return pruned.Normalize()
	}
	return pruned
}
