package core

import (
	"math"
	"sort"
	"time"
)

// SparseVector 是稀疏权重表（topic/grade -> weight）。
// 所有方法都不修改接收者以外的数据；Prune / Normalize 返回新的向量。
type SparseVector map[string]float64

// Sum 返回所有权重之和。
func (v SparseVector) Sum() float64 {
	var s float64
	for _, w := range v {
		s += w
	}
	return s
}

// Max 返回最大权重，空向量返回 0。
func (v SparseVector) Max() float64 {
	var m float64
	for _, w := range v {
		if w > m {
			m = w
		}
	}
	return m
}

// Clone 深拷贝。
func (v SparseVector) Clone() SparseVector {
	out := make(SparseVector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// Normalize 返回权重和为 1 的新向量；和为 0 时返回空向量。
func (v SparseVector) Normalize() SparseVector {
	total := v.Sum()
	out := make(SparseVector, len(v))
	if total <= 0 {
		return out
	}
	for k, w := range v {
		out[k] = w / total
	}
	return out
}

// Prune 保留权重最高的 k 个条目（权重相同时按 key 字典序），k <= 0 时不裁剪。
func (v SparseVector) Prune(k int) SparseVector {
	if k <= 0 || len(v) <= k {
		return v.Clone()
	}
	keys := v.Keys()
	out := make(SparseVector, k)
	for _, key := range keys[:k] {
		out[key] = v[key]
	}
	return out
}

// Keys 按权重降序返回 key（权重相同按字典序）。
func (v SparseVector) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if v[keys[i]] != v[keys[j]] {
			return v[keys[i]] > v[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Cosine 计算两个稀疏向量的余弦相似度。
// 对称；任一侧为全零向量时返回 0。按排序后的 key 累加，保证结果与调用顺序无关。
func (v SparseVector) Cosine(o SparseVector) float64 {
	var dot, normA, normB float64
	for _, k := range v.sortedKeys() {
		a := v[k]
		normA += a * a
		if b, ok := o[k]; ok {
			dot += a * b
		}
	}
	for _, k := range o.sortedKeys() {
		b := o[k]
		normB += b * b
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / math.Sqrt(normA*normB)
	// 浮点误差可能略超出 [-1,1]
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

func (v SparseVector) sortedKeys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entropy 返回归一化香农熵：0 表示单一主题，1 表示完全均匀分布。
// 计算前按权重和归一，因此对未归一的向量同样成立。
func (v SparseVector) Entropy() float64 {
	n := 0
	for _, w := range v {
		if w > 0 {
			n++
		}
	}
	if n <= 1 {
		return 0
	}
	total := v.Sum()
	var h float64
	for _, w := range v {
		if w <= 0 {
			continue
		}
		p := w / total
		h -= p * math.Log(p)
	}
	return h / math.Log(float64(n))
}

// VectorMetadata 是兴趣向量的元信息。
type VectorMetadata struct {
	LastUpdated      time.Time `json:"last_updated"`
	DriftScore       float64   `json:"drift_score"`
	DiversityScore   float64   `json:"diversity_score"`
	InteractionCount int       `json:"interaction_count"`

	// Default 为 true 表示该向量来自年级默认先验，而非用户真实交互
	Default bool `json:"default,omitempty"`
}

// InterestVector 是用户的主题/年级兴趣向量，只整体替换、不原地修改。
type InterestVector struct {
	OwnerID  string         `json:"owner_id"`
	Subjects SparseVector   `json:"subjects"`
	Grades   SparseVector   `json:"grades"`
	Metadata VectorMetadata `json:"metadata"`
}

// IsFresh 判断向量在 now 时刻是否仍处于新鲜度窗口内。
func (v *InterestVector) IsFresh(now time.Time, window time.Duration) bool {
	if v == nil || v.Metadata.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(v.Metadata.LastUpdated) < window
}

// SubjectWeight 返回主题权重，缺失为 0。
func (v *InterestVector) SubjectWeight(subject string) float64 {
	if v == nil || v.Subjects == nil {
		return 0
	}
	return v.Subjects[subject]
}

// GradeWeight 返回年级权重，缺失为 0。
func (v *InterestVector) GradeWeight(grade string) float64 {
	if v == nil || v.Grades == nil {
		return 0
	}
	return v.Grades[grade]
}

// Clone 深拷贝。
func (v *InterestVector) Clone() *InterestVector {
	if v == nil {
		return nil
	}
	return &InterestVector{
		OwnerID:  v.OwnerID,
		Subjects: v.Subjects.Clone(),
		Grades:   v.Grades.Clone(),
		Metadata: v.Metadata,
	}
}

// SimilarityEdge 是一次请求内计算出的用户相似度边，不持久化。
type SimilarityEdge struct {
	UserID     string
	PeerID     string
	Similarity float64
}
