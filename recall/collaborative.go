package recall

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/pipeline"
)

// VectorProvider 批量提供同伴兴趣向量（通常是 profile.StableCache）。
// 没有真实兴趣向量（例如只有默认先验）的用户不出现在结果中。
type VectorProvider interface {
	PeerVectors(ctx context.Context, userIDs []string) (map[string]*core.InterestVector, error)
}

// PeerCF 是基于“成熟同伴”的用户协同过滤。
//
// 核心思想："兴趣相似的用户，喜欢相似的内容"
//
// 算法流程：
//  1. 从 PeerStore 取候选同伴，只保留成熟用户（注册 ≥ 30 天且交互 ≥ 50），避免冷启动用户互相污染
//  2. 批量拉取同伴兴趣向量，相似度 = 0.7·cos(学科) + 0.3·cos(年级)
//  3. 保留相似度严格大于 0.15 的同伴，取 Top 50
//  4. 候选内容的协同分 = 有交互同伴的（相似度加权）平均交互权重 / 8；没有交互的同伴不计入
//
// 作为 Pipeline Node 时，把协同分写入每个 Item 的 "collaborative" 信号；
// 同伴数据读取失败时只记录告警，协同分保持为 0。
type PeerCF struct {
	Peers        core.PeerStore
	Vectors      VectorProvider
	Interactions core.InteractionStore

	MinAccountAge       time.Duration
	MinInteractions     int
	MaxPeers            int
	TopKSimilarUsers    int
	SimilarityThreshold float64
	TopicWeight         float64
	GradeWeight         float64

	// Concurrency 并发拉取同伴数据的上限，<= 0 时为 16
	Concurrency int

	Logger *slog.Logger
}

// NewPeerCF 创建使用默认阈值的协同过滤。
func NewPeerCF(peers core.PeerStore, vectors VectorProvider, interactions core.InteractionStore) *PeerCF {
	return &PeerCF{
		Peers:               peers,
		Vectors:             vectors,
		Interactions:        interactions,
		MinAccountAge:       core.DefaultPeerMinAccountAge,
		MinInteractions:     core.DefaultPeerMinInteractions,
		MaxPeers:            core.DefaultMaxPeerPopulation,
		TopKSimilarUsers:    core.DefaultTopKSimilarUsers,
		SimilarityThreshold: core.DefaultSimilarityThreshold,
		TopicWeight:         core.DefaultTopicSimilarity,
		GradeWeight:         core.DefaultGradeSimilarity,
		Concurrency:         16,
	}
}

func (n *PeerCF) Name() string        { return "recall.peer_cf" }
func (n *PeerCF) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *PeerCF) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n *PeerCF) limit() int {
	if n.Concurrency <= 0 {
		return 16
	}
	return n.Concurrency
}

// Similarity 计算两个兴趣向量的加权相似度。
func (n *PeerCF) Similarity(a, b *core.InterestVector) float64 {
	if a == nil || b == nil {
		return 0
	}
	return n.TopicWeight*a.Subjects.Cosine(b.Subjects) + n.GradeWeight*a.Grades.Cosine(b.Grades)
}

// SimilarPeers 返回与 rctx 用户最相似的成熟同伴（相似度降序，相同按同伴 ID）。
func (n *PeerCF) SimilarPeers(ctx context.Context, rctx *core.RecommendContext) ([]core.SimilarityEdge, error) {
	if rctx.Vector == nil || len(rctx.Vector.Subjects) == 0 {
		return nil, nil
	}
	peers, err := n.Peers.ListPeers(ctx, rctx.UserID, n.MaxPeers)
	if err != nil {
		return nil, err
	}

	mature := make([]string, 0, len(peers))
	for _, p := range peers {
		if p.UserID == rctx.UserID {
			continue
		}
		pp := core.UserProfile{CreatedAt: p.CreatedAt, InteractionCount: p.InteractionCount}
		if pp.IsMature(rctx.Now, n.MinAccountAge, n.MinInteractions) {
			mature = append(mature, p.UserID)
		}
	}
	if len(mature) == 0 {
		return nil, nil
	}

	vecs, err := n.Vectors.PeerVectors(ctx, mature)
	if err != nil {
		return nil, err
	}
	edges := make([]core.SimilarityEdge, 0, len(vecs))
	for _, id := range mature {
		vec, ok := vecs[id]
		if !ok || vec == nil {
			continue
		}
		sim := n.Similarity(rctx.Vector, vec)
		if sim <= n.SimilarityThreshold {
			continue
		}
		edges = append(edges, core.SimilarityEdge{UserID: rctx.UserID, PeerID: id, Similarity: sim})
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Similarity != edges[j].Similarity {
			return edges[i].Similarity > edges[j].Similarity
		}
		return edges[i].PeerID < edges[j].PeerID
	})
	if n.TopKSimilarUsers > 0 && len(edges) > n.TopKSimilarUsers {
		edges = edges[:n.TopKSimilarUsers]
	}
	return edges, nil
}

// Predict 计算每个内容的协同分；没有同伴交互过的内容不出现在结果中。
func (n *PeerCF) Predict(ctx context.Context, edges []core.SimilarityEdge, contentIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(edges) == 0 || len(contentIDs) == 0 {
		return out, nil
	}

	weights := make([]map[string]float64, len(edges))
	var eg errgroup.Group
	eg.SetLimit(n.limit())
	for i, e := range edges {
		eg.Go(func() error {
			w, err := n.Interactions.ContentWeights(ctx, e.PeerID, contentIDs)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger().Debug("peer interactions unavailable", "peer_id", e.PeerID, "error", err)
				return nil
			}
			weights[i] = w
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, id := range contentIDs {
		var num, den float64
		for i, e := range edges {
			w, ok := weights[i][id]
			if !ok || w <= 0 {
				continue
			}
			num += e.Similarity * (w / core.MaxInteractionWeight)
			den += e.Similarity
		}
		if den > 0 {
			out[id] = num / den
		}
	}
	return out, nil
}

func (n *PeerCF) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	for _, it := range items {
		it.SetFeature(feature.SignalCollaborative, 0)
	}
	if len(items) == 0 {
		return items, nil
	}

	edges, err := n.SimilarPeers(ctx, rctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n.logger().Warn("collaborative filter degraded", "user_id", rctx.UserID, "error", err)
		return items, nil
	}
	if len(edges) == 0 {
		return items, nil
	}

	scores, err := n.Predict(ctx, edges, core.ItemIDs(items))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n.logger().Warn("collaborative prediction degraded", "user_id", rctx.UserID, "error", err)
		return items, nil
	}
	for _, it := range items {
		if s, ok := scores[it.ID]; ok {
			it.SetFeature(feature.SignalCollaborative, s)
		}
	}
	return items, nil
}
