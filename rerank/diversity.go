package rerank

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
)

// 分桶名（bucket label 的取值）。
const (
	BucketExploit     = "exploit"
	BucketExplore     = "explore"
	BucketSerendipity = "serendipity"
	BucketTail        = "tail"
)

// 多样性注入的默认阈值。
const (
	// ExploreMaxWeight 用户兴趣向量中权重低于该值的学科视为“未探索”
	ExploreMaxWeight = 0.1

	// SerendipityMinQuality 惊喜内容的最低质量分（时间感知 Wilson）
	SerendipityMinQuality = 0.6

	// SerendipityMaxAge 惊喜内容的最大存活时长
	SerendipityMaxAge = 7 * 24 * time.Hour
)

// Ratios 是多样性分桶配置。
type Ratios struct {
	Exploit     float64
	Explore     float64
	Serendipity int
}

// AdaptiveRatios 按账号年龄与兴趣多样性选择分桶比例：
//
//	注册 > 1 年且多样性 < 0.3（兴趣固化的老用户） -> {0.5, 0.35, 3}
//	注册 < 30 天（新用户）                          -> {0.6, 0.3, 3}
//	其余                                            -> {0.7, 0.2, 2}
func AdaptiveRatios(accountAge time.Duration, diversity float64) Ratios {
	switch {
	case accountAge > 365*24*time.Hour && diversity < 0.3:
		return Ratios{Exploit: 0.5, Explore: 0.35, Serendipity: 3}
	case accountAge < 30*24*time.Hour:
		return Ratios{Exploit: 0.6, Explore: 0.3, Serendipity: 3}
	default:
		return Ratios{Exploit: 0.7, Explore: 0.2, Serendipity: 2}
	}
}

// DiversityInjector 把排序结果拆成 exploit / explore / serendipity 三个桶并重新编排，
// 避免推荐结果陷入“信息茧房”。
//
// 流程：
//  1. exploit：前 Exploit·n 个候选保持原序
//  2. explore：剩余候选中学科权重 < 0.1 的内容，最多 Explore·n 个
//  3. serendipity：剩余候选中质量 ≥ 0.6 且 7 天内的内容，按（用户, 过滤条件, 日期）种子洗牌后取 Serendipity 个
//  4. explore + serendipity 均匀插入 exploit，再做一次学科打散，避免相邻同学科
//  5. 未入选的候选按原序作为 tail 跟在最后
//
// Ratios 为 nil 时按 AdaptiveRatios 自适应选择。
// 写入 labels：bucket。
type DiversityInjector struct {
	Ratios *Ratios
}

func (n *DiversityInjector) Name() string        { return "rerank.diversity" }
func (n *DiversityInjector) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *DiversityInjector) ratios(rctx *core.RecommendContext) Ratios {
	if n.Ratios != nil {
		return *n.Ratios
	}
	var diversity float64
	if rctx.Vector != nil {
		diversity = rctx.Vector.Metadata.DiversityScore
	}
	return AdaptiveRatios(rctx.GetUserProfile().AccountAge(rctx.Now), diversity)
}

func (n *DiversityInjector) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	r := n.ratios(rctx)
	total := len(items)

	exploitN := int(math.Round(r.Exploit * float64(total)))
	exploitN = max(1, min(exploitN, total))
	exploit := items[:exploitN]
	remainder := items[exploitN:]

	used := make(map[*core.Item]struct{}, total)

	exploreMax := int(math.Round(r.Explore * float64(total)))
	var explore []*core.Item
	for _, it := range remainder {
		if len(explore) >= exploreMax {
			break
		}
		if isUnexplored(rctx.Vector, it) {
			explore = append(explore, it)
			used[it] = struct{}{}
		}
	}

	var pool []*core.Item
	for _, it := range remainder {
		if _, ok := used[it]; ok {
			continue
		}
		if isSerendipitous(it, rctx.Now) {
			pool = append(pool, it)
		}
	}
	rng := rand.New(rand.NewPCG(SerendipitySeed(rctx.UserID, filterScope(rctx.Filters), rctx.Now), 0))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	serendipity := pool[:min(r.Serendipity, len(pool))]
	for _, it := range serendipity {
		used[it] = struct{}{}
	}

	for _, it := range exploit {
		it.SetLabel(utils.LabelBucket, utils.Label{Value: BucketExploit, Source: "rerank"})
	}
	for _, it := range explore {
		it.SetLabel(utils.LabelBucket, utils.Label{Value: BucketExplore, Source: "rerank"})
	}
	for _, it := range serendipity {
		it.SetLabel(utils.LabelBucket, utils.Label{Value: BucketSerendipity, Source: "rerank"})
	}

	injected := make([]*core.Item, 0, len(explore)+len(serendipity))
	injected = append(injected, explore...)
	injected = append(injected, serendipity...)

	out := spreadSubjects(interleave(exploit, injected))
	for _, it := range remainder {
		if _, ok := used[it]; ok {
			continue
		}
		it.SetLabel(utils.LabelBucket, utils.Label{Value: BucketTail, Source: "rerank"})
		out = append(out, it)
	}
	return out, nil
}

// SerendipitySeed 返回（用户, 过滤条件, 日期）确定的随机种子：
// 同一天内同一组过滤条件下的整份排序稳定，各页互不重叠。
func SerendipitySeed(userID, scope string, now time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(now.UTC().Format(time.DateOnly)))
	return h.Sum64()
}

func filterScope(f core.Filters) string {
	return f.Grade + "|" + f.Subject
}

func isUnexplored(vec *core.InterestVector, it *core.Item) bool {
	if it.Candidate == nil || it.Candidate.Subject == "" {
		return false
	}
	return vec.SubjectWeight(it.Candidate.Subject) < ExploreMaxWeight
}

func isSerendipitous(it *core.Item, now time.Time) bool {
	if it.Candidate == nil {
		return false
	}
	return it.Feature(feature.SignalQuality) >= SerendipityMinQuality && it.Candidate.Age(now) <= SerendipityMaxAge
}

// interleave 把 injected 均匀插入 base：每隔 step-1 个 base 放一个 injected。
func interleave(base, injected []*core.Item) []*core.Item {
	if len(injected) == 0 {
		return append([]*core.Item(nil), base...)
	}
	total := len(base) + len(injected)
	step := max(2, total/len(injected))

	out := make([]*core.Item, 0, total)
	bi, ji := 0, 0
	for pos := 0; pos < total; pos++ {
		takeInjected := (pos+1)%step == 0 && ji < len(injected)
		if bi >= len(base) {
			takeInjected = true
		}
		if takeInjected {
			out = append(out, injected[ji])
			ji++
		} else {
			out = append(out, base[bi])
			bi++
		}
	}
	return out
}

// spreadSubjects 贪心打散：当某位置与前一项学科相同时，把后面最近的不同学科项提前。
// 首项保持不动；找不到可交换项时保持原序。
func spreadSubjects(items []*core.Item) []*core.Item {
	for i := 1; i < len(items); i++ {
		prev := subjectOf(items[i-1])
		if prev == "" || subjectOf(items[i]) != prev {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if subjectOf(items[j]) != prev {
				moved := items[j]
				copy(items[i+1:j+1], items[i:j])
				items[i] = moved
				break
			}
		}
	}
	return items
}

func subjectOf(it *core.Item) string {
	if it == nil || it.Candidate == nil {
		return ""
	}
	return it.Candidate.Subject
}
