package dsl

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/rushteam/feedrank/core"
)

func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("user", cel.DynType),
	)
}

// Rule 是编译好的候选规则表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次、并发求值，可用于质量门中追加运营规则。
//
// 表达式语法（CEL 标准语法）：
//   - 候选字段：item.report_count > 3 / item.subject == "math"
//   - 时间：item.age_hours < 1.0 && item.like_count > 100
//   - 用户：user.grade == item.grade / user.country != item.country
//   - 标签：label.recall_source == "pool.local"
//   - 存在性：label.recall_source != null
//
// 示例：
//   - `item.report_count >= 2 && !item.author_trusted` → 未认证作者被举报两次
//   - `item.title.contains("giveaway")` → 标题含推广词
type Rule struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；表达式必须返回 bool。
func Compile(expr string) (*Rule, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, errors.Wrap(err, "cel env")
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile %q", expr)
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "program %q", expr)
	}
	return &Rule{expr: expr, prg: prg}, nil
}

// MustCompile 同 Compile，失败时 panic，用于常量规则。
func MustCompile(expr string) *Rule {
	r, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// String 返回原始表达式。
func (r *Rule) String() string { return r.expr }

// Evaluate 对候选求值。
// CEL 访问不存在的 key 会报错，用户应先用 label.key != null 检查存在性。
func (r *Rule) Evaluate(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := r.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, errors.Wrapf(err, "eval %q", r.expr)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("expression %q must return boolean, got %T", r.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(it *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	item := map[string]any{
		"id":       it.ID,
		"score":    it.Score,
		"features": it.Features,
	}
	if c := it.Candidate; c != nil {
		item["author_id"] = c.AuthorID
		item["subject"] = c.Subject
		item["grade"] = c.Grade
		item["country"] = c.Country
		item["language"] = c.Language
		item["community_id"] = c.CommunityID
		item["title"] = c.Title
		item["body"] = c.Body
		item["like_count"] = int64(c.LikeCount)
		item["dislike_count"] = int64(c.DislikeCount)
		item["comment_count"] = int64(c.CommentCount)
		item["share_count"] = int64(c.ShareCount)
		item["report_count"] = int64(c.ReportCount)
		item["author_trusted"] = c.AuthorTrusted
		if rctx != nil {
			item["age_hours"] = c.Age(rctx.Now).Hours()
		}
	}

	user := map[string]any{}
	if rctx != nil {
		u := rctx.GetUserProfile()
		user["id"] = u.UserID
		user["grade"] = u.Grade
		user["country"] = u.Country
		user["language"] = u.Language
		user["interaction_count"] = int64(u.InteractionCount)
		user["account_age_days"] = u.AccountAge(rctx.Now).Hours() / 24
	}

	return map[string]any{
		"item":  item,
		"label": labels,
		"user":  user,
	}
}
