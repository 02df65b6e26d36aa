package filter

import (
	"context"
	"sync"

	"github.com/maxwelljhuang/knytt/core"
	"github.com/maxwelljhuang/knytt/pkg/dsl"
)

// ExprFilter 执行请求携带的 CEL 表达式（rctx.Filters.Expr）。
// 表达式返回 true 表示商品通过（保留），false 表示剔除。
//
// 编译结果按表达式文本缓存：运营规则数量有限且复用率高，
// 避免每个候选、每次请求重复编译。
type ExprFilter struct {
	mu       sync.RWMutex
	programs map[string]*dsl.Eval
}

// NewExprFilter 创建表达式过滤器。
func NewExprFilter() *ExprFilter {
	return &ExprFilter{programs: make(map[string]*dsl.Eval)}
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if rctx == nil || rctx.Filters == nil || rctx.Filters.Expr == "" {
		return false, nil
	}
	p := item.Product()
	if p == nil {
		return false, nil
	}

	eval, err := f.compiled(rctx.Filters.Expr)
	if err != nil {
		return false, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, err.Error())
	}

	pass, err := eval.Evaluate(p, rctx)
	if err != nil {
		return false, err
	}
	return !pass, nil
}

func (f *ExprFilter) compiled(expr string) (*dsl.Eval, error) {
	f.mu.RLock()
	eval, ok := f.programs[expr]
	f.mu.RUnlock()
	if ok {
		return eval, nil
	}

	eval, err := dsl.NewEval(expr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.programs[expr] = eval
	f.mu.Unlock()
	return eval, nil
}

var _ Filter = (*ExprFilter)(nil)
