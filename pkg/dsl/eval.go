package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/maxwelljhuang/knytt/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("product", cel.DynType),
		cel.Variable("item", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
	return env, err
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	if celEnv == nil && err == nil {
		err = fmt.Errorf("cel env not initialized")
	}
	return celEnv, err
}

// Eval 是商品过滤 DSL 解释器，使用 CEL (Common Expression Language) 实现。
// 运营侧的结构化过滤之外的规则（黑名单品牌、价格带、组合条件）以表达式
// 下发，候选在检索/过滤阶段逐条评估。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：product.price < 100.0 / product.quality >= 0.5
//   - 相等：product.category == "dresses"
//   - 逻辑：product.in_stock && product.price <= 200.0
//   - 上下文：rctx.scene == "feed"
//
// 表达式在 NewEval 时编译一次，之后对每个候选复用（候选池可达数百条，
// 逐条重新编译会拖垮检索延迟）。
type Eval struct {
	expr string
	prg  cel.Program
}

// NewEval 编译表达式并返回解释器；表达式为空时 Evaluate 恒为 true。
func NewEval(expr string) (*Eval, error) {
	e := &Eval{expr: expr}
	if expr == "" {
		return e, nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}
	e.prg = prg
	return e, nil
}

// Evaluate 对单个商品执行表达式，返回布尔结果。
// rctx 可为 nil（例如索引侧预过滤阶段没有请求上下文）。
func (e *Eval) Evaluate(p *core.ProductEntry, rctx *core.RecommendContext) (bool, error) {
	if e.prg == nil {
		return true, nil
	}
	if p == nil {
		return false, nil
	}

	out, _, err := e.prg.Eval(buildInput(p, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(p *core.ProductEntry, rctx *core.RecommendContext) map[string]interface{} {
	product := map[string]interface{}{
		"id":       p.ID,
		"price":    p.Price,
		"category": p.Category,
		"brand":    p.Brand,
		"in_stock": p.InStock,
		"quality":  p.Quality,
	}

	// item 是 product 的别名，兼容两种写法
	input := map[string]interface{}{
		"product": product,
		"item":    product,
	}

	rc := map[string]interface{}{}
	if rctx != nil {
		rc = map[string]interface{}{
			"user_id": rctx.UserID,
			"scene":   string(rctx.Scene),
			"params":  rctx.Params,
		}
	}
	input["rctx"] = rc
	return input
}
