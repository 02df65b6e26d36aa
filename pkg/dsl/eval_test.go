package dsl

import (
	"testing"

	"github.com/maxwelljhuang/knytt/core"
)

func TestEval_Evaluate(t *testing.T) {
	entry := &core.ProductEntry{
		ID:       "p1",
		Price:    79.9,
		Category: "dresses",
		Brand:    "acme",
		InStock:  true,
		Quality:  0.8,
	}

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{"empty expr always true", "", true, false},
		{"price band", `product.price < 100.0`, true, false},
		{"category match", `product.category == "dresses"`, true, false},
		{"combined", `product.in_stock && product.quality >= 0.5`, true, false},
		{"brand blacklist", `product.brand != "acme"`, false, false},
		{"item alias", `item.price > 50.0`, true, false},
		{"non-boolean result", `product.price`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEval(tt.expr)
			if err != nil {
				t.Fatalf("NewEval(%q) error = %v", tt.expr, err)
			}
			got, err := e.Evaluate(entry, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Evaluate(%q) = %v，期望 %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_ContextScene(t *testing.T) {
	entry := &core.ProductEntry{ID: "p1", InStock: true}
	rctx := &core.RecommendContext{Scene: core.SceneFeed}

	e, err := NewEval(`rctx.scene == "feed"`)
	if err != nil {
		t.Fatalf("NewEval error = %v", err)
	}
	ok, err := e.Evaluate(entry, rctx)
	if err != nil {
		t.Fatalf("Evaluate error = %v", err)
	}
	if !ok {
		t.Error("feed 场景表达式应命中")
	}
}

func TestNewEval_CompileError(t *testing.T) {
	if _, err := NewEval(`product.price <`); err == nil {
		t.Error("非法表达式应返回编译错误")
	}
}
