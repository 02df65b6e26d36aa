// Package vecmath 提供 embedding 向量的基础运算。
// 各模块（taste / vector / blend / rerank）统一复用，避免重复实现。
package vecmath

import "math"

// Dot 计算内积。维度不一致返回 0。
func Dot(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm 计算 L2 范数。
func Norm(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Cosine 计算余弦相似度。任一向量为零向量时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize 返回单位化后的新向量；零向量返回 nil。
func Normalize(a []float64) []float64 {
	n := Norm(a)
	if n == 0 || len(a) == 0 {
		return nil
	}
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v / n
	}
	return out
}

// Scale 返回 s·a 的新向量。
func Scale(a []float64, s float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v * s
	}
	return out
}

// AddInto 把 b 累加到 dst（就地修改）。维度不一致时不做任何事。
func AddInto(dst, b []float64) {
	if len(dst) != len(b) {
		return
	}
	for i := range dst {
		dst[i] += b[i]
	}
}

// Lerp 返回 γ·a + (1-γ)·b 的新向量（EWMA 单步）。
func Lerp(a, b []float64, gamma float64) []float64 {
	if len(a) != len(b) {
		return nil
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = gamma*a[i] + (1-gamma)*b[i]
	}
	return out
}

// IsUnit 判断向量是否在 eps 容差内为单位范数。
func IsUnit(a []float64, eps float64) bool {
	if len(a) == 0 {
		return false
	}
	return math.Abs(Norm(a)-1) <= eps
}
