package utils

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// 个性化元数据（召回来源、混合策略、降级原因）都以 Label 形式挂在
// Item / RecommendContext 上；Value 与 Source 的语义由业务自定义。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rerank / blend / fallback ...
}

// MergeLabel 用于合并同名 Label，遵循"保留历史、可追踪"的默认策略。
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
