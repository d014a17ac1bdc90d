package models

// AnalystRecommendation is the analyst-level stance that accompanies a
// ClaimSet into consensus, separate from the debate roles' positions.
type AnalystRecommendation struct {
	Agent      string  `json:"agent"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Degraded   bool    `json:"degraded"`
}
