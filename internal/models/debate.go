package models

// DebateRole identifies one of the four adversarial stances.
type DebateRole string

const (
	RoleBull       DebateRole = "bull"
	RoleBear       DebateRole = "bear"
	RoleRiskSeek   DebateRole = "risk_seek"
	RoleRiskAverse DebateRole = "risk_averse"
)

// DebateRoles lists every role in evaluation order.
var DebateRoles = []DebateRole{RoleBull, RoleBear, RoleRiskSeek, RoleRiskAverse}

// Action is a final or per-role trade recommendation.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// DebatePosition is one role's stance after a debate round. Positions are
// immutable snapshots; each round produces fresh ones. Cites may only
// reference claims the validator ruled supported.
type DebatePosition struct {
	Role           DebateRole `json:"role"`
	Recommendation Action     `json:"recommendation"`
	Confidence     float64    `json:"confidence"`
	Cites          []string   `json:"cites"`
	Argument       string     `json:"argument,omitempty"`
	Round          int        `json:"round"`
}
