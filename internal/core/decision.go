package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationDecision is the explained recommendation for one contribution.
// It is created once and never mutated afterwards.
type AllocationDecision struct {
	ID                 string                         `json:"id"`
	Date               time.Time                      `json:"date"`
	ProfileName        string                         `json:"profile"`
	ContributionAmount decimal.Decimal                `json:"contribution_amount"`
	Regime             RegimeClassification           `json:"regime"`
	Mega               MegaWeights                    `json:"mega_weights"`
	Meso               map[string]float64             `json:"meso_weights"`
	Micro              map[string]map[string]float64  `json:"micro_targets"`
	ClassAmounts       map[AssetClass]decimal.Decimal `json:"class_amounts"`
	PositionAmounts    map[string]decimal.Decimal     `json:"position_amounts"`
	Strategy           string                         `json:"strategy"`
	Action             string                         `json:"action,omitempty"`
	Justification      string                         `json:"justification"`
	RiskCheckPassed    bool                           `json:"risk_check_passed"`
	Degraded           bool                           `json:"degraded"`
	Degradations       []string                       `json:"degradations,omitempty"`
	CreatedAt          time.Time                      `json:"created_at"`
}
