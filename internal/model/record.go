package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DecisionRecord is a Decision as persisted by the store.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Decision  Decision  `json:"decision"`
	CreatedAt time.Time `json:"created_at"`
}

// SalvageResponse is a parsed salvage reply attached to a decision.
type SalvageResponse struct {
	ID         string           `json:"id"`
	DecisionID string           `json:"decision_id"`
	Sender     string           `json:"sender,omitempty"`
	Text       string           `json:"text"`
	Result     ExtractionResult `json:"result"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DecisionStats aggregates stored decisions.
type DecisionStats struct {
	Total            int              `json:"total"`
	TotalLosses      int              `json:"total_losses"`
	Repairable       int              `json:"repairable"`
	TotalLossPercent float64          `json:"total_loss_percent"`
	AvgPolicyValue   decimal.Decimal  `json:"avg_policy_value"`
	AvgRepairQuote   decimal.Decimal  `json:"avg_repair_quote"`
	ByLossType       map[LossType]int `json:"by_loss_type"`
	FirstDecisionAt  *time.Time       `json:"first_decision_at,omitempty"`
	LastDecisionAt   *time.Time       `json:"last_decision_at,omitempty"`
}

// ComputeStats aggregates a set of decision records. An empty input yields
// zero totals and an empty ByLossType map.
func ComputeStats(records []DecisionRecord) DecisionStats {
	s := DecisionStats{ByLossType: make(map[LossType]int)}
	if len(records) == 0 {
		return s
	}

	var policySum, repairSum decimal.Decimal
	for i := range records {
		r := &records[i]
		s.Total++
		if r.Decision.IsTotalLoss {
			s.TotalLosses++
		} else {
			s.Repairable++
		}
		s.ByLossType[r.Decision.Case.LossType]++
		policySum = policySum.Add(r.Decision.Case.PolicyValue)
		repairSum = repairSum.Add(r.Decision.RepairQuote)

		created := r.CreatedAt
		if s.FirstDecisionAt == nil || created.Before(*s.FirstDecisionAt) {
			s.FirstDecisionAt = &created
		}
		if s.LastDecisionAt == nil || created.After(*s.LastDecisionAt) {
			s.LastDecisionAt = &created
		}
	}

	n := decimal.NewFromInt(int64(s.Total))
	s.AvgPolicyValue = policySum.Div(n).Round(2)
	s.AvgRepairQuote = repairSum.Div(n).Round(2)
	s.TotalLossPercent = float64(s.TotalLosses) / float64(s.Total) * 100
	return s
}
