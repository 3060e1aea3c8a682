package model

import (
	"github.com/shopspring/decimal"
)

// LossType identifies whose vehicle the claim is for.
type LossType string

const (
	LossTypeClient     LossType = "client"      // own damage
	LossTypeThirdParty LossType = "third_party" // insurer liable for another party's vehicle
)

// LossTypes lists every supported loss type in display order.
var LossTypes = []LossType{LossTypeClient, LossTypeThirdParty}

// Valid reports whether l is a known loss type.
func (l LossType) Valid() bool {
	switch l {
	case LossTypeClient, LossTypeThirdParty:
		return true
	default:
		return false
	}
}

// DisplayName returns the human-readable loss type used in reports and emails.
func (l LossType) DisplayName() string {
	switch l {
	case LossTypeClient:
		return "Client Vehicle (Own Damage)"
	case LossTypeThirdParty:
		return "Third Party Vehicle"
	default:
		return string(l)
	}
}

// PolicyType identifies the insurance product covering the vehicle.
type PolicyType string

const (
	PolicyComprehensive       PolicyType = "comprehensive"
	PolicyThirdPartyProperty  PolicyType = "third_party_property"
	PolicyThirdPartyFireTheft PolicyType = "third_party_fire_theft"
	PolicyCommercial          PolicyType = "commercial"
	PolicyLuxury              PolicyType = "luxury"
)

// PolicyTypes lists every supported policy type.
var PolicyTypes = []PolicyType{
	PolicyComprehensive,
	PolicyThirdPartyProperty,
	PolicyThirdPartyFireTheft,
	PolicyCommercial,
	PolicyLuxury,
}

// Valid reports whether p is a known policy type.
func (p PolicyType) Valid() bool {
	for _, known := range PolicyTypes {
		if p == known {
			return true
		}
	}
	return false
}

// Case is a validated total-loss evaluation request.
// SalvageValue <= PolicyValue is guaranteed by validation before a Case is built.
type Case struct {
	VIN          string          `json:"vin"`
	PolicyType   PolicyType      `json:"policy_type"`
	LossType     LossType        `json:"loss_type"`
	PolicyValue  decimal.Decimal `json:"policy_value"`
	SalvageValue decimal.Decimal `json:"salvage_value"`
	RepairQuote  decimal.Decimal `json:"repair_quote"`
}
