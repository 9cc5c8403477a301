package models

import (
	"time"

	"github.com/google/uuid"
)

// ContractAward is one historical award, cached locally to cut down on
// external API calls. ContractNumber is the dedup key; awards are immutable
// historical facts, so the cache is insert-or-ignore and append-only.
type ContractAward struct {
	ID              uuid.UUID              `json:"id"`
	ContractNumber  string                 `json:"contract_number"`
	PSCCode         string                 `json:"psc_code"`
	NAICSCode       string                 `json:"naics_code"`
	Keywords        []string               `json:"keywords"`
	SignedDate      *time.Time             `json:"signed_date"`
	TotalValue      float64                `json:"total_value"`
	ObligatedAmount float64                `json:"obligated_amount"`
	Quantity        *float64               `json:"quantity"`
	UnitPrice       *float64               `json:"unit_price"`
	AwardeeName     string                 `json:"awardee_name"`
	AwardeeCage     string                 `json:"awardee_cage"`
	AwardeeUEI      string                 `json:"awardee_uei"`
	Agency          string                 `json:"agency"`
	Description     string                 `json:"description"`
	Raw             map[string]interface{} `json:"raw,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}
