package models

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus tracks the staff-driven lifecycle of an opportunity.
// Transitions are user-driven and are never reverted by a sync run.
type ReviewStatus string

const (
	ReviewStatusNew       ReviewStatus = "new"
	ReviewStatusReviewed  ReviewStatus = "reviewed"
	ReviewStatusImported  ReviewStatus = "imported"
	ReviewStatusDismissed ReviewStatus = "dismissed"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusNew, ReviewStatusReviewed, ReviewStatusImported, ReviewStatusDismissed:
		return true
	}
	return false
}

// Contact is the first point of contact listed on a notice.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Award is the award sub-record some notices carry once a contract is let.
type Award struct {
	Amount  float64    `json:"amount"`
	Awardee string     `json:"awardee"`
	Date    *time.Time `json:"date"`
}

// Opportunity is one posted solicitation. SolicitationNumber is the natural
// key: re-ingesting a known number updates descriptive fields in place.
type Opportunity struct {
	ID                 uuid.UUID              `json:"id"`
	NoticeID           string                 `json:"notice_id"`
	SolicitationNumber string                 `json:"solicitation_number"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	PostedDate         *time.Time             `json:"posted_date"`
	ResponseDeadline   *time.Time             `json:"response_deadline"`
	PSCCode            string                 `json:"psc_code"`
	SetAsideType       string                 `json:"set_aside_type"`
	Agency             string                 `json:"agency"`
	Office             string                 `json:"office"`
	Contact            Contact                `json:"contact"`
	UILink             string                 `json:"ui_link"`
	Attachments        []Attachment           `json:"attachments"`
	Award              *Award                 `json:"award"`
	ReviewStatus       ReviewStatus           `json:"review_status"`
	DismissReason      string                 `json:"dismiss_reason,omitempty"`
	Raw                map[string]interface{} `json:"raw,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}
