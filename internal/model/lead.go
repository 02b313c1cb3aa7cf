package model

import (
	"encoding/json"
	"time"
)

// LeadPayload bundles the enriched form submission: resolved contact
// fields plus the raw upstream material they were extracted from.
type LeadPayload struct {
	FormName    string          `json:"form_name"`
	FormID      string          `json:"form_id"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	Email       string          `json:"email,omitempty"`
	Name        string          `json:"name,omitempty"`
	Questions   json.RawMessage `json:"questions,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Lead is one ingested form submission. LeadID is the upstream identifier
// and the dedup key: the store never holds more than one Lead per LeadID.
// Leads are insert-only; the jobs never update or delete them.
type Lead struct {
	ID          string      `json:"id"`
	PageID      string      `json:"page_id"`
	LeadID      string      `json:"lead_id"`
	FormID      string      `json:"form_id"`
	CreatedTime time.Time   `json:"created_time"`
	Payload     LeadPayload `json:"payload"`
	IngestedAt  time.Time   `json:"ingested_at"`
}
