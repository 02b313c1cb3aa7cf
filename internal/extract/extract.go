// Package extract resolves semantically-typed contact fields from a raw
// lead's unordered question/answer pairs.
package extract

import (
	"strings"

	"github.com/adstack/leadsync/pkg/graph"
)

// Canonical label synonyms for the semantic targets. Matching is
// case-insensitive and first match wins.
var (
	phoneLabels = []string{"phone_number", "phone", "phone number", "mobile", "mobile_number"}
	emailLabels = []string{"email", "e-mail", "email_address", "work_email"}
	nameLabels  = []string{"full_name", "name", "full name", "first_and_last_name"}
)

// Extracted holds the resolved fields of one lead. Unresolved fields are
// empty strings, never errors: a malformed lead degrades to absent values.
type Extracted struct {
	FormID      string
	PhoneNumber string
	Email       string
	Name        string
}

// Fields scans the lead's field_data entries for the canonical phone,
// email, and name labels. Question keys whose declared type identifies a
// semantic target (EMAIL, PHONE, FULL_NAME) are accepted as additional
// labels for that target. The form id comes straight from the lead's form
// reference, independent of the scan. Pure function, no I/O.
func Fields(lead graph.Lead, questions []graph.Question) Extracted {
	phone := phoneLabels
	email := emailLabels
	name := nameLabels

	for _, q := range questions {
		if q.Key == "" {
			continue
		}
		switch strings.ToUpper(q.Type) {
		case "PHONE":
			phone = append(phone, q.Key)
		case "EMAIL":
			email = append(email, q.Key)
		case "FULL_NAME":
			name = append(name, q.Key)
		}
	}

	return Extracted{
		FormID:      lead.FormID,
		PhoneNumber: firstValue(lead.FieldData, phone),
		Email:       firstValue(lead.FieldData, email),
		Name:        firstValue(lead.FieldData, name),
	}
}

// firstValue returns the first value of the first field_data entry whose
// name matches any of the labels, or "" when nothing matches.
func firstValue(fields []graph.FieldData, labels []string) string {
	for _, f := range fields {
		for _, label := range labels {
			if strings.EqualFold(f.Name, label) {
				if len(f.Values) == 0 {
					return ""
				}
				return f.Values[0]
			}
		}
	}
	return ""
}
