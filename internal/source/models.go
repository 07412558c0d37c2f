// Package source fetches paginated records from the external case-management
// API. Raw records are parsed into typed structs at the ingestion edge so
// shape mismatches surface as mapping or constraint errors immediately
// instead of deep inside a pipeline stage.
package source

import (
	"encoding/json"
	"time"

	dErrors "scoresync/pkg/domain-errors"
)

// Collection names on the vendor API.
const (
	CollectionInstitutions = "institutions"
	CollectionContacts     = "contacts"
	CollectionAdvisors     = "advisors"
	CollectionStaff        = "staff"
	CollectionResponses    = "responses"
)

// Collections lists every synced collection in pipeline stage order.
var Collections = []string{
	CollectionInstitutions,
	CollectionContacts,
	CollectionAdvisors,
	CollectionStaff,
	CollectionResponses,
}

// InstitutionRecord is one row of the institutions collection.
type InstitutionRecord struct {
	ExternalID       string `json:"id"`
	Name             string `json:"name"`
	UsesCalendarYear bool   `json:"calendar_year"`
}

// ScoreSet is one assessment cycle embedded in a contact record. Pointer
// fields distinguish "never captured" from zero.
type ScoreSet struct {
	Cycle             int      `json:"cycle"`
	SelfAwareness     *float64 `json:"self_awareness"`
	CareerExploration *float64 `json:"career_exploration"`
	Planning          *float64 `json:"planning"`
	Skills            *float64 `json:"skills"`
	Confidence        *float64 `json:"confidence"`
	Overall           *float64 `json:"overall"`
	CompletedAt       *string  `json:"completed_at"`
}

// ContactRecord is one row of the contacts collection: a person plus their
// per-cycle score sets.
type ContactRecord struct {
	ExternalID    string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	InstitutionID string     `json:"institution_id"`
	GroupName     string     `json:"group_name"`
	Cohort        string     `json:"cohort"`
	Scores        []ScoreSet `json:"scores"`
}

// AdvisorRecord is one row of the advisors collection.
type AdvisorRecord struct {
	ExternalID    string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	InstitutionID string `json:"institution_id"`
}

// StaffRecord is one row of the staff collection.
type StaffRecord struct {
	ExternalID    string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Title         string `json:"title"`
	InstitutionID string `json:"institution_id"`
}

// ResponseRecord is one row of the responses collection.
type ResponseRecord struct {
	PersonExternalID string `json:"contact_id"`
	Cycle            int    `json:"cycle"`
	QuestionID       string `json:"question_id"`
	Value            int    `json:"value"`
}

// CompletedAtTime parses the vendor's completion timestamp. The vendor emits
// either RFC 3339 or a bare date.
func (s ScoreSet) CompletedAtTime() (*time.Time, error) {
	if s.CompletedAt == nil || *s.CompletedAt == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, *s.CompletedAt); err == nil {
			return &t, nil
		}
	}
	return nil, dErrors.Newf(dErrors.CodeMapping, "unparseable completion date %q", *s.CompletedAt)
}

// Decode parses one raw record into out, classifying JSON shape mismatches
// as mapping errors.
func Decode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeMapping, "decode source record")
	}
	return nil
}
