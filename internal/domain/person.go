package domain

import (
	id "scoresync/pkg/domain"
)

// Person is uniquely identified by normalized email regardless of how many
// external ids the source system has issued for it over time. ExternalID
// holds the most recently seen alias; the full alias set lives in the person
// alias store.
type Person struct {
	ID            id.PersonID
	ExternalID    string
	Email         string
	FirstName     string
	LastName      string
	InstitutionID id.InstitutionID
	GroupName     string
	Cohort        string
	CurrentPeriod string
}

// Advisor is an auxiliary role record attached to an institution.
type Advisor struct {
	ExternalID    string
	Email         string
	FirstName     string
	LastName      string
	InstitutionID id.InstitutionID
}

// StaffMember is an auxiliary role record for non-advising institution staff.
type StaffMember struct {
	ExternalID    string
	Email         string
	FirstName     string
	LastName      string
	Title         string
	InstitutionID id.InstitutionID
}
