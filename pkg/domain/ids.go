// Package domain holds the typed identifiers and small value types shared
// across the sync engine. Wrapping uuid.UUID keeps the id kinds from being
// mixed up at call sites.
package domain

import "github.com/google/uuid"

// PersonID identifies a person internally, independent of any external id the
// source system has ever issued for them.
type PersonID uuid.UUID

// InstitutionID identifies an institution internally.
type InstitutionID uuid.UUID

// RunID identifies a single pipeline run.
type RunID uuid.UUID

func NewPersonID() PersonID           { return PersonID(uuid.New()) }
func NewInstitutionID() InstitutionID { return InstitutionID(uuid.New()) }
func NewRunID() RunID                 { return RunID(uuid.New()) }

func (id PersonID) String() string      { return uuid.UUID(id).String() }
func (id InstitutionID) String() string { return uuid.UUID(id).String() }
func (id RunID) String() string         { return uuid.UUID(id).String() }

func (id PersonID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id InstitutionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParsePersonID parses the string form produced by String.
func ParsePersonID(s string) (PersonID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PersonID{}, err
	}
	return PersonID(u), nil
}

// ParseInstitutionID parses the string form produced by String.
func ParseInstitutionID(s string) (InstitutionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return InstitutionID{}, err
	}
	return InstitutionID(u), nil
}
