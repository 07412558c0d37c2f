package domain

import (
	id "scoresync/pkg/domain"
)

// Response value bounds on the 5-point item scale.
const (
	ResponseMin = 1
	ResponseMax = 5
)

// ResponseRecord is a single item-level answer. Unique key:
// (PersonID, Cycle, QuestionID).
type ResponseRecord struct {
	PersonID   id.PersonID
	Cycle      int
	QuestionID string
	Value      int
}

// ValidResponse reports whether v is on the accepted item scale.
func ValidResponse(v int) bool {
	return v >= ResponseMin && v <= ResponseMax
}
