package domain

import (
	"time"

	id "scoresync/pkg/domain"
)

// Score bounds for every sub-dimension and the overall score.
const (
	ScoreMin = 0.0
	ScoreMax = 10.0
)

// Dimension names as persisted in the statistics tables.
const (
	DimensionSelfAwareness     = "self_awareness"
	DimensionCareerExploration = "career_exploration"
	DimensionPlanning          = "planning"
	DimensionSkills            = "skills"
	DimensionConfidence        = "confidence"
	DimensionOverall           = "overall"
	DimensionReadiness         = "readiness"
)

// SubDimensions lists the five assessed sub-dimensions in persisted order.
var SubDimensions = []string{
	DimensionSelfAwareness,
	DimensionCareerExploration,
	DimensionPlanning,
	DimensionSkills,
	DimensionConfidence,
}

// ScoreRecord holds one assessment cycle's scores for a person. Nil pointers
// mean the source never captured that value; the null-overwrite guard keeps
// blanks from erasing previously captured values. Unique key:
// (PersonID, Cycle, Period).
type ScoreRecord struct {
	PersonID          id.PersonID
	Cycle             int
	Period            string
	SelfAwareness     *float64
	CareerExploration *float64
	Planning          *float64
	Skills            *float64
	Confidence        *float64
	Overall           *float64
	CompletedAt       *time.Time
}

// SubScores returns the five sub-dimension values in SubDimensions order.
func (s *ScoreRecord) SubScores() []*float64 {
	return []*float64{s.SelfAwareness, s.CareerExploration, s.Planning, s.Skills, s.Confidence}
}

// HasAnySubScore reports whether any guarded field holds a value.
func (s *ScoreRecord) HasAnySubScore() bool {
	for _, v := range s.SubScores() {
		if v != nil {
			return true
		}
	}
	return s.Overall != nil
}

// Completeness counts populated guarded fields, used to pick the richer of
// two staged rows for the same key.
func (s *ScoreRecord) Completeness() int {
	n := 0
	for _, v := range s.SubScores() {
		if v != nil {
			n++
		}
	}
	if s.Overall != nil {
		n++
	}
	return n
}

// DropInvalid clears every score field outside the accepted domain and
// reports how many were dropped. A bad value is a field-level defect; the
// rest of the record still counts.
func (s *ScoreRecord) DropInvalid() int {
	dropped := 0
	fields := []**float64{
		&s.SelfAwareness, &s.CareerExploration, &s.Planning,
		&s.Skills, &s.Confidence, &s.Overall,
	}
	for _, f := range fields {
		if *f != nil && !ValidScore(**f) {
			*f = nil
			dropped++
		}
	}
	return dropped
}

// ValidScore reports whether v is inside the accepted score domain.
func ValidScore(v float64) bool {
	return v >= ScoreMin && v <= ScoreMax
}
