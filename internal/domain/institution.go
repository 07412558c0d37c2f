// Package domain models the entities managed by the sync engine. Stores own
// persistence; services own behavior. Identifier types live in pkg/domain.
package domain

import (
	"time"

	id "scoresync/pkg/domain"
)

// Institution is a customer school or program synced from the source system.
// UsesCalendarYear selects the reporting-period policy: calendar-year
// institutions report within a single year, fiscal ones roll over in August.
type Institution struct {
	ID               id.InstitutionID
	ExternalID       string
	Name             string
	UsesCalendarYear bool
	UpdatedAt        time.Time
}
