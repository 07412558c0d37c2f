package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// In-memory stores back unit tests and keep the pipeline runnable without a
// database. They intentionally favor clarity over performance.

type InMemoryInstitutionStore struct {
	mu           sync.RWMutex
	institutions map[string]domain.Institution
}

func NewInMemoryInstitutionStore() *InMemoryInstitutionStore {
	return &InMemoryInstitutionStore{institutions: make(map[string]domain.Institution)}
}

func (s *InMemoryInstitutionStore) Upsert(_ context.Context, inst *domain.Institution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.institutions[inst.ExternalID]
	if ok {
		inst.ID = existing.ID
	}
	s.institutions[inst.ExternalID] = *inst
	return !ok, nil
}

func (s *InMemoryInstitutionStore) GetByExternalID(_ context.Context, externalID string) (*domain.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inst, ok := s.institutions[externalID]; ok {
		return &inst, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryInstitutionStore) List(_ context.Context) ([]domain.Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Institution, 0, len(s.institutions))
	for _, inst := range s.institutions {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *InMemoryInstitutionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.institutions), nil
}

type InMemoryPersonStore struct {
	mu      sync.RWMutex
	byEmail map[string]domain.Person
	aliases map[string]id.PersonID
}

func NewInMemoryPersonStore() *InMemoryPersonStore {
	return &InMemoryPersonStore{
		byEmail: make(map[string]domain.Person),
		aliases: make(map[string]id.PersonID),
	}
}

func (s *InMemoryPersonStore) Upsert(_ context.Context, person *domain.Person) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byEmail[person.Email]
	if ok {
		person.ID = existing.ID
		if person.CurrentPeriod == "" {
			person.CurrentPeriod = existing.CurrentPeriod
		}
	}
	s.byEmail[person.Email] = *person
	return !ok, nil
}

func (s *InMemoryPersonStore) GetByEmail(_ context.Context, email string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if person, ok := s.byEmail[email]; ok {
		return &person, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryPersonStore) GetByID(_ context.Context, personID id.PersonID) (*domain.Person, error) {
	if person, ok := s.get(personID); ok {
		return &person, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryPersonStore) BindAlias(_ context.Context, externalID string, personID id.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[externalID] = personID
	return nil
}

func (s *InMemoryPersonStore) ListAliases(_ context.Context) (map[string]id.PersonID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]id.PersonID, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out, nil
}

func (s *InMemoryPersonStore) ListEmails(_ context.Context) (map[string]id.PersonID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]id.PersonID, len(s.byEmail))
	for email, person := range s.byEmail {
		out[email] = person.ID
	}
	return out, nil
}

func (s *InMemoryPersonStore) ListMissingPeriod(_ context.Context) ([]domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Person
	for _, person := range s.byEmail {
		if person.CurrentPeriod == "" {
			out = append(out, person)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *InMemoryPersonStore) SetCurrentPeriod(_ context.Context, personID id.PersonID, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, person := range s.byEmail {
		if person.ID == personID {
			person.CurrentPeriod = period
			s.byEmail[email] = person
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryPersonStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail), nil
}

func (s *InMemoryPersonStore) get(personID id.PersonID) (domain.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, person := range s.byEmail {
		if person.ID == personID {
			return person, true
		}
	}
	return domain.Person{}, false
}

type InMemoryAdvisorStore struct {
	mu       sync.RWMutex
	advisors map[string]domain.Advisor
}

func NewInMemoryAdvisorStore() *InMemoryAdvisorStore {
	return &InMemoryAdvisorStore{advisors: make(map[string]domain.Advisor)}
}

func (s *InMemoryAdvisorStore) Upsert(_ context.Context, advisor *domain.Advisor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.advisors[advisor.ExternalID]
	s.advisors[advisor.ExternalID] = *advisor
	return !ok, nil
}

func (s *InMemoryAdvisorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.advisors), nil
}

type InMemoryStaffStore struct {
	mu    sync.RWMutex
	staff map[string]domain.StaffMember
}

func NewInMemoryStaffStore() *InMemoryStaffStore {
	return &InMemoryStaffStore{staff: make(map[string]domain.StaffMember)}
}

func (s *InMemoryStaffStore) Upsert(_ context.Context, member *domain.StaffMember) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.staff[member.ExternalID]
	s.staff[member.ExternalID] = *member
	return !ok, nil
}

func (s *InMemoryStaffStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staff), nil
}

type InMemoryScoreStore struct {
	mu      sync.RWMutex
	records map[string]domain.ScoreRecord
	persons *InMemoryPersonStore
}

// NewInMemoryScoreStore joins observations against persons, mirroring the
// SQL join in the postgres implementation.
func NewInMemoryScoreStore(persons *InMemoryPersonStore) *InMemoryScoreStore {
	return &InMemoryScoreStore{
		records: make(map[string]domain.ScoreRecord),
		persons: persons,
	}
}

func scoreKey(personID id.PersonID, cycle int, period string) string {
	return fmt.Sprintf("%s|%d|%s", personID, cycle, period)
}

func (s *InMemoryScoreStore) Upsert(_ context.Context, record *domain.ScoreRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scoreKey(record.PersonID, record.Cycle, record.Period)
	_, ok := s.records[key]
	s.records[key] = *record
	return !ok, nil
}

func (s *InMemoryScoreStore) GetByKey(_ context.Context, personID id.PersonID, cycle int, period string) (*domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[scoreKey(personID, cycle, period)]; ok {
		return &record, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryScoreStore) ListMissingPeriod(_ context.Context) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScoreRecord
	for _, record := range s.records {
		if record.Period == "" {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *InMemoryScoreStore) SetPeriod(_ context.Context, personID id.PersonID, cycle int, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldKey := scoreKey(personID, cycle, "")
	record, ok := s.records[oldKey]
	if !ok {
		return nil
	}
	delete(s.records, oldKey)
	newKey := scoreKey(personID, cycle, period)
	if _, exists := s.records[newKey]; exists {
		return nil
	}
	record.Period = period
	s.records[newKey] = record
	return nil
}

func (s *InMemoryScoreStore) ListObservations(_ context.Context) ([]ScoreObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScoreObservation
	for _, record := range s.records {
		if record.Period == "" {
			continue
		}
		person, ok := s.persons.get(record.PersonID)
		if !ok || person.InstitutionID.IsNil() {
			continue
		}
		obs := ScoreObservation{
			InstitutionID: person.InstitutionID,
			Cycle:         record.Cycle,
			Period:        record.Period,
			Values:        make(map[string]float64),
		}
		for i, name := range domain.SubDimensions {
			if v := record.SubScores()[i]; v != nil {
				obs.Values[name] = *v
			}
		}
		if record.Overall != nil {
			obs.Values[domain.DimensionOverall] = *record.Overall
		}
		out = append(out, obs)
	}
	return out, nil
}

func (s *InMemoryScoreStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

type InMemoryResponseStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResponseRecord
	persons *InMemoryPersonStore
}

func NewInMemoryResponseStore(persons *InMemoryPersonStore) *InMemoryResponseStore {
	return &InMemoryResponseStore{
		records: make(map[string]domain.ResponseRecord),
		persons: persons,
	}
}

func responseKey(personID id.PersonID, cycle int, questionID string) string {
	return fmt.Sprintf("%s|%d|%s", personID, cycle, questionID)
}

func (s *InMemoryResponseStore) Upsert(_ context.Context, record *domain.ResponseRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey(record.PersonID, record.Cycle, record.QuestionID)
	_, ok := s.records[key]
	s.records[key] = *record
	return !ok, nil
}

func (s *InMemoryResponseStore) GetByKey(_ context.Context, personID id.PersonID, cycle int, questionID string) (*domain.ResponseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[responseKey(personID, cycle, questionID)]; ok {
		return &record, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryResponseStore) ListByQuestions(_ context.Context, questionIDs []string) ([]ResponseObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(questionIDs))
	for _, q := range questionIDs {
		wanted[q] = struct{}{}
	}
	var out []ResponseObservation
	for _, record := range s.records {
		if _, ok := wanted[record.QuestionID]; !ok {
			continue
		}
		person, ok := s.persons.get(record.PersonID)
		if !ok || person.InstitutionID.IsNil() || person.CurrentPeriod == "" {
			continue
		}
		out = append(out, ResponseObservation{
			PersonID:      record.PersonID,
			InstitutionID: person.InstitutionID,
			Cycle:         record.Cycle,
			Period:        person.CurrentPeriod,
			QuestionID:    record.QuestionID,
			Value:         record.Value,
		})
	}
	return out, nil
}

func (s *InMemoryResponseStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

type InMemoryStatsStore struct {
	mu         sync.RWMutex
	group      []domain.GroupStatistic
	benchmarks []domain.BenchmarkStatistic
}

func NewInMemoryStatsStore() *InMemoryStatsStore {
	return &InMemoryStatsStore{}
}

func (s *InMemoryStatsStore) ReplaceGroup(_ context.Context, dimensions []string, stats []domain.GroupStatistic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(dimensions))
	for _, d := range dimensions {
		drop[d] = struct{}{}
	}
	kept := s.group[:0]
	for _, st := range s.group {
		if _, ok := drop[st.Dimension]; !ok {
			kept = append(kept, st)
		}
	}
	s.group = append(kept, stats...)
	return nil
}

func (s *InMemoryStatsStore) ReplaceBenchmark(_ context.Context, dimensions []string, stats []domain.BenchmarkStatistic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(dimensions))
	for _, d := range dimensions {
		drop[d] = struct{}{}
	}
	kept := s.benchmarks[:0]
	for _, st := range s.benchmarks {
		if _, ok := drop[st.Dimension]; !ok {
			kept = append(kept, st)
		}
	}
	s.benchmarks = append(kept, stats...)
	return nil
}

func (s *InMemoryStatsStore) CountGroup(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.group), nil
}

func (s *InMemoryStatsStore) CountBenchmark(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.benchmarks), nil
}

// GroupStatistics returns a copy of the stored group rows for assertions.
func (s *InMemoryStatsStore) GroupStatistics() []domain.GroupStatistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.GroupStatistic(nil), s.group...)
}

// BenchmarkStatistics returns a copy of the stored benchmark rows.
func (s *InMemoryStatsStore) BenchmarkStatistics() []domain.BenchmarkStatistic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BenchmarkStatistic(nil), s.benchmarks...)
}

type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs []RunRecord
}

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{}
}

func (s *InMemoryRunStore) Append(_ context.Context, run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *InMemoryRunStore) ListRecent(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]RunRecord(nil), s.runs...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
