package sync

import (
	"context"
	"fmt"

	"scoresync/internal/domain"
	"scoresync/internal/period"
	"scoresync/internal/source"
	"scoresync/internal/stats"
	"scoresync/internal/sync/report"
	"scoresync/internal/sync/writer"
	id "scoresync/pkg/domain"
	dErrors "scoresync/pkg/domain-errors"
	"scoresync/pkg/email"
)

// Table names as reported and persisted.
const (
	tableInstitutions = "institutions"
	tablePersons      = "persons"
	tableAdvisors     = "advisors"
	tableStaff        = "staff_members"
	tableScores       = "score_records"
	tableResponses    = "response_records"
)

// syncInstitutions bootstraps the run. Every later stage needs the
// institution index and the period policy map, so a failure here is fatal
// for the whole run.
func (p *Pipeline) syncInstitutions(ctx context.Context, run *runState, rep *report.Report) error {
	t := report.TableReport{Table: tableInstitutions, StartedAt: p.now().UTC()}
	t.Before, _ = p.stores.Institutions.Count(ctx)

	res, err := p.client.FetchAll(ctx, source.CollectionInstitutions, "")
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeFatal, "institutions bootstrap")
	}
	p.notePageLoss(rep, source.CollectionInstitutions, res)

	w := writer.New(writer.Config[*domain.Institution]{
		Table:     tableInstitutions,
		BatchSize: p.cfg.BatchSizes.Institutions,
		Key:       func(inst *domain.Institution) string { return inst.ExternalID },
		Upsert:    p.stores.Institutions.Upsert,
	}, writer.WithLogger[*domain.Institution](p.logger), writer.WithMetrics[*domain.Institution](p.metrics))

	for _, raw := range res.Records {
		var rec source.InstitutionRecord
		if err := source.Decode(raw, &rec); err != nil {
			t.Skipped++
			p.skip("mapping")
			continue
		}
		if rec.ExternalID == "" || rec.Name == "" {
			w.Reject()
			continue
		}
		err := w.Stage(ctx, &domain.Institution{
			ID:               id.NewInstitutionID(),
			ExternalID:       rec.ExternalID,
			Name:             rec.Name,
			UsesCalendarYear: rec.UsesCalendarYear,
			UpdatedAt:        p.now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}

	// The index covers stored institutions too, so contacts synced today can
	// reference institutions synced in an earlier run.
	list, err := p.stores.Institutions.List(ctx)
	if err != nil {
		return fmt.Errorf("load institution index: %w", err)
	}
	for _, inst := range list {
		run.institutions[inst.ExternalID] = inst
		run.policies[inst.ID] = inst.UsesCalendarYear
	}

	fillCounters(&t, w.Counters())
	t.After, _ = p.stores.Institutions.Count(ctx)
	t.FinishedAt = p.now().UTC()
	rep.AddTable(t)
	return nil
}

// syncContacts writes persons and their embedded per-cycle score sets. This
// is where identity reconciliation happens: every contact passes through the
// resolver before anything is staged.
func (p *Pipeline) syncContacts(ctx context.Context, run *runState, rep *report.Report) error {
	persons := report.TableReport{Table: tablePersons, StartedAt: p.now().UTC()}
	scores := report.TableReport{Table: tableScores, StartedAt: p.now().UTC()}
	persons.Before, _ = p.stores.Persons.Count(ctx)
	scores.Before, _ = p.stores.Scores.Count(ctx)

	res, err := p.client.FetchAll(ctx, source.CollectionContacts, "")
	if err != nil {
		return err
	}
	p.notePageLoss(rep, source.CollectionContacts, res)

	pw := writer.New(writer.Config[*domain.Person]{
		Table:     tablePersons,
		BatchSize: p.cfg.BatchSizes.Persons,
		Key:       func(person *domain.Person) string { return person.Email },
		Upsert:    p.stores.Persons.Upsert,
	}, writer.WithLogger[*domain.Person](p.logger), writer.WithMetrics[*domain.Person](p.metrics))

	sw := writer.New(writer.Config[*domain.ScoreRecord]{
		Table:     tableScores,
		BatchSize: p.cfg.BatchSizes.Scores,
		Key: func(rec *domain.ScoreRecord) string {
			return fmt.Sprintf("%s|%d|%s", rec.PersonID, rec.Cycle, rec.Period)
		},
		// Most complete wins; on a tie the later record does.
		Resolve: func(existing, incoming *domain.ScoreRecord) *domain.ScoreRecord {
			if incoming.Completeness() >= existing.Completeness() {
				return incoming
			}
			return existing
		},
		GuardEmpty: func(rec *domain.ScoreRecord) bool { return !rec.HasAnySubScore() },
		GuardSet:   func(rec *domain.ScoreRecord) bool { return rec.HasAnySubScore() },
		Fetch: func(ctx context.Context, rec *domain.ScoreRecord) (*domain.ScoreRecord, error) {
			return p.stores.Scores.GetByKey(ctx, rec.PersonID, rec.Cycle, rec.Period)
		},
		Upsert: p.stores.Scores.Upsert,
	}, writer.WithLogger[*domain.ScoreRecord](p.logger), writer.WithMetrics[*domain.ScoreRecord](p.metrics))

	var processed []string
	for _, raw := range res.Records {
		var rec source.ContactRecord
		if err := source.Decode(raw, &rec); err != nil {
			persons.Skipped++
			p.skip("mapping")
			continue
		}
		if p.alreadyProcessed(source.CollectionContacts, rec.ExternalID) {
			persons.Skipped++
			p.skip("resumed")
			continue
		}

		personID, _, err := run.resolver.ResolvePerson(ctx, rec.ExternalID, rec.Email)
		if err != nil {
			if dErrors.CodeOf(err) == dErrors.CodeMapping {
				persons.Skipped++
				p.skip("mapping")
				continue
			}
			return err
		}

		firstName, lastName := rec.FirstName, rec.LastName
		if firstName == "" && lastName == "" {
			firstName, lastName = email.DeriveNameFromEmail(rec.Email)
		}

		inst, instKnown := run.institutions[rec.InstitutionID]
		person := &domain.Person{
			ID:         personID,
			ExternalID: rec.ExternalID,
			Email:      email.Normalize(rec.Email),
			FirstName:  firstName,
			LastName:   lastName,
			GroupName:  rec.GroupName,
			Cohort:     rec.Cohort,
		}
		if instKnown {
			person.InstitutionID = inst.ID
			person.CurrentPeriod = period.ForDate(p.now(), inst.UsesCalendarYear)
		}
		if err := pw.Stage(ctx, person); err != nil {
			return err
		}

		for _, set := range rec.Scores {
			if err := p.stageScoreSet(ctx, sw, &scores, personID, inst, instKnown, set); err != nil {
				return err
			}
		}
		processed = append(processed, rec.ExternalID)
	}
	if err := pw.Flush(ctx); err != nil {
		return err
	}
	if err := sw.Flush(ctx); err != nil {
		return err
	}
	// Only flushed work goes into the cursor; an interrupted stage refetches
	// its unflushed tail on resume.
	for _, externalID := range processed {
		p.markProcessed(source.CollectionContacts, externalID)
	}
	p.markPage(source.CollectionContacts, res.Pages)

	fillCounters(&persons, pw.Counters())
	fillCounters(&scores, sw.Counters())
	persons.After, _ = p.stores.Persons.Count(ctx)
	scores.After, _ = p.stores.Scores.Count(ctx)
	persons.FinishedAt = p.now().UTC()
	scores.FinishedAt = p.now().UTC()
	rep.AddTable(persons)
	rep.AddTable(scores)
	return nil
}

func (p *Pipeline) stageScoreSet(ctx context.Context, sw *writer.Writer[*domain.ScoreRecord], t *report.TableReport, personID id.PersonID, inst domain.Institution, instKnown bool, set source.ScoreSet) error {
	if set.Cycle <= 0 {
		sw.Reject()
		return nil
	}
	record := &domain.ScoreRecord{
		PersonID:          personID,
		Cycle:             set.Cycle,
		SelfAwareness:     set.SelfAwareness,
		CareerExploration: set.CareerExploration,
		Planning:          set.Planning,
		Skills:            set.Skills,
		Confidence:        set.Confidence,
		Overall:           set.Overall,
	}
	// Out-of-range values cost only themselves, never the valid scores
	// captured alongside them in the same cycle.
	for range record.DropInvalid() {
		sw.Reject()
	}

	completedAt, err := set.CompletedAtTime()
	if err != nil {
		t.Skipped++
		p.skip("mapping")
		return nil
	}
	record.CompletedAt = completedAt
	if completedAt != nil && instKnown {
		record.Period = period.ForDate(*completedAt, inst.UsesCalendarYear)
	}
	return sw.Stage(ctx, record)
}

func (p *Pipeline) syncAdvisors(ctx context.Context, run *runState, rep *report.Report) error {
	t := report.TableReport{Table: tableAdvisors, StartedAt: p.now().UTC()}
	t.Before, _ = p.stores.Advisors.Count(ctx)

	res, err := p.client.FetchAll(ctx, source.CollectionAdvisors, "")
	if err != nil {
		return err
	}
	p.notePageLoss(rep, source.CollectionAdvisors, res)

	w := writer.New(writer.Config[*domain.Advisor]{
		Table:     tableAdvisors,
		BatchSize: p.cfg.BatchSizes.Advisors,
		Key:       func(a *domain.Advisor) string { return a.ExternalID },
		Upsert:    p.stores.Advisors.Upsert,
	}, writer.WithLogger[*domain.Advisor](p.logger), writer.WithMetrics[*domain.Advisor](p.metrics))

	for _, raw := range res.Records {
		var rec source.AdvisorRecord
		if err := source.Decode(raw, &rec); err != nil {
			t.Skipped++
			p.skip("mapping")
			continue
		}
		if rec.ExternalID == "" {
			w.Reject()
			continue
		}
		advisor := &domain.Advisor{
			ExternalID: rec.ExternalID,
			Email:      email.Normalize(rec.Email),
			FirstName:  rec.FirstName,
			LastName:   rec.LastName,
		}
		if inst, ok := run.institutions[rec.InstitutionID]; ok {
			advisor.InstitutionID = inst.ID
		}
		if err := w.Stage(ctx, advisor); err != nil {
			return err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}

	fillCounters(&t, w.Counters())
	t.After, _ = p.stores.Advisors.Count(ctx)
	t.FinishedAt = p.now().UTC()
	rep.AddTable(t)
	return nil
}

func (p *Pipeline) syncStaff(ctx context.Context, run *runState, rep *report.Report) error {
	t := report.TableReport{Table: tableStaff, StartedAt: p.now().UTC()}
	t.Before, _ = p.stores.Staff.Count(ctx)

	res, err := p.client.FetchAll(ctx, source.CollectionStaff, "")
	if err != nil {
		return err
	}
	p.notePageLoss(rep, source.CollectionStaff, res)

	w := writer.New(writer.Config[*domain.StaffMember]{
		Table:     tableStaff,
		BatchSize: p.cfg.BatchSizes.Staff,
		Key:       func(m *domain.StaffMember) string { return m.ExternalID },
		Upsert:    p.stores.Staff.Upsert,
	}, writer.WithLogger[*domain.StaffMember](p.logger), writer.WithMetrics[*domain.StaffMember](p.metrics))

	for _, raw := range res.Records {
		var rec source.StaffRecord
		if err := source.Decode(raw, &rec); err != nil {
			t.Skipped++
			p.skip("mapping")
			continue
		}
		if rec.ExternalID == "" {
			w.Reject()
			continue
		}
		member := &domain.StaffMember{
			ExternalID: rec.ExternalID,
			Email:      email.Normalize(rec.Email),
			FirstName:  rec.FirstName,
			LastName:   rec.LastName,
			Title:      rec.Title,
		}
		if inst, ok := run.institutions[rec.InstitutionID]; ok {
			member.InstitutionID = inst.ID
		}
		if err := w.Stage(ctx, member); err != nil {
			return err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}

	fillCounters(&t, w.Counters())
	t.After, _ = p.stores.Staff.Count(ctx)
	t.FinishedAt = p.now().UTC()
	rep.AddTable(t)
	return nil
}

// syncResponses depends on the resolver being warm: a response whose contact
// has not been seen yet is pending, counted and skipped, never fatal.
func (p *Pipeline) syncResponses(ctx context.Context, run *runState, rep *report.Report) error {
	t := report.TableReport{Table: tableResponses, StartedAt: p.now().UTC()}
	t.Before, _ = p.stores.Responses.Count(ctx)

	res, err := p.client.FetchAll(ctx, source.CollectionResponses, "")
	if err != nil {
		return err
	}
	p.notePageLoss(rep, source.CollectionResponses, res)

	w := writer.New(writer.Config[*domain.ResponseRecord]{
		Table:     tableResponses,
		BatchSize: p.cfg.BatchSizes.Responses,
		Key: func(rec *domain.ResponseRecord) string {
			return fmt.Sprintf("%s|%d|%s", rec.PersonID, rec.Cycle, rec.QuestionID)
		},
		Upsert: p.stores.Responses.Upsert,
	}, writer.WithLogger[*domain.ResponseRecord](p.logger), writer.WithMetrics[*domain.ResponseRecord](p.metrics))

	for _, raw := range res.Records {
		var rec source.ResponseRecord
		if err := source.Decode(raw, &rec); err != nil {
			t.Skipped++
			p.skip("mapping")
			continue
		}
		if rec.QuestionID == "" || rec.Cycle <= 0 || !domain.ValidResponse(rec.Value) {
			w.Reject()
			continue
		}
		personID, ok := run.resolver.Resolve(rec.PersonExternalID)
		if !ok {
			t.Skipped++
			p.skip("pending")
			continue
		}
		err := w.Stage(ctx, &domain.ResponseRecord{
			PersonID:   personID,
			Cycle:      rec.Cycle,
			QuestionID: rec.QuestionID,
			Value:      rec.Value,
		})
		if err != nil {
			return err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	p.markPage(source.CollectionResponses, res.Pages)

	fillCounters(&t, w.Counters())
	t.After, _ = p.stores.Responses.Count(ctx)
	t.FinishedAt = p.now().UTC()
	rep.AddTable(t)
	return nil
}

// backfillPeriods resolves periods that could not be assigned at ingest time:
// persons whose institution arrived later, and score rows captured without a
// completion date.
func (p *Pipeline) backfillPeriods(ctx context.Context, run *runState, rep *report.Report) error {
	missingPersons, err := p.stores.Persons.ListMissingPeriod(ctx)
	if err != nil {
		return fmt.Errorf("list persons missing period: %w", err)
	}
	var filledPersons int
	for _, person := range missingPersons {
		if person.InstitutionID.IsNil() {
			continue
		}
		calendar, ok := run.policies[person.InstitutionID]
		if !ok {
			continue
		}
		target := period.ForDate(p.now(), calendar)
		if err := p.stores.Persons.SetCurrentPeriod(ctx, person.ID, target); err != nil {
			return fmt.Errorf("backfill person period: %w", err)
		}
		filledPersons++
	}

	missingScores, err := p.stores.Scores.ListMissingPeriod(ctx)
	if err != nil {
		return fmt.Errorf("list scores missing period: %w", err)
	}
	var filledScores int
	for _, rec := range missingScores {
		person, err := p.stores.Persons.GetByID(ctx, rec.PersonID)
		if err != nil {
			continue
		}
		var target string
		if rec.CompletedAt != nil {
			if calendar, ok := run.policies[person.InstitutionID]; ok {
				target = period.ForDate(*rec.CompletedAt, calendar)
			}
		}
		if target == "" {
			target = person.CurrentPeriod
		}
		if target == "" {
			continue
		}
		if err := p.stores.Scores.SetPeriod(ctx, rec.PersonID, rec.Cycle, target); err != nil {
			return fmt.Errorf("backfill score period: %w", err)
		}
		filledScores++
	}

	if filledPersons > 0 || filledScores > 0 {
		rep.AddNote("period backfill: %d persons, %d score rows", filledPersons, filledScores)
	}
	return nil
}

func (p *Pipeline) rebuildStatistics(ctx context.Context, _ *runState, rep *report.Report) error {
	agg := stats.New(p.stores.Scores, p.stores.Responses, p.stores.Stats,
		stats.WithLogger(p.logger),
		stats.WithReadinessQuestions(p.cfg.ReadinessQuestions),
		stats.WithReadinessMinCount(p.cfg.ReadinessMinCount),
	)
	if err := agg.Rebuild(ctx); err != nil {
		return err
	}
	groups, _ := p.stores.Stats.CountGroup(ctx)
	benchmarks, _ := p.stores.Stats.CountBenchmark(ctx)
	rep.AddNote("statistics: %d group rows, %d benchmark rows", groups, benchmarks)
	return nil
}

func (p *Pipeline) notePageLoss(rep *report.Report, collection string, res *source.Result) {
	if len(res.FailedPages) > 0 {
		rep.AddNote("%s: abandoned pages %v of %d", collection, res.FailedPages, res.Pages)
	}
}

func (p *Pipeline) alreadyProcessed(collection, externalID string) bool {
	return p.checkpoint != nil && p.checkpoint.IsProcessed(collection, externalID)
}

func (p *Pipeline) markProcessed(collection, externalID string) {
	if p.checkpoint != nil {
		p.checkpoint.MarkProcessed(collection, externalID)
	}
}

func (p *Pipeline) markPage(collection string, pages int) {
	if p.checkpoint != nil {
		p.checkpoint.MarkPage(collection, pages)
	}
}

func fillCounters(t *report.TableReport, c writer.Counters) {
	t.New = c.New
	t.Updated = c.Updated
	t.Protected = c.Protected
	t.Rejected = c.Rejected
	t.Errors = c.Errors
}
