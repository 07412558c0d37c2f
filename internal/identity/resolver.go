// Package identity reconciles external person ids against stable internal
// ids. The source system re-issues external ids when records are re-uploaded;
// the normalized email is the natural key that survives those re-issues.
//
// One Resolver is constructed per run and passed explicitly into every stage
// that needs it. There is no package-level state.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"scoresync/internal/storage"
	id "scoresync/pkg/domain"
	dErrors "scoresync/pkg/domain-errors"
	"scoresync/pkg/email"
)

// Resolver holds the two identity maps for a run: external id to internal id
// and normalized email to internal id. It is not safe for concurrent use; the
// pipeline owns it exclusively and all writes are serialized.
type Resolver struct {
	persons    storage.PersonStore
	byExternal map[string]id.PersonID
	byEmail    map[string]id.PersonID
	logger     *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(persons storage.PersonStore, opts ...Option) *Resolver {
	r := &Resolver{
		persons:    persons,
		byExternal: make(map[string]id.PersonID),
		byEmail:    make(map[string]id.PersonID),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hydrate loads both maps from the store so a resumed run resolves
// identities captured by earlier runs.
func (r *Resolver) Hydrate(ctx context.Context) error {
	emails, err := r.persons.ListEmails(ctx)
	if err != nil {
		return fmt.Errorf("hydrate emails: %w", err)
	}
	aliases, err := r.persons.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("hydrate aliases: %w", err)
	}
	for k, v := range emails {
		r.byEmail[k] = v
	}
	for k, v := range aliases {
		r.byExternal[k] = v
	}
	return nil
}

// ResolvePerson binds an external id and email to an internal id, minting a
// new one when the email has never been seen. An external id re-issued for a
// known email becomes an alias of the existing internal id. Returns whether
// the internal id is newly minted.
func (r *Resolver) ResolvePerson(ctx context.Context, externalID, rawEmail string) (id.PersonID, bool, error) {
	normalized := email.Normalize(rawEmail)
	if normalized == "" {
		return id.PersonID{}, false, dErrors.Newf(dErrors.CodeMapping, "person %s has no usable email", externalID)
	}

	if personID, ok := r.byEmail[normalized]; ok {
		if err := r.bind(ctx, externalID, personID); err != nil {
			return id.PersonID{}, false, err
		}
		return personID, false, nil
	}

	personID := id.NewPersonID()
	r.byEmail[normalized] = personID
	if err := r.bind(ctx, externalID, personID); err != nil {
		return id.PersonID{}, false, err
	}
	return personID, true, nil
}

// Resolve looks up an external id registered earlier in the run (or by a
// prior hydrated run). Dependent stages treat a miss as a pending record,
// counted and skipped, never fatal.
func (r *Resolver) Resolve(externalID string) (id.PersonID, bool) {
	personID, ok := r.byExternal[externalID]
	return personID, ok
}

// Known reports how many distinct persons and aliases the resolver holds.
func (r *Resolver) Known() (persons, aliases int) {
	return len(r.byEmail), len(r.byExternal)
}

func (r *Resolver) bind(ctx context.Context, externalID string, personID id.PersonID) error {
	if externalID == "" {
		return nil
	}
	if existing, ok := r.byExternal[externalID]; ok && existing == personID {
		return nil
	}
	r.byExternal[externalID] = personID
	if err := r.persons.BindAlias(ctx, externalID, personID); err != nil {
		return fmt.Errorf("bind alias %s: %w", externalID, err)
	}
	return nil
}
