package importer

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
)

const (
	// RelationshipType marks a property whose values name other concepts in
	// the same code system.
	RelationshipType = "code"

	// ImplicitParentCode is accepted for hierarchy properties when the code
	// system declares no hierarchyMeaning of its own.
	ImplicitParentCode = "parent"

	// ImplicitParentURI is the uri synthesized for implicit hierarchy
	// property definitions.
	ImplicitParentURI = "http://hl7.org/fhir/concept-properties#parent"

	pgUniqueViolation = "23505"
)

// resolveProperty returns the persisted definition id and relationship
// classification for a property code, creating the definition row on first
// use. Results are memoized in the per-import cache.
func (i *Importer) resolveProperty(ctx context.Context, store Store,
	cs *codesystem.CodeSystem, code string, cache *resolutionCache) (resolvedProperty, error) {
	if r, ok := cache.get(cs.URL, code); ok {
		return r, nil
	}

	def := cs.FindProperty(code)

	if def == nil {
		if code == cs.HierarchyMeaning ||
			(code == ImplicitParentCode && cs.HierarchyMeaning == "") {
			def = &codesystem.PropertyDefinition{
				Code: code,
				URI:  ImplicitParentURI,
				Type: RelationshipType,
			}
		} else {
			return resolvedProperty{}, unknownProperty(code)
		}
	}

	id, err := i.ensurePropertyRow(ctx, store, cs, def)
	if err != nil {
		return resolvedProperty{}, err
	}

	r := resolvedProperty{
		ID:             id,
		IsRelationship: def.Type == RelationshipType,
	}

	cache.put(cs.URL, code, r)

	return r, nil
}

// ensurePropertyRow looks up the definition row for (system, code) and
// creates it when absent. The select/insert pair is not atomic on its own;
// a concurrent importer may win the insert, in which case the conflicting
// insert yields no row and the lookup is retried under the same transaction.
func (i *Importer) ensurePropertyRow(ctx context.Context, store Store,
	cs *codesystem.CodeSystem, def *codesystem.PropertyDefinition) (int64, error) {
	lookup := termsql.GetCodeSystemPropertyParams{
		System: cs.ID,
		Code:   def.Code,
	}

	existing, err := store.GetCodeSystemProperty(ctx, lookup)
	if err == nil {
		return existing.ID, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, storageFailure(err, "Failed to look up property definition")
	}

	id, err := store.InsertCodeSystemProperty(ctx, termsql.InsertCodeSystemPropertyParams{
		System: cs.ID,
		Code:   def.Code,
		Type:   def.Type,
		Uri: sql.NullString{
			String: def.URI,
			Valid:  def.URI != "",
		},
		Description: sql.NullString{
			String: def.Description,
			Valid:  def.Description != "",
		},
	})
	if err == nil {
		return id, nil
	}

	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		// Lost the race; the winning row is the one to use.
		existing, err = store.GetCodeSystemProperty(ctx, lookup)
		if err != nil {
			return 0, storageFailure(err, "Failed to re-read property definition after conflict")
		}

		return existing.ID, nil
	}

	return 0, storageFailure(err, "Failed to create property definition")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
