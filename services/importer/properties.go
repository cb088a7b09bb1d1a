package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
)

// writeProperties attaches the batch's property values in input order. The
// concept pass has already completed, so lookups against the transaction's
// view resolve every code the batch itself introduces.
func (i *Importer) writeProperties(ctx context.Context, store Store,
	cs *codesystem.CodeSystem, properties []ImportedProperty, cache *resolutionCache) error {
	for _, prop := range properties {
		codingID, err := store.GetCodingID(ctx, termsql.GetCodingIDParams{
			System: cs.ID,
			Code:   prop.Code,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return unknownCode(cs.URL, prop.Code)
			}

			return storageFailure(err, fmt.Sprintf("Failed to look up concept %q", prop.Code))
		}

		resolved, err := i.resolveProperty(ctx, store, cs, prop.Property, cache)
		if err != nil {
			return err
		}

		row := termsql.InsertCodingPropertyParams{
			Coding:   codingID,
			Property: resolved.ID,
			Value:    prop.Value,
		}

		if resolved.IsRelationship {
			// A missing target is not an error: the textual value still
			// carries the target code, permitting later linkage.
			targetID, err := store.GetCodingID(ctx, termsql.GetCodingIDParams{
				System: cs.ID,
				Code:   prop.Value,
			})

			switch {
			case err == nil:
				row.Target = sql.NullInt64{Int64: targetID, Valid: true}
			case errors.Is(err, sql.ErrNoRows):
				// leave target unset
			default:
				return storageFailure(err, fmt.Sprintf("Failed to look up relationship target %q", prop.Value))
			}
		}

		if err := store.InsertCodingProperty(ctx, row); err != nil {
			return storageFailure(err, fmt.Sprintf("Failed to write property %q on concept %q", prop.Property, prop.Code))
		}
	}

	return nil
}
