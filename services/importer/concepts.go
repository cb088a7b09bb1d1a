package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
)

// writeConcepts upserts the batch's concepts in input order. Re-importing a
// concept refreshes its display; order does not affect final state.
func (i *Importer) writeConcepts(ctx context.Context, store Store,
	cs *codesystem.CodeSystem, concepts []Concept) error {
	for _, concept := range concepts {
		display := sql.NullString{
			String: concept.Display,
			Valid:  concept.Display != "",
		}

		if _, err := store.UpsertCoding(ctx, termsql.UpsertCodingParams{
			System:  cs.ID,
			Code:    concept.Code,
			Display: display,
		}); err != nil {
			return storageFailure(err, fmt.Sprintf("Failed to write concept %q", concept.Code))
		}
	}

	return nil
}
