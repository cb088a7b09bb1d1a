package importer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/services/codesystem"
)

const testSystemURL = "http://ex/cs"

func newTestCodeSystem(hierarchyMeaning string, props ...codesystem.PropertyDefinition) *codesystem.CodeSystem {
	return &codesystem.CodeSystem{
		ID:               uuid.New(),
		URL:              testSystemURL,
		Status:           "active",
		Content:          "not-present",
		HierarchyMeaning: hierarchyMeaning,
		Property:         props,
	}
}

func newTestImporter(t *testing.T, db *fakeDB, systems ...*codesystem.CodeSystem) *Importer {
	t.Helper()

	store := &fakeCodeSystems{systems: make(map[string][]*codesystem.CodeSystem)}
	for _, cs := range systems {
		store.systems[cs.URL] = append(store.systems[cs.URL], cs)
	}

	imp, err := New(&Options{
		Database:    db,
		CodeSystems: store,
		Log:         zap.NewNop(),
	})
	require.NoError(t, err)

	return imp
}

func adminRequest(concepts []Concept, properties []ImportedProperty) *Request {
	return &Request{
		System:     testSystemURL,
		Concepts:   concepts,
		Properties: properties,
		Principal:  Principal{ID: "test", SuperAdmin: true},
	}
}

// S1: concepts A and B plus an implicit parent relationship from B to A.
func TestImportConceptsWithParentRelationship(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	got, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A", Display: "Alpha"}, {Code: "B", Display: "Beta"}},
		[]ImportedProperty{{Code: "B", Property: "parent", Value: "A"}},
	))
	require.NoError(t, err)
	assert.Equal(t, cs, got)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	codingB := db.data.codings[codingKey{system: cs.ID, code: "B"}]
	require.NotNil(t, codingA)
	require.NotNil(t, codingB)
	assert.Equal(t, "Alpha", codingA.display.String)
	assert.Equal(t, "Beta", codingB.display.String)

	parentDef := db.data.properties[codingKey{system: cs.ID, code: "parent"}]
	require.NotNil(t, parentDef)
	assert.Equal(t, RelationshipType, parentDef.typ)
	assert.Equal(t, ImplicitParentURI, parentDef.uri.String)

	row := db.data.codingProps[codingPropKey{
		coding:   codingB.id,
		property: parentDef.id,
		value:    "A",
	}]
	require.NotNil(t, row)
	require.True(t, row.target.Valid)
	assert.Equal(t, codingA.id, row.target.Int64)
}

// Intra-batch linkage holds regardless of where the target sits in the
// concept list - the concept pass completes before the property pass begins.
func TestImportLinksTargetAppearingLaterInBatch(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}, {Code: "B"}},
		[]ImportedProperty{{Code: "A", Property: "parent", Value: "B"}},
	))
	require.NoError(t, err)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	codingB := db.data.codings[codingKey{system: cs.ID, code: "B"}]
	parentDef := db.data.properties[codingKey{system: cs.ID, code: "parent"}]

	row := db.data.codingProps[codingPropKey{
		coding:   codingA.id,
		property: parentDef.id,
		value:    "B",
	}]
	require.NotNil(t, row)
	require.True(t, row.target.Valid)
	assert.Equal(t, codingB.id, row.target.Int64)
}

// S2: a relationship whose target does not exist anywhere still inserts,
// with target absent; the textual value carries the target code.
func TestImportRelationshipWithoutTarget(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}},
		[]ImportedProperty{{Code: "A", Property: "parent", Value: "Z"}},
	))
	require.NoError(t, err)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	parentDef := db.data.properties[codingKey{system: cs.ID, code: "parent"}]

	row := db.data.codingProps[codingPropKey{
		coding:   codingA.id,
		property: parentDef.id,
		value:    "Z",
	}]
	require.NotNil(t, row)
	assert.False(t, row.target.Valid)
}

// S3: a property naming an unknown concept fails the batch and leaves the
// database untouched.
func TestImportUnknownCode(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		nil,
		[]ImportedProperty{{Code: "X", Property: "parent", Value: "A"}},
	))
	require.Error(t, err)

	outcome := AsOutcome(err)
	assert.Equal(t, KindUnknownCode, outcome.Kind)
	assert.Equal(t, "Unknown code: http://ex/cs|X", outcome.Diagnostics)

	assert.Empty(t, db.data.codings)
	assert.Empty(t, db.data.properties)
	assert.Empty(t, db.data.codingProps)
}

// S4 / invariant 1: re-running a batch verbatim is a no-op.
func TestImportIdempotence(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	concepts := []Concept{{Code: "A", Display: "Alpha"}, {Code: "B", Display: "Beta"}}
	properties := []ImportedProperty{{Code: "B", Property: "parent", Value: "A"}}

	_, err := imp.Import(context.Background(), adminRequest(concepts, properties))
	require.NoError(t, err)

	first := db.data.clone()

	_, err = imp.Import(context.Background(), adminRequest(concepts, properties))
	require.NoError(t, err)

	assert.Equal(t, first, db.data)
}

// Re-importing a concept with a new display refreshes it in place.
func TestImportRefreshesDisplay(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A", Display: "old"}}, nil))
	require.NoError(t, err)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	firstID := codingA.id

	_, err = imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A", Display: "new"}}, nil))
	require.NoError(t, err)

	codingA = db.data.codings[codingKey{system: cs.ID, code: "A"}]
	assert.Equal(t, firstID, codingA.id)
	assert.Equal(t, "new", codingA.display.String)
}

// S5: a declared attribute property stores its value with no target.
func TestImportDeclaredAttributeProperty(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("",
		codesystem.PropertyDefinition{Code: "severity", Type: "string"})
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}},
		[]ImportedProperty{{Code: "A", Property: "severity", Value: "high"}},
	))
	require.NoError(t, err)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	severityDef := db.data.properties[codingKey{system: cs.ID, code: "severity"}]
	require.NotNil(t, severityDef)
	assert.Equal(t, "string", severityDef.typ)

	row := db.data.codingProps[codingPropKey{
		coding:   codingA.id,
		property: severityDef.id,
		value:    "high",
	}]
	require.NotNil(t, row)
	assert.False(t, row.target.Valid)
}

// A declared relationship property (type "code") resolves its target even
// when the code system names it something other than "parent".
func TestImportDeclaredRelationshipProperty(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("",
		codesystem.PropertyDefinition{Code: "part-of", Type: "code", URI: "http://ex/props#part-of"})
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}, {Code: "B"}},
		[]ImportedProperty{{Code: "B", Property: "part-of", Value: "A"}},
	))
	require.NoError(t, err)

	codingA := db.data.codings[codingKey{system: cs.ID, code: "A"}]
	codingB := db.data.codings[codingKey{system: cs.ID, code: "B"}]
	def := db.data.properties[codingKey{system: cs.ID, code: "part-of"}]
	require.NotNil(t, def)
	assert.Equal(t, "http://ex/props#part-of", def.uri.String)

	row := db.data.codingProps[codingPropKey{
		coding:   codingB.id,
		property: def.id,
		value:    "A",
	}]
	require.NotNil(t, row)
	require.True(t, row.target.Valid)
	assert.Equal(t, codingA.id, row.target.Int64)
}

// Invariant 4: hierarchyMeaning designates the implicit hierarchy property;
// the literal "parent" only applies when hierarchyMeaning is unset.
func TestImportImplicitParentRules(t *testing.T) {
	tests := []struct {
		name             string
		hierarchyMeaning string
		property         string
		wantKind         Kind
	}{
		{"parent with unset hierarchyMeaning", "", "parent", ""},
		{"hierarchyMeaning code", "isa", "isa", ""},
		{"parent rejected when hierarchyMeaning set", "isa", "parent", KindUnknownProperty},
		{"undeclared code", "", "severity", KindUnknownProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newFakeDB()
			cs := newTestCodeSystem(tt.hierarchyMeaning)
			imp := newTestImporter(t, db, cs)

			_, err := imp.Import(context.Background(), adminRequest(
				[]Concept{{Code: "A"}, {Code: "B"}},
				[]ImportedProperty{{Code: "B", Property: tt.property, Value: "A"}},
			))

			if tt.wantKind != "" {
				require.Error(t, err)
				outcome := AsOutcome(err)
				assert.Equal(t, tt.wantKind, outcome.Kind)
				assert.Equal(t, "Unknown property: "+tt.property, outcome.Diagnostics)

				// Failed batches leave nothing behind
				assert.Empty(t, db.data.codings)
				return
			}

			require.NoError(t, err)

			def := db.data.properties[codingKey{system: cs.ID, code: tt.property}]
			require.NotNil(t, def)
			assert.Equal(t, ImplicitParentURI, def.uri.String)
			assert.Equal(t, RelationshipType, def.typ)
		})
	}
}

// Invariant 5: repeated imports naming the same property code share one
// definition row.
func TestImportUniquePropertyDefinitions(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}, {Code: "B"}},
		[]ImportedProperty{{Code: "B", Property: "parent", Value: "A"}},
	))
	require.NoError(t, err)

	_, err = imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "C"}},
		[]ImportedProperty{{Code: "C", Property: "parent", Value: "A"}},
	))
	require.NoError(t, err)

	count := 0
	for key := range db.data.properties {
		if key.code == "parent" {
			count++
		}
	}

	assert.Equal(t, 1, count)
}

// Invariant 2: any mid-batch failure leaves no partial rows committed.
func TestImportAtomicityOnWriteFailure(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	db.failOn["InsertCodingProperty"] = errBoom
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}, {Code: "B"}},
		[]ImportedProperty{{Code: "B", Property: "parent", Value: "A"}},
	))
	require.Error(t, err)
	assert.Equal(t, KindStorageFailure, AsOutcome(err).Kind)

	assert.Empty(t, db.data.codings)
	assert.Empty(t, db.data.properties)
	assert.Empty(t, db.data.codingProps)
}

func TestImportAtomicityOnCommitFailure(t *testing.T) {
	db := newFakeDB()
	db.commitErr = errBoom
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}}, nil))
	require.Error(t, err)
	assert.Equal(t, KindStorageFailure, AsOutcome(err).Kind)
	assert.Empty(t, db.data.codings)
}

func TestImportRequiresElevatedPrincipal(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	req := adminRequest([]Concept{{Code: "A"}}, nil)
	req.Principal = Principal{ID: "user"}

	_, err := imp.Import(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, KindAuthorizationFailure, AsOutcome(err).Kind)
	assert.Empty(t, db.data.codings)
}

func TestImportCodeSystemNotFound(t *testing.T) {
	db := newFakeDB()
	imp := newTestImporter(t, db) // no systems registered

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}}, nil))
	require.Error(t, err)

	outcome := AsOutcome(err)
	assert.Equal(t, KindCodeSystemNotFound, outcome.Kind)
	assert.Equal(t, "CodeSystem not found: http://ex/cs", outcome.Diagnostics)
}

func TestImportAmbiguousCodeSystem(t *testing.T) {
	db := newFakeDB()
	imp := newTestImporter(t, db, newTestCodeSystem(""), newTestCodeSystem(""))

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A"}}, nil))
	require.Error(t, err)
	assert.Equal(t, KindAmbiguousCodeSystem, AsOutcome(err).Kind)
}

func TestImportNilRequest(t *testing.T) {
	db := newFakeDB()
	imp := newTestImporter(t, db, newTestCodeSystem(""))

	_, err := imp.Import(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, AsOutcome(err).Kind)
}

func TestImportBatchSizeBound(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	concepts := make([]Concept, MaxImportBatch+1)
	for i := range concepts {
		concepts[i] = Concept{Code: "c"}
	}

	_, err := imp.Import(context.Background(), adminRequest(concepts, nil))
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, AsOutcome(err).Kind)
	assert.Empty(t, db.data.codings)
}

// Duplicate entries within one batch collapse by upsert.
func TestImportDuplicatesWithinBatch(t *testing.T) {
	db := newFakeDB()
	cs := newTestCodeSystem("")
	imp := newTestImporter(t, db, cs)

	_, err := imp.Import(context.Background(), adminRequest(
		[]Concept{{Code: "A", Display: "one"}, {Code: "A", Display: "two"}},
		[]ImportedProperty{
			{Code: "A", Property: "parent", Value: "A"},
			{Code: "A", Property: "parent", Value: "A"},
		},
	))
	require.NoError(t, err)

	assert.Len(t, db.data.codings, 1)
	assert.Len(t, db.data.codingProps, 1)
	assert.Equal(t, "two", db.data.codings[codingKey{system: cs.ID, code: "A"}].display.String)
}
