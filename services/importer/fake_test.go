package importer

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rohitjsoftype/terminology-api/backends/db/termsql"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
)

// fakeDB is an in-memory stand-in for the Postgres backend with real
// transaction semantics: Begin snapshots the data, Commit publishes the
// snapshot, Rollback discards it. Ids come from a shared sequence that, like
// a database sequence, does not roll back.
type fakeDB struct {
	data   *fakeData
	nextID int64

	beginErr  error
	commitErr error
	failOn    map[string]error
}

type codingKey struct {
	system uuid.UUID
	code   string
}

type codingRow struct {
	id      int64
	display sql.NullString
}

type propertyRow struct {
	id          int64
	typ         string
	uri         sql.NullString
	description sql.NullString
}

type codingPropKey struct {
	coding   int64
	property int64
	value    string
}

type codingPropRow struct {
	target sql.NullInt64
}

type fakeData struct {
	codings     map[codingKey]*codingRow
	properties  map[codingKey]*propertyRow
	codingProps map[codingPropKey]*codingPropRow
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		data:   newFakeData(),
		failOn: make(map[string]error),
	}
}

func newFakeData() *fakeData {
	return &fakeData{
		codings:     make(map[codingKey]*codingRow),
		properties:  make(map[codingKey]*propertyRow),
		codingProps: make(map[codingPropKey]*codingPropRow),
	}
}

func (d *fakeData) clone() *fakeData {
	out := newFakeData()

	for k, v := range d.codings {
		row := *v
		out.codings[k] = &row
	}

	for k, v := range d.properties {
		row := *v
		out.properties[k] = &row
	}

	for k, v := range d.codingProps {
		row := *v
		out.codingProps[k] = &row
	}

	return out
}

func (f *fakeDB) Begin(ctx context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}

	return &fakeTx{db: f, data: f.data.clone()}, nil
}

func (f *fakeDB) allocID() int64 {
	f.nextID++
	return f.nextID
}

type fakeTx struct {
	db   *fakeDB
	data *fakeData
}

func (t *fakeTx) Commit() error {
	if t.db.commitErr != nil {
		return t.db.commitErr
	}

	t.db.data = t.data
	return nil
}

func (t *fakeTx) Rollback() error {
	return nil
}

func (t *fakeTx) UpsertCoding(ctx context.Context, arg termsql.UpsertCodingParams) (int64, error) {
	if err := t.db.failOn["UpsertCoding"]; err != nil {
		return 0, err
	}

	key := codingKey{system: arg.System, code: arg.Code}

	if row, ok := t.data.codings[key]; ok {
		row.display = arg.Display
		return row.id, nil
	}

	id := t.db.allocID()
	t.data.codings[key] = &codingRow{id: id, display: arg.Display}

	return id, nil
}

func (t *fakeTx) GetCodingID(ctx context.Context, arg termsql.GetCodingIDParams) (int64, error) {
	if err := t.db.failOn["GetCodingID"]; err != nil {
		return 0, err
	}

	if row, ok := t.data.codings[codingKey{system: arg.System, code: arg.Code}]; ok {
		return row.id, nil
	}

	return 0, sql.ErrNoRows
}

func (t *fakeTx) GetCodeSystemProperty(ctx context.Context, arg termsql.GetCodeSystemPropertyParams) (termsql.CodeSystemProperty, error) {
	if err := t.db.failOn["GetCodeSystemProperty"]; err != nil {
		return termsql.CodeSystemProperty{}, err
	}

	if row, ok := t.data.properties[codingKey{system: arg.System, code: arg.Code}]; ok {
		return termsql.CodeSystemProperty{
			ID:          row.id,
			System:      arg.System,
			Code:        arg.Code,
			Type:        row.typ,
			Uri:         row.uri,
			Description: row.description,
		}, nil
	}

	return termsql.CodeSystemProperty{}, sql.ErrNoRows
}

func (t *fakeTx) InsertCodeSystemProperty(ctx context.Context, arg termsql.InsertCodeSystemPropertyParams) (int64, error) {
	if err := t.db.failOn["InsertCodeSystemProperty"]; err != nil {
		return 0, err
	}

	key := codingKey{system: arg.System, code: arg.Code}

	// Conflicting inserts are discarded and yield no row.
	if _, ok := t.data.properties[key]; ok {
		return 0, sql.ErrNoRows
	}

	id := t.db.allocID()
	t.data.properties[key] = &propertyRow{
		id:          id,
		typ:         arg.Type,
		uri:         arg.Uri,
		description: arg.Description,
	}

	return id, nil
}

func (t *fakeTx) InsertCodingProperty(ctx context.Context, arg termsql.InsertCodingPropertyParams) error {
	if err := t.db.failOn["InsertCodingProperty"]; err != nil {
		return err
	}

	key := codingPropKey{coding: arg.Coding, property: arg.Property, value: arg.Value}

	if _, ok := t.data.codingProps[key]; ok {
		return nil
	}

	t.data.codingProps[key] = &codingPropRow{target: arg.Target}

	return nil
}

// fakeCodeSystems is an in-memory resource store.
type fakeCodeSystems struct {
	systems map[string][]*codesystem.CodeSystem
	err     error
}

func (f *fakeCodeSystems) FindByURL(ctx context.Context, url string) (*codesystem.CodeSystem, error) {
	if f.err != nil {
		return nil, f.err
	}

	matches := f.systems[url]

	switch len(matches) {
	case 0:
		return nil, codesystem.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, codesystem.ErrAmbiguous
	}
}

var errBoom = errors.New("boom")
