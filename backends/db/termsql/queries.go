package termsql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/rohitjsoftype/terminology-api/backends/db/sqlbuilder"
)

var (
	listCodeSystemsByURL = sqlbuilder.MustBuild(
		sqlbuilder.Select("code_system",
			"id", "url", "version", "name", "title", "status", "content",
			"hierarchy_meaning", "property", "created_at", "updated_at").
			Where("url"))

	upsertCoding = sqlbuilder.MustBuild(
		sqlbuilder.Insert("coding", "system", "code", "display").
			MergeOnConflict("system", "code").
			Returning("id"))

	getCodingID = sqlbuilder.MustBuild(
		sqlbuilder.Select("coding", "id").
			Where("system", "code"))

	getCodeSystemProperty = sqlbuilder.MustBuild(
		sqlbuilder.Select("code_system_property",
			"id", "system", "code", "type", "uri", "description").
			Where("system", "code"))

	insertCodeSystemProperty = sqlbuilder.MustBuild(
		sqlbuilder.Insert("code_system_property",
			"system", "code", "type", "uri", "description").
			IgnoreOnConflict().
			Returning("id"))

	insertCodingProperty = sqlbuilder.MustBuild(
		sqlbuilder.Insert("coding_property",
			"coding", "property", "value", "target").
			IgnoreOnConflict())
)

// ListCodeSystemsByURL returns every code_system row matching the canonical
// URL. Callers decide how to treat zero or multiple matches.
func (q *Queries) ListCodeSystemsByURL(ctx context.Context, url string) ([]CodeSystem, error) {
	rows, err := q.db.QueryContext(ctx, listCodeSystemsByURL, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CodeSystem

	for rows.Next() {
		var cs CodeSystem

		if err := rows.Scan(&cs.ID, &cs.Url, &cs.Version, &cs.Name, &cs.Title,
			&cs.Status, &cs.Content, &cs.HierarchyMeaning, &cs.Property,
			&cs.CreatedAt, &cs.UpdatedAt); err != nil {
			return nil, err
		}

		items = append(items, cs)
	}

	return items, rows.Err()
}

type UpsertCodingParams struct {
	System  uuid.UUID
	Code    string
	Display sql.NullString
}

// UpsertCoding inserts a coding or, when (system, code) already exists,
// refreshes its display. Returns the row id either way.
func (q *Queries) UpsertCoding(ctx context.Context, arg UpsertCodingParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, upsertCoding, arg.System, arg.Code, arg.Display).Scan(&id)
	return id, err
}

type GetCodingIDParams struct {
	System uuid.UUID
	Code   string
}

// GetCodingID returns the row id of a coding, or sql.ErrNoRows.
func (q *Queries) GetCodingID(ctx context.Context, arg GetCodingIDParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getCodingID, arg.System, arg.Code).Scan(&id)
	return id, err
}

type GetCodeSystemPropertyParams struct {
	System uuid.UUID
	Code   string
}

// GetCodeSystemProperty returns the property definition for (system, code),
// or sql.ErrNoRows.
func (q *Queries) GetCodeSystemProperty(ctx context.Context, arg GetCodeSystemPropertyParams) (CodeSystemProperty, error) {
	var p CodeSystemProperty

	err := q.db.QueryRowContext(ctx, getCodeSystemProperty, arg.System, arg.Code).
		Scan(&p.ID, &p.System, &p.Code, &p.Type, &p.Uri, &p.Description)

	return p, err
}

type InsertCodeSystemPropertyParams struct {
	System      uuid.UUID
	Code        string
	Type        string
	Uri         sql.NullString
	Description sql.NullString
}

// InsertCodeSystemProperty inserts a property definition and returns the
// generated id. When a concurrent importer already created (system, code),
// the insert is discarded and sql.ErrNoRows is returned; callers re-read.
func (q *Queries) InsertCodeSystemProperty(ctx context.Context, arg InsertCodeSystemPropertyParams) (int64, error) {
	var id int64

	err := q.db.QueryRowContext(ctx, insertCodeSystemProperty,
		arg.System, arg.Code, arg.Type, arg.Uri, arg.Description).Scan(&id)

	return id, err
}

type InsertCodingPropertyParams struct {
	Coding   int64
	Property int64
	Value    string
	Target   sql.NullInt64
}

// InsertCodingProperty attaches a property value to a coding. Re-inserting an
// existing (coding, property, value) is a silent no-op.
func (q *Queries) InsertCodingProperty(ctx context.Context, arg InsertCodingPropertyParams) error {
	_, err := q.db.ExecContext(ctx, insertCodingProperty,
		arg.Coding, arg.Property, arg.Value, arg.Target)
	return err
}
