package termsql

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CodeSystem is a row of the code_system table. The import engine treats
// these rows as read-only; they are owned by the resource layer.
type CodeSystem struct {
	ID               uuid.UUID
	Url              string
	Version          sql.NullString
	Name             sql.NullString
	Title            sql.NullString
	Status           sql.NullString
	Content          sql.NullString
	HierarchyMeaning sql.NullString
	Property         json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Coding is a single concept of a code system. (system, code) is unique.
type Coding struct {
	ID      int64
	System  uuid.UUID
	Code    string
	Display sql.NullString
}

// CodeSystemProperty is a property definition local to a code system.
// (system, code) is unique.
type CodeSystemProperty struct {
	ID          int64
	System      uuid.UUID
	Code        string
	Type        string
	Uri         sql.NullString
	Description sql.NullString
}

// CodingProperty is a property value attached to one coding. Target is set
// only for relationship properties whose value resolved to a coding in the
// same system. (coding, property, value) is unique.
type CodingProperty struct {
	ID       int64
	Coding   int64
	Property int64
	Value    string
	Target   sql.NullInt64
}
