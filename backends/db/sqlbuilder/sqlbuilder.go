// Package sqlbuilder composes the small set of parameterized statements the
// terminology tables need. Builders are immutable values; each method returns
// a modified copy and Build is the single consumption point. Values are never
// interpolated into statement text - every value binds to a $n placeholder
// and identifiers are quoted independently of parameter numbering.
package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type conflictPolicy int

const (
	conflictNone conflictPolicy = iota

	// conflictMerge updates the non-key columns on unique-key collision.
	conflictMerge

	// conflictIgnore discards the insert silently on collision.
	conflictIgnore
)

// InsertBuilder builds a parameterized INSERT statement.
type InsertBuilder struct {
	table     string
	columns   []string
	policy    conflictPolicy
	keys      []string
	returning string
}

// Insert starts an INSERT over the given table and value columns. One $n
// placeholder is emitted per column, in order.
func Insert(table string, columns ...string) InsertBuilder {
	return InsertBuilder{table: table, columns: columns}
}

// MergeOnConflict makes the INSERT update all non-key columns to the incoming
// values when a row matching the key columns already exists.
func (b InsertBuilder) MergeOnConflict(keys ...string) InsertBuilder {
	b.policy = conflictMerge
	b.keys = keys
	return b
}

// IgnoreOnConflict makes the INSERT a silent no-op on any unique-constraint
// violation.
func (b InsertBuilder) IgnoreOnConflict() InsertBuilder {
	b.policy = conflictIgnore
	return b
}

// Returning makes the INSERT emit the given column of the inserted row.
// Combined with IgnoreOnConflict, a conflicting insert returns zero rows.
func (b InsertBuilder) Returning(column string) InsertBuilder {
	b.returning = column
	return b
}

// Build renders the statement. The number of bind parameters equals the
// number of value columns passed to Insert.
func (b InsertBuilder) Build() (string, error) {
	if b.table == "" {
		return "", errors.New("table cannot be empty")
	}

	if len(b.columns) == 0 {
		return "", errors.New("insert requires at least one column")
	}

	quotedTable, err := quoteIdent(b.table)
	if err != nil {
		return "", err
	}

	quotedCols, err := quoteIdents(b.columns)
	if err != nil {
		return "", err
	}

	placeholders := make([]string, len(b.columns))
	for i := range b.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var sb strings.Builder

	sb.WriteString("INSERT INTO ")
	sb.WriteString(quotedTable)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quotedCols, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")

	switch b.policy {
	case conflictMerge:
		clause, err := b.mergeClause()
		if err != nil {
			return "", err
		}

		sb.WriteString(clause)
	case conflictIgnore:
		sb.WriteString(" ON CONFLICT DO NOTHING")
	}

	if b.returning != "" {
		quoted, err := quoteIdent(b.returning)
		if err != nil {
			return "", err
		}

		sb.WriteString(" RETURNING ")
		sb.WriteString(quoted)
	}

	return sb.String(), nil
}

func (b InsertBuilder) mergeClause() (string, error) {
	if len(b.keys) == 0 {
		return "", errors.New("merge requires at least one key column")
	}

	keySet := make(map[string]bool, len(b.keys))
	for _, k := range b.keys {
		keySet[k] = true
	}

	quotedKeys, err := quoteIdents(b.keys)
	if err != nil {
		return "", err
	}

	var updates []string

	for _, col := range b.columns {
		if keySet[col] {
			continue
		}

		quoted, err := quoteIdent(col)
		if err != nil {
			return "", err
		}

		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}

	if len(updates) == 0 {
		return "", errors.New("merge requires at least one non-key column")
	}

	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(quotedKeys, ", "),
		strings.Join(updates, ", ")), nil
}

// SelectBuilder builds a parameterized SELECT statement over equality
// predicates.
type SelectBuilder struct {
	table   string
	columns []string
	where   []string
}

// Select starts a SELECT of the given columns from the table.
func Select(table string, columns ...string) SelectBuilder {
	return SelectBuilder{table: table, columns: columns}
}

// Where adds equality predicates, one $n placeholder per column, ANDed in
// order after any previously added predicates.
func (b SelectBuilder) Where(columns ...string) SelectBuilder {
	b.where = append(b.where[:len(b.where):len(b.where)], columns...)
	return b
}

// Build renders the statement. The number of bind parameters equals the
// number of Where columns.
func (b SelectBuilder) Build() (string, error) {
	if b.table == "" {
		return "", errors.New("table cannot be empty")
	}

	if len(b.columns) == 0 {
		return "", errors.New("select requires at least one column")
	}

	quotedTable, err := quoteIdent(b.table)
	if err != nil {
		return "", err
	}

	quotedCols, err := quoteIdents(b.columns)
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quotedCols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quotedTable)

	for i, col := range b.where {
		quoted, err := quoteIdent(col)
		if err != nil {
			return "", err
		}

		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		sb.WriteString(fmt.Sprintf("%s = $%d", quoted, i+1))
	}

	return sb.String(), nil
}

// MustBuild is for package-level statement construction where a malformed
// builder is a programming error.
func MustBuild(b interface{ Build() (string, error) }) string {
	stmt, err := b.Build()
	if err != nil {
		panic(err)
	}

	return stmt
}

func quoteIdent(ident string) (string, error) {
	if ident == "" {
		return "", errors.New("identifier cannot be empty")
	}

	if strings.ContainsAny(ident, "\"\x00") {
		return "", errors.Errorf("invalid identifier: %q", ident)
	}

	return `"` + ident + `"`, nil
}

func quoteIdents(idents []string) ([]string, error) {
	quoted := make([]string, 0, len(idents))

	for _, ident := range idents {
		q, err := quoteIdent(ident)
		if err != nil {
			return nil, err
		}

		quoted = append(quoted, q)
	}

	return quoted, nil
}
