// Package migrations holds the embedded SQL migrations that are applied by
// the db backend on startup. Each migration lives in its own directory and is
// applied in lexical order.
package migrations

import "embed"

//go:embed */*.sql
var FS embed.FS
