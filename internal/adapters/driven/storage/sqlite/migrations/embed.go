// Package migrations holds the versioned schema of the filer database.
// Files are named NNN_name.up.sql and applied in order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
