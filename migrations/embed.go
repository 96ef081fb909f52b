// Package migrations embeds the SQL schema migrations into the binary so the
// service can migrate its journal without the files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
