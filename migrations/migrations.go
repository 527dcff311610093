// Package migrations embeds the SQL schema applied by pkg/database.
package migrations

import "embed"

// FS holds every goose migration shipped with the binary.
//
//go:embed *.sql
var FS embed.FS
