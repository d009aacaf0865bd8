// Package migrations embeds the auth store's SQL migrations into the binary.
//
// Pass FS to database.DB.Migrate; the .sql files sit at its root.
package migrations

import "embed"

// FS holds every YYYYMMDD_HHMMSS_name.{up,down}.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
