// Package migrations embeds the entry store's SQL schema migrations so the
// binary carries them without any files on disk.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS is the migration source passed to database.DB.Migrate.
var FS fs.FS = files
