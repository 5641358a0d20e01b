// Package database provides the SQLite connection that backs the config
// entry store.
//
// Files are opened with foreign keys enabled and, by default, WAL
// journaling so the HTTP API can read while the supervisor writes. The
// database file is created with 0600 permissions because entries hold
// account passwords.
//
// Schema changes live as paired .up.sql/.down.sql files in the
// migrations package and are applied at startup:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default.
package database
