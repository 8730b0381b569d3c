// Package migrations embeds the schema for each supported database driver.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

var (
	// SQLite holds the migrations for the modernc.org/sqlite store.
	SQLite = mustSub("sqlite")
	// Postgres holds the migrations for the pgx backed store.
	Postgres = mustSub("postgres")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
