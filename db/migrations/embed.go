// Package dbmigrations exposes embedded SQL migrations for gateway binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into gateway binaries.
//
//go:embed *.sql
var Files embed.FS
