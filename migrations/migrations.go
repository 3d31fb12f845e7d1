// Package migrations embeds BugSpotter's lexically-ordered schema
// migration files so the server binary carries its own schema and never
// depends on a migrations directory existing on disk at runtime.
package migrations

import "embed"

// FS holds every *.sql file in this directory, embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
