// Package migrations embeds the worker schema migration files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
