// Package migrations embeds the SQL schema so the worker binary can bootstrap
// its own record store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
