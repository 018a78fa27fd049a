// Package migrations embeds the run archive schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
