// Package migrations embeds the blob store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
