// Package migrations embeds the SQL schema migrations so the binary and
// tests apply the same files without depending on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
