// Package migrations embeds the SQL files applied by `cds-dashboard migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
