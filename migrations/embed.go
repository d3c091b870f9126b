// Package migrations embeds the PostgreSQL schema files applied by
// "dfu-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
