// Package migrations embeds the schema for the sqlite session store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
