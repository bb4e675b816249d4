// Package migrations embeds the goose migrations that bootstrap the catalog
// tables on a self-hosted Postgres. Hosted backends own their schema and
// never run these.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
