// Package db embeds the database schema applied at service start.
package db

import _ "embed"

// Schema contains the DDL for the restriction configuration, usage ledger,
// and host-store view tables.
//
//go:embed migrations/001_schema.sql
var Schema string
