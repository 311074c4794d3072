package ledger

import _ "embed"

// Schema is the PostgreSQL DDL for every table the service owns.
//
//go:embed schema.sql
var Schema string
