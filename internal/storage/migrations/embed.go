package migrations

import "embed"

// PostgresFS holds the Postgres schema migrations, applied in lexical order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
