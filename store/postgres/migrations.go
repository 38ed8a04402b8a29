package postgres

// migration is one forward-only schema step. {{table}} is replaced with
// the schema-qualified records table.
type migration struct {
	Version string
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: "20260101000001",
		Name:    "create_entitle_records",
		SQL: `
CREATE TABLE IF NOT EXISTS {{table}} (
    client_key          TEXT PRIMARY KEY,
    packs               JSONB NOT NULL DEFAULT '[]',
    subscription_active BOOLEAN NOT NULL DEFAULT FALSE,
    bundle              BOOLEAN NOT NULL DEFAULT FALSE,
    last_updated        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		Version: "20260101000002",
		Name:    "index_entitle_records_last_updated",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_entitle_records_last_updated ON {{table}} (last_updated);`,
	},
}
