package sqlite

// migration is one forward-only schema step, recorded by version in
// entitle_migrations once applied.
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
CREATE TABLE IF NOT EXISTS entitle_records (
    client_key          TEXT PRIMARY KEY,
    packs               TEXT NOT NULL DEFAULT '[]',
    subscription_active INTEGER NOT NULL DEFAULT 0,
    bundle              INTEGER NOT NULL DEFAULT 0,
    last_updated        TEXT NOT NULL
);
`,
	},
	{
		Version: "20260101000002",
		Name:    "index_entitle_records_last_updated",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_entitle_records_last_updated ON entitle_records (last_updated);`,
	},
}
