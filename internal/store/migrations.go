package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	version    INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_documents_owner
	ON documents(collection, json_extract(data, '$.ownerId'));

CREATE INDEX IF NOT EXISTS idx_documents_legacy_owner
	ON documents(collection, json_extract(data, '$.userId'));

CREATE INDEX IF NOT EXISTS idx_documents_deadline
	ON documents(collection, json_extract(data, '$.deadline'));

CREATE INDEX IF NOT EXISTS idx_documents_target_user
	ON documents(collection, json_extract(data, '$.targetUserId'));

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
