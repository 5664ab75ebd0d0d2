package sqlite

// Table definitions. The UNIQUE constraint on blobs.path is what makes
// UpsertByPath replace the previous job record for the same blob.
const (
	createBlobsTable = `
CREATE TABLE IF NOT EXISTS blobs (
	id             TEXT PRIMARY KEY,
	key            TEXT NOT NULL,
	namespace      TEXT NOT NULL,
	filename       TEXT NOT NULL,
	path           TEXT NOT NULL UNIQUE,
	content_type   TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	backup_type    TEXT NOT NULL,
	encoding       TEXT NOT NULL,
	context        TEXT NOT NULL,
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT ''
)`

	createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	first_name      TEXT NOT NULL DEFAULT '',
	last_name       TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	disabled        INTEGER NOT NULL DEFAULT 0,
	hashed_password TEXT NOT NULL
)`
)
