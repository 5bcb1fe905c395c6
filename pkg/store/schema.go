package store

// Schema is the DDL for the server-side Postgres store. device_counters
// backs the per-device vector clock: each committed version is stamped
// with the counter value it advanced the writing device to, which is
// what Since() compares against a caller's vector clock.
const Schema = `
CREATE TABLE IF NOT EXISTS entity_versions (
	id                TEXT NOT NULL,
	version           TEXT NOT NULL,
	entity_type       TEXT NOT NULL,
	name              TEXT NOT NULL,
	content_json      JSONB NOT NULL DEFAULT '{}',
	source_type       TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	parent_versions_json JSONB NOT NULL DEFAULT '[]',
	origin_device     TEXT NOT NULL,
	device_seq        BIGINT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (id, version)
);
CREATE INDEX IF NOT EXISTS idx_entity_versions_id ON entity_versions (id);
CREATE INDEX IF NOT EXISTS idx_entity_versions_device_seq ON entity_versions (origin_device, device_seq);

CREATE TABLE IF NOT EXISTS relationships (
	id             TEXT PRIMARY KEY,
	from_id        TEXT NOT NULL,
	from_version   TEXT NOT NULL,
	to_id          TEXT NOT NULL,
	to_version     TEXT NOT NULL,
	type           TEXT NOT NULL,
	properties_json JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships (from_id, from_version);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships (to_id, to_version);

CREATE TABLE IF NOT EXISTS device_counters (
	device_id TEXT PRIMARY KEY,
	counter   BIGINT NOT NULL DEFAULT 0
);
`
