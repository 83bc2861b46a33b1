package claimdb

type migration struct {
	id   int
	name string
	sql  string
}

var migrations = []migration{
	{
		id:   1,
		name: "initial_schema",
		sql: `
			CREATE TABLE meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
			INSERT INTO meta (key, value) VALUES ('schema_version', '1');

			CREATE TABLE claims (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				owner TEXT NOT NULL,
				allow_block_break INTEGER NOT NULL DEFAULT 0,
				allow_block_interact INTEGER NOT NULL DEFAULT 0,
				allow_entity_interact TEXT NOT NULL DEFAULT 'false',
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_claims_owner ON claims(owner);

			CREATE TABLE claim_chunks (
				claim_id INTEGER NOT NULL,
				world TEXT NOT NULL,
				chunk_key INTEGER NOT NULL,
				UNIQUE (world, chunk_key),
				FOREIGN KEY (claim_id) REFERENCES claims(id) ON DELETE CASCADE
			);
			CREATE INDEX idx_claim_chunks_claim ON claim_chunks(claim_id);

			CREATE TABLE trusted_players (
				claim_id INTEGER NOT NULL,
				player TEXT NOT NULL,
				kind TEXT NOT NULL,
				PRIMARY KEY (claim_id, player),
				FOREIGN KEY (claim_id) REFERENCES claims(id) ON DELETE CASCADE
			);
		`,
	},
	{
		id:   2,
		name: "players",
		sql: `
			CREATE TABLE players (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				first_seen DATETIME NOT NULL,
				last_seen DATETIME NOT NULL,
				playtime_ms INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX idx_players_name ON players(name COLLATE NOCASE);
		`,
	},
}
