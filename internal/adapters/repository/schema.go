package repository

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name   string
	schema []string

	upsertCategory string
	upsertEntry    string
	incrementEntry string
	insertAlias    string
	// insertion order column for entries and aliases
	seq string

	// claimLocksRows selects the daily rows FOR UPDATE inside a transaction
	// before checking the day. Otherwise claim is a single guarded UPDATE.
	claimLocksRows bool
}

const claimGuarded = `UPDATE categories SET has_been_selected = 1, played_on = ?
	WHERE id = ? AND is_daily = 1
	AND NOT EXISTS (SELECT 1 FROM categories c WHERE c.is_daily = 1 AND c.played_on >= ? AND c.played_on < ?)`

var sqliteDialect = dialect{
	name: "sqlite",
	seq:  "rowid",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id                    TEXT PRIMARY KEY,
			slug                  TEXT NOT NULL UNIQUE,
			name                  TEXT NOT NULL DEFAULT '',
			base_query            TEXT NOT NULL DEFAULT '',
			update_query_template TEXT NOT NULL DEFAULT '',
			is_dynamic            INTEGER NOT NULL DEFAULT 0,
			is_daily              INTEGER NOT NULL DEFAULT 0,
			has_been_selected     INTEGER NOT NULL DEFAULT 0,
			played_on             INTEGER,
			tags                  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			category_id TEXT NOT NULL,
			label       TEXT NOT NULL,
			norm        TEXT NOT NULL,
			url         TEXT NOT NULL,
			tally_count INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			UNIQUE (category_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_category ON entries (category_id)`,
		`CREATE TABLE IF NOT EXISTS aliases (
			id          TEXT PRIMARY KEY,
			entry_id    TEXT NOT NULL,
			category_id TEXT NOT NULL,
			label       TEXT NOT NULL,
			norm        TEXT NOT NULL,
			UNIQUE (entry_id, norm)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aliases_category ON aliases (category_id)`,
	},
	upsertCategory: `INSERT INTO categories
		(id, slug, name, base_query, update_query_template, is_dynamic, is_daily, has_been_selected, played_on, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			base_query = excluded.base_query,
			update_query_template = excluded.update_query_template,
			is_dynamic = excluded.is_dynamic,
			is_daily = excluded.is_daily,
			tags = excluded.tags`,
	upsertEntry: `INSERT INTO entries (id, category_id, label, norm, url, tally_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category_id, url) DO UPDATE SET
			label = excluded.label,
			norm = excluded.norm,
			updated_at = excluded.updated_at`,
	incrementEntry: `INSERT INTO entries (id, category_id, label, norm, url, tally_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(category_id, url) DO UPDATE SET
			tally_count = entries.tally_count + excluded.tally_count,
			updated_at = excluded.updated_at`,
	insertAlias: `INSERT INTO aliases (id, entry_id, category_id, label, norm)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id, norm) DO NOTHING`,
}

var mysqlDialect = dialect{
	name: "mysql",
	seq:  "seq",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id                    VARCHAR(64) NOT NULL PRIMARY KEY,
			slug                  VARCHAR(191) NOT NULL,
			name                  VARCHAR(255) NOT NULL DEFAULT '',
			base_query            TEXT NOT NULL,
			update_query_template TEXT NOT NULL,
			is_dynamic            TINYINT(1) NOT NULL DEFAULT 0,
			is_daily              TINYINT(1) NOT NULL DEFAULT 0,
			has_been_selected     TINYINT(1) NOT NULL DEFAULT 0,
			played_on             BIGINT NULL,
			tags                  VARCHAR(1024) NOT NULL DEFAULT '',
			UNIQUE KEY uq_categories_slug (slug),
			KEY idx_categories_daily (is_daily, played_on)
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS entries (
			id          VARCHAR(64) NOT NULL PRIMARY KEY,
			seq         BIGINT NOT NULL AUTO_INCREMENT,
			category_id VARCHAR(64) NOT NULL,
			label       VARCHAR(512) NOT NULL,
			norm        VARCHAR(512) NOT NULL,
			url         VARCHAR(191) NOT NULL,
			tally_count BIGINT NOT NULL DEFAULT 0,
			created_at  BIGINT NOT NULL,
			updated_at  BIGINT NOT NULL,
			UNIQUE KEY uq_entries_category_url (category_id, url),
			KEY idx_entries_seq (seq),
			KEY idx_entries_category (category_id)
		) CHARACTER SET utf8mb4`,
		`CREATE TABLE IF NOT EXISTS aliases (
			id          VARCHAR(64) NOT NULL PRIMARY KEY,
			seq         BIGINT NOT NULL AUTO_INCREMENT,
			entry_id    VARCHAR(64) NOT NULL,
			category_id VARCHAR(64) NOT NULL,
			label       VARCHAR(512) NOT NULL,
			norm        VARCHAR(191) NOT NULL,
			UNIQUE KEY uq_aliases_entry_norm (entry_id, norm),
			KEY idx_aliases_seq (seq),
			KEY idx_aliases_category (category_id)
		) CHARACTER SET utf8mb4`,
	},
	upsertCategory: `INSERT INTO categories
		(id, slug, name, base_query, update_query_template, is_dynamic, is_daily, has_been_selected, played_on, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			base_query = VALUES(base_query),
			update_query_template = VALUES(update_query_template),
			is_dynamic = VALUES(is_dynamic),
			is_daily = VALUES(is_daily),
			tags = VALUES(tags)`,
	upsertEntry: `INSERT INTO entries (id, category_id, label, norm, url, tally_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			label = VALUES(label),
			norm = VALUES(norm),
			updated_at = VALUES(updated_at)`,
	incrementEntry: `INSERT INTO entries (id, category_id, label, norm, url, tally_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			tally_count = tally_count + VALUES(tally_count),
			updated_at = VALUES(updated_at)`,
	insertAlias: `INSERT INTO aliases (id, entry_id, category_id, label, norm)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`,
	claimLocksRows: true,
}
