// SPDX-License-Identifier: MIT

package store

// Schema for the archive database. Mirrors of the crawl graph: websites own
// runs, pages and assets; link tables record the page network, the asset
// network and not-yet-classified external targets; raw tables hold content
// snapshots and offline copy paths.
const schema = `
CREATE TABLE IF NOT EXISTS websites (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	base_url TEXT NOT NULL UNIQUE,
	profile  TEXT NOT NULL,
	created  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated  TIMESTAMP,
	inactive CHAR(1) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	profile    TEXT NOT NULL,
	started    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    TIMESTAMP,
	finished   TIMESTAMP,
	pages      INTEGER NOT NULL DEFAULT 0,
	assets     INTEGER NOT NULL DEFAULT 0,
	failures   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	url        TEXT NOT NULL,
	created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    TIMESTAMP,
	inactive   CHAR(1) NOT NULL DEFAULT '',
	UNIQUE(website_id, url)
);

CREATE TABLE IF NOT EXISTS assets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	url        TEXT NOT NULL,
	media_type TEXT NOT NULL DEFAULT 'unknown',
	created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    TIMESTAMP,
	inactive   CHAR(1) NOT NULL DEFAULT '',
	UNIQUE(website_id, url)
);

CREATE TABLE IF NOT EXISTS page_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	followed   INTEGER NOT NULL DEFAULT 0,
	created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    TIMESTAMP,
	UNIQUE(website_id, source_url, target_url)
);

CREATE TABLE IF NOT EXISTS asset_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    TIMESTAMP,
	UNIQUE(website_id, source_url, target_url)
);

CREATE TABLE IF NOT EXISTS external_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	website_id INTEGER NOT NULL REFERENCES websites(id),
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	created    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(website_id, source_url, target_url)
);

CREATE TABLE IF NOT EXISTS raw_pages (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	page_id  INTEGER NOT NULL REFERENCES pages(id),
	raw      BLOB,
	path     TEXT,
	created  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated  TIMESTAMP
);

CREATE TABLE IF NOT EXISTS raw_assets (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id  INTEGER NOT NULL REFERENCES assets(id),
	raw       BLOB,
	encoding  TEXT,
	extension TEXT,
	path      TEXT,
	created   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated   TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pages_website ON pages(website_id);
CREATE INDEX IF NOT EXISTS idx_assets_website ON assets(website_id);
CREATE INDEX IF NOT EXISTS idx_page_links_website ON page_links(website_id);
CREATE INDEX IF NOT EXISTS idx_external_links_website ON external_links(website_id);
CREATE INDEX IF NOT EXISTS idx_raw_pages_page ON raw_pages(page_id);
CREATE INDEX IF NOT EXISTS idx_raw_assets_asset ON raw_assets(asset_id);
`
