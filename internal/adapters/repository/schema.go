package repository

const dayLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT    NOT NULL UNIQUE,
	email         TEXT    UNIQUE,
	password_hash TEXT    NOT NULL,
	role          TEXT    NOT NULL DEFAULT 'user',
	position      INTEGER NOT NULL DEFAULT 999,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token      TEXT    PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cells (
	sheet      TEXT    NOT NULL,
	username   TEXT    NOT NULL,
	field      TEXT    NOT NULL,
	value      REAL    NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (sheet, username, field)
);

CREATE TABLE IF NOT EXISTS weekly_archive (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT    NOT NULL,
	sheet      TEXT    NOT NULL,
	week_start TEXT    NOT NULL,
	week_end   TEXT    NOT NULL,
	total      REAL    NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_sales (
	day      TEXT NOT NULL,
	sheet    TEXT NOT NULL,
	username TEXT NOT NULL,
	value    REAL NOT NULL,
	PRIMARY KEY (day, sheet, username)
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_weekly_archive_sheet ON weekly_archive(sheet, created_at);
`
