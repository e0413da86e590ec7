package database

// AccountSchema backs the account service: balances, account identities and
// the idempotent saga outcome records.
const AccountSchema = `
CREATE TABLE IF NOT EXISTS balances (
	account_no   TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	account_type TEXT NOT NULL,
	amount       BIGINT NOT NULL,
	credit_limit BIGINT NOT NULL,
	version      INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id           TEXT PRIMARY KEY,
	account_no   TEXT NOT NULL,
	account_type TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS account_creation_records (
	request_id   TEXT PRIMARY KEY,
	account_no   TEXT NOT NULL DEFAULT '',
	token        TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT '',
	reason       TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transfer_records (
	request_id TEXT PRIMARY KEY,
	reason     TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
`

// TransactionSchema backs the transaction service: user sessions and the
// append-only history built from balance_changed events.
const TransactionSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	account_no    TEXT NOT NULL DEFAULT '',
	account_type  TEXT NOT NULL DEFAULT 'Basic',
	token         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	account_no   TEXT NOT NULL,
	new_balance  BIGINT NOT NULL,
	changed_by   BIGINT NOT NULL,
	account_type TEXT NOT NULL DEFAULT '',
	from_to      TEXT NOT NULL,
	direction    TEXT NOT NULL,
	description  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_no ON transactions (account_no);
`
