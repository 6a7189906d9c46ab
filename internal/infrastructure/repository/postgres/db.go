package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// sqlstateForeignKeyViolation is SQLSTATE 23503, raised when an insert
// references a row that does not exist.
const sqlstateForeignKeyViolation = "23503"

func violatesForeignKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateForeignKeyViolation
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables. Bootstrap DDL is serialized across
// api/worker startups with an advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	deal_code TEXT UNIQUE,
	address_line1 TEXT,
	address_line2 TEXT,
	city TEXT,
	state TEXT,
	postal_code TEXT,
	purchase_price NUMERIC(14,2) CHECK (purchase_price >= 0),
	currency CHAR(3),
	financing TEXT NOT NULL,
	appraisal TEXT NOT NULL,
	earnest_money_amount NUMERIC(14,2) CHECK (earnest_money_amount >= 0),
	earnest_money_due_days INTEGER CHECK (earnest_money_due_days >= 0),
	earnest_money_holder_name TEXT,
	binding_agreement_date DATE,
	closing_date DATE,
	form_name TEXT,
	form_version TEXT,
	special_stipulations JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS parties (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	full_name TEXT NOT NULL,
	firm TEXT,
	license_no TEXT,
	email TEXT,
	phone TEXT,
	address TEXT
);

CREATE INDEX IF NOT EXISTS idx_parties_transaction ON parties(transaction_id);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	transaction_id TEXT REFERENCES transactions(id) ON DELETE CASCADE,
	doc_type TEXT NOT NULL,
	storage_ref TEXT,
	content_hash TEXT,
	page_count INTEGER NOT NULL DEFAULT 0,
	received_via TEXT,
	esign_envelope_id TEXT,
	esign_status TEXT,
	version_no INTEGER NOT NULL DEFAULT 1,
	supersedes_document_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_transaction ON documents(transaction_id);
CREATE INDEX IF NOT EXISTS idx_documents_supersedes ON documents(supersedes_document_id);

CREATE TABLE IF NOT EXISTS doc_fields (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page INTEGER NOT NULL DEFAULT 0,
	field_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	text_value TEXT,
	numeric_value NUMERIC,
	date_value DATE,
	confidence DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1)
);

CREATE INDEX IF NOT EXISTS idx_doc_fields_document ON doc_fields(document_id);
CREATE INDEX IF NOT EXISTS idx_doc_fields_name ON doc_fields(field_name);

CREATE TABLE IF NOT EXISTS check_definitions (
	key TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	severity TEXT NOT NULL,
	hitl BOOLEAN NOT NULL DEFAULT FALSE,
	resolver_hint TEXT
);

CREATE TABLE IF NOT EXISTS rule_packs (
	code TEXT PRIMARY KEY,
	title TEXT
);

CREATE TABLE IF NOT EXISTS rule_pack_checks (
	pack_code TEXT NOT NULL REFERENCES rule_packs(code) ON DELETE CASCADE,
	check_key TEXT NOT NULL REFERENCES check_definitions(key) ON DELETE CASCADE,
	weight NUMERIC(6,2) NOT NULL DEFAULT 1,
	PRIMARY KEY (pack_code, check_key)
);

CREATE TABLE IF NOT EXISTS check_results (
	seq BIGSERIAL PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
	document_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
	check_key TEXT NOT NULL REFERENCES check_definitions(key),
	status TEXT NOT NULL,
	severity TEXT NOT NULL,
	hitl BOOLEAN NOT NULL DEFAULT FALSE,
	details JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_check_results_latest
	ON check_results(transaction_id, check_key, created_at DESC, seq DESC);

CREATE TABLE IF NOT EXISTS transaction_status (
	transaction_id TEXT PRIMARY KEY REFERENCES transactions(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
