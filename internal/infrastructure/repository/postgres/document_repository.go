package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create persists a document. When the document supersedes another, the
// target must already exist and belong to the same transaction; pointing
// only at persisted documents keeps every version chain acyclic without a
// read-time traversal guard.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if doc.SupersedesID != "" {
		var prevTx sql.NullString
		var prevVersion int
		err := tx.QueryRowContext(ctx, `
SELECT transaction_id, version_no FROM documents WHERE id = $1
`, doc.SupersedesID).Scan(&prevTx, &prevVersion)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.WrapError(domain.ErrInvalidInput, "create document",
					fmt.Errorf("superseded document %s does not exist", doc.SupersedesID))
			}
			return fmt.Errorf("load superseded document: %w", err)
		}
		if prevTx.String != doc.TransactionID {
			return domain.WrapError(domain.ErrInvalidInput, "create document",
				fmt.Errorf("superseded document belongs to a different transaction"))
		}
		if doc.VersionNo <= prevVersion {
			doc.VersionNo = prevVersion + 1
		}
	}
	if doc.VersionNo <= 0 {
		doc.VersionNo = 1
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (
	id, transaction_id, doc_type, storage_ref, content_hash, page_count,
	received_via, esign_envelope_id, esign_status, version_no,
	supersedes_document_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, nullString(doc.TransactionID), string(doc.DocType), doc.StorageRef,
		doc.ContentHash, doc.PageCount, string(doc.ReceivedVia), doc.EsignEnvelope,
		doc.EsignStatus, doc.VersionNo, nullString(doc.SupersedesID),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		// The supersede target was verified inside this transaction, so a
		// foreign key violation here means the owning transaction is gone.
		if violatesForeignKey(err) {
			return domain.WrapError(domain.ErrTransactionNotFound, "create document",
				fmt.Errorf("transaction %s", doc.TransactionID))
		}
		return fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, documentSelect+` WHERE id = $1`, id), id)
}

// HeadOfChain walks the supersedes chain forward from the given document
// to the version no other document supersedes.
func (r *DocumentRepository) HeadOfChain(ctx context.Context, documentID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
WITH RECURSIVE chain AS (
	SELECT d.* FROM documents d WHERE d.id = $1
	UNION ALL
	SELECT d.* FROM documents d JOIN chain c ON d.supersedes_document_id = c.id
)
SELECT id, transaction_id, doc_type, storage_ref, content_hash, page_count,
	received_via, esign_envelope_id, esign_status, version_no,
	supersedes_document_id, created_at, updated_at
FROM chain
ORDER BY version_no DESC, created_at DESC
LIMIT 1
`, documentID)
	return r.scanOne(row, documentID)
}

func (r *DocumentRepository) ListByTransaction(ctx context.Context, transactionID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, documentSelect+`
 WHERE transaction_id = $1
 ORDER BY created_at, id
`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) AddField(ctx context.Context, f *domain.DocField) error {
	if err := f.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO doc_fields (id, document_id, page, field_name, kind, text_value, numeric_value, date_value, confidence)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, f.ID, f.DocumentID, f.Page, f.FieldName, string(f.Kind), f.TextValue, f.NumericValue, f.DateValue, f.Confidence)
	if err != nil {
		return fmt.Errorf("insert doc field: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListFieldsByTransaction(ctx context.Context, transactionID string) ([]domain.DocField, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT f.id, f.document_id, f.page, f.field_name, f.kind,
	COALESCE(f.text_value,''), f.numeric_value, f.date_value, f.confidence
FROM doc_fields f
JOIN documents d ON d.id = f.document_id
WHERE d.transaction_id = $1
ORDER BY f.document_id, f.page, f.field_name
`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query doc fields: %w", err)
	}
	defer rows.Close()

	var fields []domain.DocField
	for rows.Next() {
		var f domain.DocField
		var kind string
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Page, &f.FieldName, &kind,
			&f.TextValue, &f.NumericValue, &f.DateValue, &f.Confidence); err != nil {
			return nil, fmt.Errorf("scan doc field: %w", err)
		}
		f.Kind = domain.FieldKind(kind)
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate doc fields: %w", err)
	}
	return fields, nil
}

const documentSelect = `
SELECT id, transaction_id, doc_type, storage_ref, content_hash, page_count,
	received_via, esign_envelope_id, esign_status, version_no,
	supersedes_document_id, created_at, updated_at
FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanOne(row rowScanner, id string) (*domain.Document, error) {
	doc, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) scanRow(row rowScanner) (*domain.Document, error) {
	var (
		doc        domain.Document
		txID       sql.NullString
		storageRef sql.NullString
		hash       sql.NullString
		via        sql.NullString
		envelope   sql.NullString
		esignSt    sql.NullString
		supersedes sql.NullString
		docType    string
	)
	err := row.Scan(
		&doc.ID, &txID, &docType, &storageRef, &hash, &doc.PageCount,
		&via, &envelope, &esignSt, &doc.VersionNo,
		&supersedes, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.TransactionID = txID.String
	doc.StorageRef = storageRef.String
	doc.ContentHash = hash.String
	doc.ReceivedVia = domain.ReceivedVia(via.String)
	doc.EsignEnvelope = envelope.String
	doc.EsignStatus = esignSt.String
	doc.SupersedesID = supersedes.String
	doc.DocType = domain.DocType(docType)
	return &doc, nil
}
