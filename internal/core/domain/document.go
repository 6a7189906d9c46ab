package domain

import "time"

type DocType string

const (
	DocPSA        DocType = "psa"
	DocAddendum   DocType = "addendum"
	DocDisclosure DocType = "disclosure"
	DocInspection DocType = "inspection"
	DocAuditTrail DocType = "audit_trail"
	DocOther      DocType = "other"
)

func (d DocType) Valid() bool {
	switch d {
	case DocPSA, DocAddendum, DocDisclosure, DocInspection, DocAuditTrail, DocOther:
		return true
	}
	return false
}

type ReceivedVia string

const (
	ReceivedUpload ReceivedVia = "upload"
	ReceivedEmail  ReceivedVia = "email"
	ReceivedEsign  ReceivedVia = "esign"
	ReceivedOther  ReceivedVia = "other"
)

func (r ReceivedVia) Valid() bool {
	switch r {
	case ReceivedUpload, ReceivedEmail, ReceivedEsign, ReceivedOther, "":
		return true
	}
	return false
}

// Document is a received closing document. SupersedesID forms a version
// chain; a document may only supersede an already-persisted document of
// the same transaction, which keeps the chain acyclic by construction.
type Document struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transaction_id,omitempty"`
	DocType       DocType     `json:"doc_type"`
	StorageRef    string      `json:"storage_ref,omitempty"`
	ContentHash   string      `json:"content_hash,omitempty"`
	PageCount     int         `json:"page_count,omitempty"`
	ReceivedVia   ReceivedVia `json:"received_via,omitempty"`
	EsignEnvelope string      `json:"esign_envelope_id,omitempty"`
	EsignStatus   string      `json:"esign_status,omitempty"`
	VersionNo     int         `json:"version_no"`
	SupersedesID  string      `json:"supersedes_document_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (d *Document) Validate() error {
	if !d.DocType.Valid() {
		return WrapError(ErrInvalidInput, "validate document", errEnum("doc_type", string(d.DocType)))
	}
	if !d.ReceivedVia.Valid() {
		return WrapError(ErrInvalidInput, "validate document", errEnum("received_via", string(d.ReceivedVia)))
	}
	if d.SupersedesID == d.ID && d.ID != "" {
		return WrapError(ErrInvalidInput, "validate document", errEnum("supersedes_document_id", "self"))
	}
	return nil
}

type FieldKind string

const (
	FieldText    FieldKind = "text"
	FieldNumeric FieldKind = "numeric"
	FieldDate    FieldKind = "date"
)

// DocField is one extracted fact owned by a document. The same field name
// may recur across pages.
type DocField struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	Page         int        `json:"page"`
	FieldName    string     `json:"field_name"`
	Kind         FieldKind  `json:"kind"`
	TextValue    string     `json:"text_value,omitempty"`
	NumericValue *float64   `json:"numeric_value,omitempty"`
	DateValue    *time.Time `json:"date_value,omitempty"`
	Confidence   float64    `json:"confidence"`
}

func (f *DocField) Validate() error {
	if f.FieldName == "" {
		return WrapError(ErrInvalidInput, "validate doc field", errRequired("field_name"))
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return WrapError(ErrInvalidInput, "validate doc field", errEnum("confidence", "outside [0,1]"))
	}
	switch f.Kind {
	case FieldText, FieldNumeric, FieldDate:
	default:
		return WrapError(ErrInvalidInput, "validate doc field", errEnum("kind", string(f.Kind)))
	}
	return nil
}

// DocumentChunk is an immutable, content-addressable slice of a document's
// text with its embedding. ChunkIndex orders chunks within a document.
type DocumentChunk struct {
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	Tokens     int       `json:"tokens"`
}
