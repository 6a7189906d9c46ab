package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// Fact-write endpoints. Each successful write publishes a facts-changed
// event so the worker re-evaluates the transaction; a failed publish is
// logged but does not fail the durable write.

func (rt *Router) createTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = domain.StatusDraft
	}
	if tx.Financing == "" {
		tx.Financing = domain.FinancingUnspecified
	}
	if tx.Appraisal == "" {
		tx.Appraisal = domain.AppraisalUnspecified
	}

	if err := rt.transactions.Create(r.Context(), &tx); err != nil {
		writeError(w, err)
		return
	}
	rt.publishFactsChanged(r, tx.ID)
	writeJSON(w, http.StatusCreated, tx)
}

func (rt *Router) getTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := rt.transactions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (rt *Router) addParty(w http.ResponseWriter, r *http.Request, transactionID string) {
	var party domain.Party
	if err := json.NewDecoder(r.Body).Decode(&party); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if party.ID == "" {
		party.ID = uuid.NewString()
	}
	party.TransactionID = transactionID

	if err := rt.transactions.AddParty(r.Context(), &party); err != nil {
		writeError(w, err)
		return
	}
	rt.publishFactsChanged(r, transactionID)
	writeJSON(w, http.StatusCreated, party)
}

func (rt *Router) createDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var doc domain.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "transaction_id is required"})
		return
	}

	if err := rt.documents.Create(r.Context(), &doc); err != nil {
		writeError(w, err)
		return
	}
	rt.publishFactsChanged(r, doc.TransactionID)
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) addDocField(w http.ResponseWriter, r *http.Request, documentID string) {
	var field domain.DocField
	if err := json.NewDecoder(r.Body).Decode(&field); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if field.ID == "" {
		field.ID = uuid.NewString()
	}
	field.DocumentID = documentID

	doc, err := rt.documents.GetByID(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := rt.documents.AddField(r.Context(), &field); err != nil {
		writeError(w, err)
		return
	}
	rt.publishFactsChanged(r, doc.TransactionID)
	writeJSON(w, http.StatusCreated, field)
}

func (rt *Router) publishFactsChanged(r *http.Request, transactionID string) {
	if rt.bus == nil {
		return
	}
	if err := rt.bus.PublishFactsChanged(r.Context(), transactionID); err != nil {
		slog.Warn("publish facts changed failed",
			"request_id", requestIDFromContext(r.Context()),
			"transaction_id", transactionID,
			"error", err,
		)
	}
}
