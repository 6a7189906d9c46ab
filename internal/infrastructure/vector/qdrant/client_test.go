package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks := []domain.DocumentChunk{
		{DocumentID: "doc-1", ChunkIndex: 0, Content: "earnest money receipt", Embedding: []float32{0.1, 0.2}},
		{DocumentID: "doc-1", ChunkIndex: 1, Content: "closing date clause", Embedding: []float32{0.3, 0.4}},
	}

	if err := client.IndexChunks(context.Background(), "tx-1", chunks); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), "tx-1", chunks); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestIndexChunksCarriesTransactionAndLengthPayload(t *testing.T) {
	var captured struct {
		Points []struct {
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode upsert body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	err := client.IndexChunks(context.Background(), "tx-42", []domain.DocumentChunk{
		{DocumentID: "doc-9", ChunkIndex: 3, Content: "special stipulation", Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if len(captured.Points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(captured.Points))
	}
	p := captured.Points[0].Payload
	if p["transaction_id"] != "tx-42" || p["document_id"] != "doc-9" {
		t.Fatalf("unexpected identity payload: %v", p)
	}
	if int(p["content_len"].(float64)) != len("special stipulation") {
		t.Fatalf("expected content_len payload, got %v", p["content_len"])
	}
}

func TestSearchSendsLengthAndTransactionFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search" {
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Errorf("decode search body: %v", err)
			}
			_, _ = w.Write([]byte(`{"result":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.Search(context.Background(), []float32{1, 0}, 5, 20, domain.ChunkFilter{TransactionID: "tx-1"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	filter, _ := captured["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected range + match clauses, got %v", captured["filter"])
	}
	body, _ := json.Marshal(captured["filter"])
	for _, want := range []string{`"content_len"`, `"gte":20`, `"transaction_id"`, `"value":"tx-1"`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("filter missing %s: %s", want, body)
		}
	}
}

func TestSearchReordersScoreTies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.90,"payload":{"document_id":"doc-b","chunk_index":2,"content":"tie later chunk index"}},
			{"score":0.90,"payload":{"document_id":"doc-b","chunk_index":1,"content":"tie earlier chunk index"}},
			{"score":0.90,"payload":{"document_id":"doc-a","chunk_index":1,"content":"tie smaller document id"}},
			{"score":0.99,"payload":{"document_id":"doc-c","chunk_index":7,"content":"closest match of them all"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	got, err := client.Search(context.Background(), []float32{1, 0}, 10, 1, domain.ChunkFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	wantOrder := []struct {
		docID string
		index int
	}{
		{"doc-c", 7},
		{"doc-a", 1},
		{"doc-b", 1},
		{"doc-b", 2},
	}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d results, got %d", len(wantOrder), len(got))
	}
	for i, want := range wantOrder {
		if got[i].DocumentID != want.docID || got[i].ChunkIndex != want.index {
			t.Fatalf("result %d = (%s,%d), want (%s,%d)",
				i, got[i].DocumentID, got[i].ChunkIndex, want.docID, want.index)
		}
	}
}

func TestSearchDropsShortContentFromOlderCollections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.95,"payload":{"document_id":"doc-a","chunk_index":0,"content":"ok"}},
			{"score":0.90,"payload":{"document_id":"doc-b","chunk_index":0,"content":"long enough to survive the filter"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	got, err := client.Search(context.Background(), []float32{1, 0}, 10, 10, domain.ChunkFilter{})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].DocumentID != "doc-b" {
		t.Fatalf("expected only the long chunk, got %v", got)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/chunks" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	err := client.IndexChunks(context.Background(), "tx-1", []domain.DocumentChunk{
		{DocumentID: "doc-1", Content: "a", Embedding: []float32{0.1, 0.2}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
