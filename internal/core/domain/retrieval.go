package domain

// RetrievedChunk is one ranked hit from the vector index. Similarity is
// 1 - cosine distance, so an exact embedding match scores 1.0.
type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ChunkFilter narrows a search to one transaction's documents.
type ChunkFilter struct {
	TransactionID string
}
