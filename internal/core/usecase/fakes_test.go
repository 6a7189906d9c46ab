package usecase

import (
	"context"
	"sync"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

type fakeTxRepo struct {
	tx      *domain.Transaction
	parties []domain.Party
	err     error
}

func (f *fakeTxRepo) Create(context.Context, *domain.Transaction) error { return nil }
func (f *fakeTxRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.tx == nil || f.tx.ID != id {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *f.tx
	return &cp, nil
}
func (f *fakeTxRepo) AddParty(context.Context, *domain.Party) error { return nil }
func (f *fakeTxRepo) ListParties(context.Context, string) ([]domain.Party, error) {
	return f.parties, nil
}

type fakeDocRepo struct {
	docs   []domain.Document
	fields []domain.DocField
	err    error
}

func (f *fakeDocRepo) Create(context.Context, *domain.Document) error { return nil }
func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	for i := range f.docs {
		if f.docs[i].ID == id {
			cp := f.docs[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrDocumentNotFound
}
func (f *fakeDocRepo) ListByTransaction(context.Context, string) ([]domain.Document, error) {
	return f.docs, f.err
}
func (f *fakeDocRepo) HeadOfChain(_ context.Context, id string) (*domain.Document, error) {
	return f.GetByID(context.Background(), id)
}
func (f *fakeDocRepo) AddField(context.Context, *domain.DocField) error { return nil }
func (f *fakeDocRepo) ListFieldsByTransaction(context.Context, string) ([]domain.DocField, error) {
	return f.fields, nil
}

type fakeCatalog struct {
	defs map[string]domain.CheckDefinition
	pack []domain.CheckDefinition
	err  error
}

func (f *fakeCatalog) GetCheck(_ context.Context, key string) (*domain.CheckDefinition, error) {
	if f.err != nil {
		return nil, f.err
	}
	def, ok := f.defs[key]
	if !ok {
		return nil, domain.ErrCheckNotFound
	}
	return &def, nil
}
func (f *fakeCatalog) ListPackChecks(context.Context, string) ([]domain.CheckDefinition, error) {
	return f.pack, f.err
}
func (f *fakeCatalog) SeedCatalog(context.Context, []domain.CheckDefinition, []domain.RulePack) error {
	return nil
}

type fakeResults struct {
	mu        sync.Mutex
	appended  []domain.CheckResult
	latest    []domain.CheckResult
	appendErr error
	latestErr error
}

func (f *fakeResults) Append(_ context.Context, r *domain.CheckResult) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Seq = int64(len(f.appended) + 1)
	f.appended = append(f.appended, *r)
	return nil
}

func (f *fakeResults) LatestPerCheck(context.Context, string) ([]domain.CheckResult, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest, nil
}

func (f *fakeResults) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakeStatus struct {
	mu       sync.Mutex
	rows     map[string]domain.LifecycleStatus
	casCalls int
	casFails int
	casErr   error
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{rows: make(map[string]domain.LifecycleStatus)}
}

func (f *fakeStatus) Get(_ context.Context, id string) (*domain.TransactionStatusRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &domain.TransactionStatusRow{TransactionID: id, Status: status}, nil
}

func (f *fakeStatus) Init(_ context.Context, id string, status domain.LifecycleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		f.rows[id] = status
	}
	return nil
}

func (f *fakeStatus) CompareAndSet(_ context.Context, id string, prev, next domain.LifecycleStatus) (bool, error) {
	if f.casErr != nil {
		return false, f.casErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casCalls++
	if f.casFails > 0 {
		f.casFails--
		return false, nil
	}
	if f.rows[id] != prev {
		return false, nil
	}
	f.rows[id] = next
	return true, nil
}

type fakeVectors struct {
	indexed      []domain.DocumentChunk
	indexedTxID  string
	searchResult []domain.RetrievedChunk
	searchErr    error
	gotTopK      int
	gotMinLen    int
}

func (f *fakeVectors) IndexChunks(_ context.Context, transactionID string, chunks []domain.DocumentChunk) error {
	f.indexedTxID = transactionID
	f.indexed = append(f.indexed, chunks...)
	return nil
}

func (f *fakeVectors) Search(_ context.Context, _ []float32, topK, minContentLength int, _ domain.ChunkFilter) ([]domain.RetrievedChunk, error) {
	f.gotTopK = topK
	f.gotMinLen = minContentLength
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}
