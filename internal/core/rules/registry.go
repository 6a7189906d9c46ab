package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/closedesk/closedesk-backend/internal/core/domain"
)

// Snapshot is the immutable input to one check evaluation: the transaction,
// its parties, its documents and every extracted field across them, all read
// at the same point in time. Evaluators must not mutate it.
type Snapshot struct {
	Transaction domain.Transaction
	Parties     []domain.Party
	Documents   []domain.Document
	Fields      []domain.DocField
	Now         time.Time
}

// HasField reports whether any document in the snapshot carries a field
// with the given name.
func (s *Snapshot) HasField(name string) bool {
	for i := range s.Fields {
		if s.Fields[i].FieldName == name {
			return true
		}
	}
	return false
}

// FieldOnDocTypes reports whether a field with the given name exists on a
// document of one of the given types, and returns the owning document id.
func (s *Snapshot) FieldOnDocTypes(name string, types ...domain.DocType) (string, bool) {
	byID := make(map[string]domain.DocType, len(s.Documents))
	for i := range s.Documents {
		byID[s.Documents[i].ID] = s.Documents[i].DocType
	}
	for i := range s.Fields {
		if s.Fields[i].FieldName != name {
			continue
		}
		dt, ok := byID[s.Fields[i].DocumentID]
		if !ok {
			continue
		}
		for _, want := range types {
			if dt == want {
				return s.Fields[i].DocumentID, true
			}
		}
	}
	return "", false
}

// Outcome is what an evaluator decides. Details are required whenever the
// status is not pass.
type Outcome struct {
	Status     domain.CheckStatus
	Details    map[string]any
	DocumentID string
}

// Evaluator is one compliance check, a pure function of the snapshot.
type Evaluator interface {
	Key() string
	Evaluate(s *Snapshot) Outcome
}

// Registry maps check keys to evaluators. It is populated at process start
// from the rule catalog; dispatch is lookup by key, never a branching list.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

func (r *Registry) Register(e Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.Key()
	if key == "" {
		return fmt.Errorf("register evaluator: empty key")
	}
	if _, exists := r.evaluators[key]; exists {
		return fmt.Errorf("register evaluator: duplicate key %q", key)
	}
	r.evaluators[key] = e
	return nil
}

func (r *Registry) Lookup(key string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[key]
	return e, ok
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.evaluators))
	for k := range r.evaluators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuiltIn returns the evaluators shipped with the engine.
func BuiltIn() []Evaluator {
	return []Evaluator{
		&EMDTimeline{},
		&CashProofLetter{},
		&AppraisalMarked{},
		&EsignAuditTrail{},
	}
}

// NewBuiltInRegistry is a registry pre-populated with the built-in checks.
func NewBuiltInRegistry() *Registry {
	reg := NewRegistry()
	for _, e := range BuiltIn() {
		// Built-in keys are distinct constants; Register cannot fail here.
		_ = reg.Register(e)
	}
	return reg
}
