package archive

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/netchess/internal/record"
	"github.com/park285/netchess/pkg/protocol"
)

// MemoryStore keeps records for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]protocol.GameRecord
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{recs: make(map[string]protocol.GameRecord)} }

func (m *MemoryStore) Save(_ context.Context, rec protocol.GameRecord) (bool, error) {
	name := record.SanitizeName(rec.Name)
	if name == "" {
		return false, ErrBadName
	}
	rec.Name = name
	rec.Moves = append([]string{}, rec.Moves...)
	rec.SAN = append([]string{}, rec.SAN...)
	m.mu.Lock()
	m.recs[name] = rec
	m.mu.Unlock()
	return true, nil
}

func (m *MemoryStore) Load(_ context.Context, name string) (protocol.GameRecord, error) {
	key := record.SanitizeName(name)
	m.mu.RLock()
	rec, ok := m.recs[key]
	m.mu.RUnlock()
	if !ok {
		return protocol.GameRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context) ([]protocol.SaveSummary, error) {
	m.mu.RLock()
	out := make([]protocol.SaveSummary, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, record.Summary(rec))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavedAt.Equal(out[j].SavedAt) {
			return strings.Compare(out[i].Name, out[j].Name) < 0
		}
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}
