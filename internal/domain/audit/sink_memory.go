package audit

import (
	"context"
	"sync"

	"github.com/ehr/clinicalmerge/pkg/pagination"
)

type memorySink struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemorySink keeps the trail in process memory.
func NewMemorySink() Sink {
	return &memorySink{}
}

func (s *memorySink) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevSeq, prevHash := int64(0), GenesisHash
	if n := len(s.entries); n > 0 {
		prevSeq, prevHash = s.entries[n-1].Sequence, s.entries[n-1].Hash
	}
	Seal(e, prevSeq, prevHash)
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memorySink) List(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*Entry, 0)
	for _, e := range s.entries {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.BatchID != "" && e.Targets[TargetBatch] != f.BatchID {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	start, end := pagination.Window(len(matched), limit, offset)
	return matched[start:end], len(matched), nil
}

func (s *memorySink) Walk(_ context.Context, fn func(*Entry) error) error {
	s.mu.RLock()
	snapshot := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		snapshot[i] = *e
	}
	s.mu.RUnlock()
	for i := range snapshot {
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}
