package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matzehuels/ogloc/pkg/integrations"
)

// Stub is a deterministic in-memory RemoteSource.
type Stub struct {
	// Delay is waited (honouring ctx) before every answer.
	Delay time.Duration
	// Err, when set, is returned by every lookup.
	Err error

	mu      sync.RWMutex
	records map[string]*RemoteRecord
	latest  map[string]string
	calls   atomic.Int64
}

// NewStub creates an empty Stub.
func NewStub() *Stub {
	return &Stub{
		records: make(map[string]*RemoteRecord),
		latest:  make(map[string]string),
	}
}

// Add registers rec. The most recently added version of a crate is the one
// returned for latest lookups.
func (s *Stub) Add(rec RemoteRecord) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.records[rec.Name+"@"+rec.Version] = &r
	s.latest[rec.Name] = rec.Version
	return s
}

// Calls returns the number of lookups made.
func (s *Stub) Calls() int64 { return s.calls.Load() }

// Lookup implements RemoteSource.
func (s *Stub) Lookup(ctx context.Context, name, version string) (*RemoteRecord, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if version == "" {
		v, ok := s.latest[name]
		if !ok {
			return nil, integrations.ErrNotFound
		}
		version = v
	}
	rec, ok := s.records[name+"@"+version]
	if !ok {
		return nil, integrations.ErrNotFound
	}
	out := *rec
	out.Owners = append([]Owner(nil), rec.Owners...)
	return &out, nil
}
