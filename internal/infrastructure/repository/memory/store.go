// Package memory is an in-process tenant store with the same namespacing
// and error semantics as the Postgres implementation. Used for local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pitchlabs/pitchscore/internal/core/domain"
	"github.com/pitchlabs/pitchscore/internal/core/ports"
)

type entry struct {
	value   []byte
	expires time.Time
}

// bucketKey keeps tenant and entity type as separate key parts, so a tenant
// id containing ':' can never alias another tenant's namespace.
type bucketKey struct {
	tenantID   string
	entityType string
}

type Store struct {
	mu   sync.RWMutex
	data map[bucketKey]map[string]entry
}

func NewStore() *Store {
	return &Store{data: make(map[bucketKey]map[string]entry)}
}

func (s *Store) Put(_ context.Context, tenantID, entityType, id string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	stored := append([]byte(nil), value...)

	bucket := bucketKey{tenantID: tenantID, entityType: entityType}
	s.mu.Lock()
	if s.data[bucket] == nil {
		s.data[bucket] = make(map[string]entry)
	}
	s.data[bucket][id] = entry{value: stored, expires: expires}
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, tenantID, entityType, id string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[bucketKey{tenantID: tenantID, entityType: entityType}][id]
	s.mu.RUnlock()

	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return nil, domain.WrapError(domain.ErrNotFound, "memory.get",
			fmt.Errorf("%s:%s:%s", tenantID, entityType, id))
	}
	return append([]byte(nil), e.value...), nil
}

func (s *Store) Delete(_ context.Context, tenantID, entityType, id string) error {
	s.mu.Lock()
	delete(s.data[bucketKey{tenantID: tenantID, entityType: entityType}], id)
	s.mu.Unlock()
	return nil
}

func (s *Store) ScanPrefix(_ context.Context, tenantID, entityType string) ([]ports.StoredEntity, error) {
	now := time.Now()

	s.mu.RLock()
	bucket := s.data[bucketKey{tenantID: tenantID, entityType: entityType}]
	out := make([]ports.StoredEntity, 0, len(bucket))
	for id, e := range bucket {
		if !e.expires.IsZero() && now.After(e.expires) {
			continue
		}
		out = append(out, ports.StoredEntity{
			ID:    id,
			Value: append([]byte(nil), e.value...),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
