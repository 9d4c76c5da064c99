package store

import (
	"context"
	"sync"
	"time"

	"attestor/internal/attestation/models"
	"attestor/pkg/platform/sentinel"
)

// InMemoryStore keeps identity records in process. Every mutation goes through
// CompareAndSwap so it enforces the same uniqueness and nonce rules as
// PostgresStore.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[models.WalletAddress]models.IdentityRecord
	documents map[string]models.WalletAddress
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[models.WalletAddress]models.IdentityRecord),
		documents: make(map[string]models.WalletAddress),
	}
}

func (s *InMemoryStore) FindByAddress(_ context.Context, addr models.WalletAddress) (*models.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[addr]; ok {
		return &rec, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByDocument(_ context.Context, fingerprint string) (*models.IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.documents[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	rec := s.records[addr]
	return &rec, nil
}

// CompareAndSwap writes record iff the stored nonce for its address equals
// expectedNonce, or no row exists and expectedNonce is zero.
func (s *InMemoryStore) CompareAndSwap(_ context.Context, record *models.IdentityRecord, expectedNonce uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[record.WalletAddress]
	switch {
	case exists && current.Nonce != expectedNonce:
		return sentinel.ErrConflict
	case !exists && expectedNonce != 0:
		return sentinel.ErrConflict
	}

	for _, fp := range record.Documents.All() {
		if owner, ok := s.documents[fp]; ok && owner != record.WalletAddress {
			return sentinel.ErrDuplicate
		}
	}

	if exists {
		for _, fp := range current.Documents.All() {
			delete(s.documents, fp)
		}
	}
	for _, fp := range record.Documents.All() {
		s.documents[fp] = record.WalletAddress
	}
	s.records[record.WalletAddress] = *record
	return nil
}

// Revoke clears the credential of addr while its nonce still equals
// expectedNonce.
func (s *InMemoryStore) Revoke(_ context.Context, addr models.WalletAddress, expectedNonce uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[addr]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Nonce != expectedNonce {
		return sentinel.ErrConflict
	}
	s.records[addr] = *models.Revoked(&current, at)
	return nil
}

// Count returns the number of records.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
