// Package memory implements storage.EmissionStore in process memory
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Store implements storage.EmissionStore
type Store struct {
	mu        sync.RWMutex
	records   map[string]*storage.EmissionRecord
	artifacts map[string][]byte
	now       func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		records:   make(map[string]*storage.EmissionRecord),
		artifacts: make(map[string][]byte),
		now:       time.Now,
	}
}

func key(companyID, accessKey string) string {
	return companyID + "/" + accessKey
}

func (s *Store) Create(_ context.Context, rec *storage.EmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.CompanyID, rec.AccessKey)
	if _, ok := s.records[k]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicate, k)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.records[k] = rec.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, companyID, accessKey string) (*storage.EmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[key(companyID, accessKey)].Clone(), nil
}

func (s *Store) Transition(_ context.Context, companyID, accessKey string, change storage.Change) (*storage.EmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(companyID, accessKey)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key(companyID, accessKey))
	}
	rec.Apply(&change, s.now())
	return rec.Clone(), nil
}

func (s *Store) ListPending(_ context.Context, statuses []storage.Status, updatedBefore time.Time, limit int) ([]*storage.EmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[storage.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*storage.EmissionRecord
	for _, rec := range s.records {
		if want[rec.Status] && rec.UpdatedAt.Before(updatedBefore) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) StoreArtifact(_ context.Context, companyID, accessKey string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(companyID, accessKey)
	if _, ok := s.records[k]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, k)
	}
	s.artifacts[k] = append([]byte(nil), data...)
	return nil
}

func (s *Store) GetArtifact(_ context.Context, companyID, accessKey string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[key(companyID, accessKey)]
	if !ok {
		return nil, storage.ErrArtifactNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error { return nil }
