package redisstore

import (
	"context"
	"sync"
	"time"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

// SelectionMemory is the single-instance fallback when REDIS_URL is unset.
type SelectionMemory struct {
	mu         sync.Mutex
	selections map[string]models.PendingSelection
	now        func() time.Time
}

func NewSelectionMemory() repositories.PendingSelectionRepository {
	return &SelectionMemory{
		selections: make(map[string]models.PendingSelection),
		now:        time.Now,
	}
}

func (s *SelectionMemory) Save(ctx context.Context, selection *models.PendingSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[selectionKey(selection.TenantID, selection.VendorID)] = *selection
	return nil
}

func (s *SelectionMemory) Get(ctx context.Context, tenantID, vendorID string) (*models.PendingSelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := selectionKey(tenantID, vendorID)
	selection, ok := s.selections[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if selection.Expired(s.now()) {
		delete(s.selections, key)
		return nil, repositories.ErrNotFound
	}
	return &selection, nil
}

func (s *SelectionMemory) Delete(ctx context.Context, tenantID, vendorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, selectionKey(tenantID, vendorID))
	return nil
}
