package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/models"
	"github.com/SAP-F-2025/vendor-assessment-service/internal/repositories"
)

const selectionPrefix = "selection:"

func selectionKey(tenantID, vendorID string) string {
	return fmt.Sprintf("%s%s:%s", selectionPrefix, tenantID, vendorID)
}

// SelectionRedis stores pending selections with a Redis TTL equal to the
// selection's remaining lifetime.
type SelectionRedis struct {
	client *redis.Client
	now    func() time.Time
}

func NewSelectionRedis(client *redis.Client) repositories.PendingSelectionRepository {
	return &SelectionRedis{client: client, now: time.Now}
}

func (s *SelectionRedis) Save(ctx context.Context, selection *models.PendingSelection) error {
	ttl := selection.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("pending selection for vendor %s already expired", selection.VendorID)
	}

	data, err := json.Marshal(selection)
	if err != nil {
		return fmt.Errorf("failed to encode pending selection: %w", err)
	}

	if err := s.client.Set(ctx, selectionKey(selection.TenantID, selection.VendorID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending selection: %w", err)
	}
	return nil
}

func (s *SelectionRedis) Get(ctx context.Context, tenantID, vendorID string) (*models.PendingSelection, error) {
	data, err := s.client.Get(ctx, selectionKey(tenantID, vendorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load pending selection: %w", err)
	}

	var selection models.PendingSelection
	if err := json.Unmarshal(data, &selection); err != nil {
		return nil, fmt.Errorf("failed to decode pending selection: %w", err)
	}

	// Redis expiry has millisecond precision; trust the stored deadline.
	if selection.Expired(s.now()) {
		return nil, repositories.ErrNotFound
	}
	return &selection, nil
}

func (s *SelectionRedis) Delete(ctx context.Context, tenantID, vendorID string) error {
	if err := s.client.Del(ctx, selectionKey(tenantID, vendorID)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending selection: %w", err)
	}
	return nil
}
