package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"taskhive/api/internal/store"
	"taskhive/api/internal/util"
)

// Items are private to their owner; every operation is scoped to the calling
// user, so another user's item behaves exactly like a missing one.

func itemNotFound(itemID string) *DomainError {
	return domainError(http.StatusNotFound, "ITEM_NOT_FOUND",
		fmt.Sprintf("Item with id %s not found", itemID), nil)
}

func validateItemName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 100 {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Item name must be between 2 and 100 characters", nil)
	}
	return name, nil
}

func validateItemDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len(description) > 500 {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Item description must be at most 500 characters", nil)
	}
	return description, nil
}

func (s *Service) CreateItem(ctx context.Context, session Session, name, description string) (map[string]any, error) {
	name, err := validateItemName(name)
	if err != nil {
		return nil, err
	}
	description, err = validateItemDescription(description)
	if err != nil {
		return nil, err
	}

	item := store.Item{
		ID:          util.NewID("itm"),
		Name:        name,
		Description: description,
		UserID:      session.UserID,
	}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}

	created, err := s.store.GetItemForOwner(ctx, item.ID, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	return itemPayload(created), nil
}

func (s *Service) GetItem(ctx context.Context, session Session, itemID string) (map[string]any, error) {
	item, err := s.store.GetItemForOwner(ctx, itemID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, itemNotFound(itemID)
		}
		return nil, fmt.Errorf("load item: %w", err)
	}
	return itemPayload(item), nil
}

func (s *Service) ListItems(ctx context.Context, session Session, nameFilter string) (map[string]any, error) {
	items, err := s.store.ListItemsForOwner(ctx, session.UserID, strings.TrimSpace(nameFilter))
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, itemPayload(item))
	}
	return map[string]any{"items": payloads, "count": len(items)}, nil
}

// UpdateItem applies a partial update; absent fields keep their value.
func (s *Service) UpdateItem(ctx context.Context, session Session, itemID string, update store.ItemUpdate) (map[string]any, error) {
	item, err := s.store.GetItemForOwner(ctx, itemID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, itemNotFound(itemID)
		}
		return nil, fmt.Errorf("load item: %w", err)
	}

	if update.Name != nil {
		if item.Name, err = validateItemName(*update.Name); err != nil {
			return nil, err
		}
	}
	if update.Description != nil {
		if item.Description, err = validateItemDescription(*update.Description); err != nil {
			return nil, err
		}
	}
	if update.IsDone != nil {
		item.IsDone = *update.IsDone
	}

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	updated, err := s.store.GetItemForOwner(ctx, itemID, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("reload item: %w", err)
	}
	return itemPayload(updated), nil
}

func (s *Service) DeleteItem(ctx context.Context, session Session, itemID string) error {
	deleted, err := s.store.DeleteItemForOwner(ctx, itemID, session.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return itemNotFound(itemID)
	}
	return nil
}
