package app

import (
	"net/http"
	"testing"
)

func createItem(t *testing.T, handler http.Handler, token, name string) string {
	t.Helper()
	status, payload := doRequest(t, handler, http.MethodPost, "/api/v1/items", token, map[string]any{
		"name": name,
	})
	if status != http.StatusCreated {
		t.Fatalf("create item %s: status %d, body %v", name, status, payload)
	}
	itemID, _ := payload["id"].(string)
	if itemID == "" {
		t.Fatalf("missing item id: %v", payload)
	}
	return itemID
}

func TestItemLifecycle(t *testing.T) {
	_, handler := newTestHandler(t)
	userID, token := registerAndLogin(t, handler, "avery", "avery@example.com")
	itemID := createItem(t, handler, token, "Write release notes")

	status, payload := doRequest(t, handler, http.MethodGet, "/api/v1/items/"+itemID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("get: status %d, body %v", status, payload)
	}
	if payload["user_id"] != userID {
		t.Fatalf("expected owner %s, got %v", userID, payload)
	}
	if done, _ := payload["is_done"].(bool); done {
		t.Fatalf("new items start undone: %v", payload)
	}

	// Partial update: only is_done changes.
	status, payload = doRequest(t, handler, http.MethodPatch, "/api/v1/items/"+itemID, token, map[string]any{
		"is_done": true,
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d, body %v", status, payload)
	}
	if done, _ := payload["is_done"].(bool); !done {
		t.Fatalf("is_done not updated: %v", payload)
	}
	if payload["name"] != "Write release notes" {
		t.Fatalf("name must survive a partial update: %v", payload)
	}

	if status, _ = doRequest(t, handler, http.MethodDelete, "/api/v1/items/"+itemID, token, nil); status != http.StatusOK {
		t.Fatalf("delete: status %d", status)
	}

	status, payload = doRequest(t, handler, http.MethodGet, "/api/v1/items/"+itemID, token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("get deleted: status %d, body %v", status, payload)
	}
	wantCode(t, payload, "ITEM_NOT_FOUND")
}

func TestItemsArePrivate(t *testing.T) {
	_, handler := newTestHandler(t)
	_, tokenA := registerAndLogin(t, handler, "avery", "avery@example.com")
	_, tokenB := registerAndLogin(t, handler, "blake", "blake@example.com")
	itemID := createItem(t, handler, tokenA, "Write release notes")

	status, payload := doRequest(t, handler, http.MethodGet, "/api/v1/items/"+itemID, tokenB, nil)
	if status != http.StatusNotFound {
		t.Fatalf("foreign get: status %d, body %v", status, payload)
	}
	wantCode(t, payload, "ITEM_NOT_FOUND")

	status, payload = doRequest(t, handler, http.MethodPatch, "/api/v1/items/"+itemID, tokenB, map[string]any{"name": "Hijacked item"})
	if status != http.StatusNotFound {
		t.Fatalf("foreign update: status %d, body %v", status, payload)
	}

	status, payload = doRequest(t, handler, http.MethodDelete, "/api/v1/items/"+itemID, tokenB, nil)
	if status != http.StatusNotFound {
		t.Fatalf("foreign delete: status %d, body %v", status, payload)
	}

	// Owner still sees it untouched.
	status, payload = doRequest(t, handler, http.MethodGet, "/api/v1/items/"+itemID, tokenA, nil)
	if status != http.StatusOK || payload["name"] != "Write release notes" {
		t.Fatalf("owner get after foreign attempts: status %d, body %v", status, payload)
	}
}

func TestListItemsWithFilter(t *testing.T) {
	_, handler := newTestHandler(t)
	_, token := registerAndLogin(t, handler, "avery", "avery@example.com")
	createItem(t, handler, token, "Write release notes")
	createItem(t, handler, token, "Review pull requests")

	status, payload := doRequest(t, handler, http.MethodGet, "/api/v1/items", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d, body %v", status, payload)
	}
	if count, _ := payload["count"].(float64); count != 2 {
		t.Fatalf("expected 2 items, got %v", payload)
	}

	status, payload = doRequest(t, handler, http.MethodGet, "/api/v1/items?q=review", token, nil)
	if status != http.StatusOK {
		t.Fatalf("filtered list: status %d, body %v", status, payload)
	}
	if count, _ := payload["count"].(float64); count != 1 {
		t.Fatalf("expected 1 item, got %v", payload)
	}
}

func TestItemValidation(t *testing.T) {
	_, handler := newTestHandler(t)
	_, token := registerAndLogin(t, handler, "avery", "avery@example.com")

	status, payload := doRequest(t, handler, http.MethodPost, "/api/v1/items", token, map[string]any{
		"name": "x",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status %d, body %v", status, payload)
	}
	wantCode(t, payload, "VALIDATION_ERROR")
}
