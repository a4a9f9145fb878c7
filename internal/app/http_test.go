package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskhive/api/internal/authpw"
)

func newTestService(t *testing.T) (*memStore, *Service) {
	t.Helper()
	ms := newMemStore()
	passwords := authpw.NewService(ms)
	return ms, New(ms, passwords, []byte("test-secret"), time.Hour, 24*time.Hour)
}

func newTestHandler(t *testing.T) (*memStore, http.Handler) {
	t.Helper()
	ms, svc := newTestService(t)
	return ms, NewHTTPServer(svc, "*").Handler()
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	payload := map[string]any{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response body %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder.Code, payload
}

// registerAndLogin creates an account and returns its id plus a bearer token.
func registerAndLogin(t *testing.T, handler http.Handler, username, email string) (userID, token string) {
	t.Helper()
	status, payload := doRequest(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"username": username,
		"email":    email,
		"password": "password-1",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", username, status, payload)
	}
	userID, _ = payload["id"].(string)

	status, payload = doRequest(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "password-1",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d, body %v", username, status, payload)
	}
	token, _ = payload["access_token"].(string)
	if userID == "" || token == "" {
		t.Fatalf("missing id or token for %s: %v", username, payload)
	}
	return userID, token
}

func createGroup(t *testing.T, handler http.Handler, token, name string) string {
	t.Helper()
	status, payload := doRequest(t, handler, http.MethodPost, "/api/v1/groups", token, map[string]any{
		"name": name,
	})
	if status != http.StatusCreated {
		t.Fatalf("create group %s: status %d, body %v", name, status, payload)
	}
	groupID, _ := payload["id"].(string)
	if groupID == "" {
		t.Fatalf("missing group id: %v", payload)
	}
	return groupID
}

func wantCode(t *testing.T, payload map[string]any, code string) {
	t.Helper()
	if got, _ := payload["code"].(string); got != code {
		t.Fatalf("expected error code %s, got %v", code, payload)
	}
}

func wantMessage(t *testing.T, payload map[string]any, format string, args ...any) {
	t.Helper()
	want := fmt.Sprintf(format, args...)
	if got, _ := payload["message"].(string); got != want {
		t.Fatalf("expected message %q, got %v", want, payload)
	}
}
