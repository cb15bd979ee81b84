package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifier_Push(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotAPIKey string
		gotBody   struct {
			Users []struct {
				Username string `json:"username"`
			} `json:"users"`
		}
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(server.URL, "secret-key")
	if err := notifier.Push(context.Background(), []string{"alex", "sam"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("got method %s, want PUT", gotMethod)
	}
	if gotPath != "/seuranta/users" {
		t.Errorf("got path %s, want /seuranta/users", gotPath)
	}
	if gotAPIKey != "secret-key" {
		t.Errorf("got X-API-Key %q, want secret-key", gotAPIKey)
	}
	if len(gotBody.Users) != 2 || gotBody.Users[0].Username != "alex" || gotBody.Users[1].Username != "sam" {
		t.Errorf("got body users %v, want [alex sam]", gotBody.Users)
	}
}

func TestNotifier_Push_EmptyList(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
	}))
	defer server.Close()

	notifier := New(server.URL, "key")
	if err := notifier.Push(context.Background(), nil); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	users, ok := gotBody["users"].([]any)
	if !ok || len(users) != 0 {
		t.Errorf("got body %v, want empty users array", gotBody)
	}
}

func TestNotifier_Push_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	notifier := New(server.URL, "key")
	if err := notifier.Push(context.Background(), []string{"alex"}); err == nil {
		t.Error("Push() to failing endpoint returned nil error")
	}
}

func TestNotifier_Push_Unreachable(t *testing.T) {
	notifier := New("http://127.0.0.1:1", "key")
	if err := notifier.Push(context.Background(), []string{"alex"}); err == nil {
		t.Error("Push() to unreachable endpoint returned nil error")
	}
}
