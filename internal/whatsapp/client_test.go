package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.abc123"}},
		})
	}))
	defer srv.Close()

	client := NewClient("123456", "secret-token").WithBaseURL(srv.URL)

	id, err := client.SendText(context.Background(), "+905321112233", "Hello from the clinic")
	if err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if id != "wamid.abc123" {
		t.Errorf("expected message id wamid.abc123, got %s", id)
	}
	if gotPath != "/123456/messages" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("unexpected auth header %s", gotAuth)
	}
	if gotBody["to"] != "+905321112233" {
		t.Errorf("unexpected recipient %v", gotBody["to"])
	}
	text, _ := gotBody["text"].(map[string]any)
	if text["body"] != "Hello from the clinic" {
		t.Errorf("unexpected body %v", text)
	}
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid recipient", "code": 131026},
		})
	}))
	defer srv.Close()

	client := NewClient("123456", "secret-token").WithBaseURL(srv.URL)

	_, err := client.SendText(context.Background(), "not-a-number", "hi")
	if err == nil {
		t.Fatal("expected error from API")
	}
}

func TestSendTextUnconfigured(t *testing.T) {
	client := NewClient("", "")
	if client.IsConfigured() {
		t.Fatal("empty client must not report configured")
	}
	if _, err := client.SendText(context.Background(), "+1", "hi"); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}
