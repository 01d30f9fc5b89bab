package lrs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openlearn/xapi-agent/pkg/common/config"
)

func statements(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(ids))
	for i, id := range ids {
		raw, _ := json.Marshal(map[string]string{"id": id})
		out[i] = raw
	}
	return out
}

func TestPostStatements(t *testing.T) {
	var got *http.Request
	var body []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("X-Experience-API-Consistent-Through", "2026-03-01T10:00:00Z")
		w.Header().Set("X-Experience-API-Version", "1.0.3")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]string{"a", "b"})
	}))
	defer server.Close()

	client := NewClient(config.LRSConfig{
		Endpoint: server.URL,
		Username: "key",
		Password: "secret",
	}, 5*time.Second)

	resp, err := client.PostStatements(context.Background(), statements("a", "b"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	if got.URL.Path != "/statements" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if got.Header.Get("X-Experience-API-Version") != "1.0.3" {
		t.Errorf("version header = %q", got.Header.Get("X-Experience-API-Version"))
	}
	user, pass, ok := got.BasicAuth()
	if !ok || user != "key" || pass != "secret" {
		t.Errorf("basic auth = %v %v %v", user, pass, ok)
	}
	if len(body) != 2 {
		t.Errorf("server received %d statements", len(body))
	}
	if len(resp.StatementIDs) != 2 || resp.ConsistentThrough == "" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Version != "1.0.3" || resp.ContentType != "application/json" {
		t.Errorf("diagnostics = %q %q", resp.Version, resp.ContentType)
	}
}

func TestPostStatementsRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad statement", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.LRSConfig{Endpoint: server.URL}, 5*time.Second)
	_, err := client.PostStatements(context.Background(), statements("a"))

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if remote.Status != http.StatusBadRequest {
		t.Errorf("status = %d", remote.Status)
	}
}

func TestPostStatementsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse all connections

	client := NewClient(config.LRSConfig{Endpoint: server.URL}, time.Second)
	_, err := client.PostStatements(context.Background(), statements("a"))

	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}
