package docsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    "test-key",
		apiKeyHdr: "X-API-Key",
		http:      &http.Client{Timeout: 5 * time.Second},
		limiter:   time.Tick(time.Millisecond),
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name: "doc-index-test",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func TestClientSync(t *testing.T) {
	var gotPath, gotKey string
	var gotBody syncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"doc_id":"idx-42"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	docId, err := c.Sync(context.Background(), DocumentMetadata{Title: "Fire Safety Act", ValidityStatus: "valid"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if docId != "idx-42" {
		t.Fatalf("expected doc id %q, got %q", "idx-42", docId)
	}
	if gotPath != "/document/sync" {
		t.Fatalf("expected path /document/sync, got %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("expected api key header to be sent, got %q", gotKey)
	}
	if gotBody.Title != "Fire Safety Act" || gotBody.ValidityStatus != "valid" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestClientRemoveAndResync(t *testing.T) {
	var gotBody removeResyncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"doc_id":"idx-42"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.RemoveAndResync(context.Background(), "idx-42", "biz/documents/old.pdf", DocumentMetadata{Key: "biz/documents/new.pdf"})
	if err != nil {
		t.Fatalf("RemoveAndResync: %v", err)
	}
	if gotBody.DocId != "idx-42" || gotBody.OldKey != "biz/documents/old.pdf" || gotBody.Key != "biz/documents/new.pdf" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestClientUnsync(t *testing.T) {
	var gotBody unsyncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.Unsync(context.Background(), "idx-42"); err != nil {
		t.Fatalf("Unsync: %v", err)
	}
	if gotBody.DocId != "idx-42" {
		t.Fatalf("expected doc id in body, got %+v", gotBody)
	}
}

func TestClientNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Sync(context.Background(), DocumentMetadata{Title: "x"})
	if err == nil {
		t.Fatal("expected error on 502 response")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "index unavailable") {
		t.Fatalf("error should carry status and body, got %q", err.Error())
	}
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	for i := 0; i < 5; i++ {
		if _, err := c.Sync(context.Background(), DocumentMetadata{}); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}
	_, err := c.Sync(context.Background(), DocumentMetadata{})
	if err != gobreaker.ErrOpenState {
		t.Fatalf("expected open breaker, got %v", err)
	}
}
