package docsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Client is the thin adapter over the external indexing service. It never
// retries on its own; retries belong to the job dispatcher. A circuit
// breaker sheds calls fast while the service is down so queued jobs fail
// over to their backoff schedule instead of piling onto timeouts.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
	breaker   *gobreaker.CircuitBreaker[string]
}

func NewClientFromEnv() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("DOC_INDEX_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("DOC_INDEX_BASE_URL is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("DOC_INDEX_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("DOC_INDEX_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "doc-index",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(os.Getenv("DOC_INDEX_API_KEY")),
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
		breaker:   breaker,
	}, nil
}

type syncRequest struct {
	DocumentMetadata
}

type resyncRequest struct {
	DocId string `json:"doc_id"`
	DocumentMetadata
}

type removeResyncRequest struct {
	DocId  string `json:"doc_id"`
	OldKey string `json:"old_key"`
	DocumentMetadata
}

type unsyncRequest struct {
	DocId string `json:"doc_id"`
}

type syncResponse struct {
	DocId string `json:"doc_id"`
}

// Sync registers a new document and returns the identifier assigned by the
// indexing service.
func (c *Client) Sync(ctx context.Context, meta DocumentMetadata) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.post(ctx, "/document/sync", syncRequest{DocumentMetadata: meta})
	})
}

// Resync replaces the index entry's metadata under the same identifier.
func (c *Client) Resync(ctx context.Context, docIndexId string, meta DocumentMetadata) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.post(ctx, "/document/resync", resyncRequest{DocId: docIndexId, DocumentMetadata: meta})
	})
}

// RemoveAndResync drops the old object from the index and registers the
// replacement in one call. oldKey is the storage key the entry was built from.
func (c *Client) RemoveAndResync(ctx context.Context, docIndexId, oldKey string, meta DocumentMetadata) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.post(ctx, "/document/remove-and-resync", removeResyncRequest{DocId: docIndexId, OldKey: oldKey, DocumentMetadata: meta})
	})
}

func (c *Client) Unsync(ctx context.Context, docIndexId string) error {
	_, err := c.breaker.Execute(func() (string, error) {
		return c.post(ctx, "/document/unsync", unsyncRequest{DocId: docIndexId})
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (string, error) {
	<-c.limiter

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("doc index api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed syncResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	return parsed.DocId, nil
}
