// Package interactions implements engine.Source and engine.Writer: the
// Interaction Source described in spec.md §4.2. Grounded on the
// teacher's internal/adapters/ipfs.GatewayClient (HTTP fetch shape) and
// internal/adapters/contract (subscribe/ack/publish shape), generalized
// from a one-shot module fetch and a push-subscription into a
// sort-key-ranged pull.
package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/permaweb/cu-core/internal/engine"
)

const defaultSUTimeout = 15 * time.Second

// SUClient pulls interactions from a Scheduler Unit's HTTP API and
// forwards newly authored actions back to it.
type SUClient struct {
	baseURL string
	client  *http.Client
	log     engine.Logger
}

// NewSUClient constructs an HTTP-backed Interaction Source pointed at a
// Scheduler Unit base URL.
func NewSUClient(baseURL string, log engine.Logger) (*SUClient, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("su base url is empty")
	}
	return &SUClient{
		baseURL: strings.TrimRight(trimmed, "/"),
		client:  &http.Client{Timeout: defaultSUTimeout},
		log:     log,
	}, nil
}

var (
	_ engine.Source = (*SUClient)(nil)
	_ engine.Writer = (*SUClient)(nil)
)

// ListInteractions fetches the SU's interaction feed for processID
// strictly after fromExclusive, up to and including toInclusive
// (engine.Latest meaning "whatever the SU currently has"). It makes one
// GET request and decodes the whole range from that single response;
// it does not page.
func (c *SUClient) ListInteractions(ctx context.Context, processID string, fromExclusive, toInclusive engine.SortKey) ([]engine.Interaction, error) {
	q := url.Values{}
	if fromExclusive != engine.Genesis {
		q.Set("from", string(fromExclusive))
	}
	if toInclusive != engine.Latest {
		q.Set("to", string(toInclusive))
	}
	target := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(processID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &engine.TransientIOError{Op: "build interaction request", Err: err}
	}
	req.Header.Set("X-Request-Id", uuid.Must(uuid.NewV7()).String())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &engine.TransientIOError{Op: "fetch interactions", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &engine.TransientIOError{Op: "fetch interactions", Err: fmt.Errorf("su %s status %s: %s", target, resp.Status, strings.TrimSpace(string(payload)))}
	}

	var out []engine.Interaction
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &engine.TransientIOError{Op: "decode interactions", Err: err}
	}
	if c.log != nil {
		c.log.Debugf("fetched %d interactions for process %s", len(out), processID)
	}
	return out, nil
}

// WriteInteraction forwards action to the SU, which assigns and returns
// the new interaction's sort key. The core never assigns sort keys
// itself (spec.md §1 non-goals).
func (c *SUClient) WriteInteraction(ctx context.Context, processID string, action []byte) (engine.SortKey, error) {
	target := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(processID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(action)))
	if err != nil {
		return "", &engine.TransientIOError{Op: "build write request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.Must(uuid.NewV7()).String())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &engine.TransientIOError{Op: "write interaction", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &engine.TransientIOError{Op: "write interaction", Err: fmt.Errorf("su %s status %s: %s", target, resp.Status, strings.TrimSpace(string(payload)))}
	}

	var decoded struct {
		SortKey engine.SortKey `json:"sortKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &engine.TransientIOError{Op: "decode write response", Err: err}
	}
	return decoded.SortKey, nil
}
