package modulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/permaweb/cu-core/internal/engine"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	maxModuleBytes        = 64 << 20 // 64MiB safety limit
)

// HTTPStore fetches WASM binaries over HTTP, keyed by processId,
// grounded on the teacher's ipfs.GatewayClient.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	log     engine.Logger
}

// NewHTTPStore constructs an HTTP-backed Module Binary Store pointed at
// a gateway that serves `<baseURL>/<processId>`.
func NewHTTPStore(baseURL string, log engine.Logger) (*HTTPStore, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("module store base url is empty")
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(trimmed, "/"),
		client:  &http.Client{Timeout: defaultGatewayTimeout},
		log:     log,
	}, nil
}

var _ engine.ModuleBinaryStore = (*HTTPStore)(nil)

// LoadSrc downloads the WASM binary for processId, along with its
// ModuleOptions sidecar if the gateway serves one.
func (g *HTTPStore) LoadSrc(ctx context.Context, processID string) ([]byte, engine.ModuleOptions, error) {
	if processID == "" {
		return nil, engine.ModuleOptions{}, fmt.Errorf("processId is empty")
	}
	target := fmt.Sprintf("%s/%s", g.baseURL, strings.TrimLeft(processID, "/"))
	data, err := g.fetch(ctx, target, maxModuleBytes)
	if err != nil {
		return nil, engine.ModuleOptions{}, &engine.TransientIOError{Op: "load wasm src", Err: err}
	}

	opts := defaultOptions()
	optBytes, err := g.fetch(ctx, target+optionsSuffix, 1<<20)
	if err == nil {
		_ = json.Unmarshal(optBytes, &opts)
	}

	if g.log != nil {
		g.log.Infof("loaded wasm src for process %s (%d bytes) via gateway", processID, len(data))
	}
	return data, opts, nil
}

func (g *HTTPStore) fetch(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gateway %s status %s: %s", target, resp.Status, strings.TrimSpace(string(payload)))
	}

	reader := io.LimitReader(resp.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response from %s larger than %d bytes", target, limit)
	}
	return data, nil
}
