package modulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/permaweb/cu-core/internal/engine"
)

// FSStore loads WASM binaries from a local directory, one file per
// processId, grounded on the teacher's ipfs.PlaceholderClient. Used for
// tests and whenever CU_MODULE_STORE_DIR is configured in place of a
// module registry URL.
type FSStore struct {
	Dir string
	log engine.Logger
}

// NewFSStore constructs a filesystem-backed Module Binary Store rooted
// at dir.
func NewFSStore(dir string, log engine.Logger) *FSStore {
	return &FSStore{Dir: dir, log: log}
}

var _ engine.ModuleBinaryStore = (*FSStore)(nil)

// LoadSrc reads `<dir>/<processId>.wasm` and, if present,
// `<dir>/<processId>.wasm.options.json`.
func (f *FSStore) LoadSrc(ctx context.Context, processID string) ([]byte, engine.ModuleOptions, error) {
	if f.Dir == "" {
		return nil, engine.ModuleOptions{}, &engine.ConfigurationError{Reason: "module directory not configured"}
	}
	if processID == "" {
		return nil, engine.ModuleOptions{}, &engine.ConfigurationError{Reason: "empty processId"}
	}
	path := filepath.Join(f.Dir, processID+".wasm")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.ModuleOptions{}, &engine.ConfigurationError{Reason: fmt.Sprintf("read module %s", path), Err: err}
	}

	opts := defaultOptions()
	if optBytes, err := os.ReadFile(path + optionsSuffix); err == nil {
		_ = json.Unmarshal(optBytes, &opts)
	}

	if f.log != nil {
		f.log.Infof("loaded wasm src for process %s (%d bytes) from %s", processID, len(data), path)
	}
	return data, opts, nil
}
