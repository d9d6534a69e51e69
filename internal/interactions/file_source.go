package interactions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/permaweb/cu-core/internal/engine"
)

// FileSource reads a process's interactions from a local JSON-lines
// file, one interaction per line, grounded on the teacher's
// ipfs.PlaceholderClient local-directory lookup. Used for tests and
// whenever CU_INTERACTIONS_DIR is configured in place of a Scheduler
// Unit URL.
type FileSource struct {
	Dir string
	log engine.Logger
}

// NewFileSource constructs a local, file-backed Interaction Source
// rooted at dir. Each process's interactions live in
// `<dir>/<processId>.jsonl`.
func NewFileSource(dir string, log engine.Logger) *FileSource {
	return &FileSource{Dir: dir, log: log}
}

var (
	_ engine.Source = (*FileSource)(nil)
	_ engine.Writer = (*FileSource)(nil)
)

// ListInteractions reads and filters the process's JSON-lines file. A
// missing file is treated as "no interactions yet", not an error.
func (f *FileSource) ListInteractions(ctx context.Context, processID string, fromExclusive, toInclusive engine.SortKey) ([]engine.Interaction, error) {
	path := filepath.Join(f.Dir, processID+".jsonl")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &engine.ConfigurationError{Reason: fmt.Sprintf("open interaction log %s", path), Err: err}
	}
	defer file.Close()

	var all []engine.Interaction
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var in engine.Interaction
		if err := json.Unmarshal(line, &in); err != nil {
			return nil, &engine.ConfigurationError{Reason: fmt.Sprintf("parse interaction log %s", path), Err: err}
		}
		all = append(all, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, &engine.ConfigurationError{Reason: fmt.Sprintf("read interaction log %s", path), Err: err}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].SortKey.Compare(all[j].SortKey) < 0 })

	out := make([]engine.Interaction, 0, len(all))
	for _, in := range all {
		if fromExclusive != engine.Genesis && in.SortKey.Compare(fromExclusive) <= 0 {
			continue
		}
		if toInclusive != engine.Latest && in.SortKey.Compare(toInclusive) > 0 {
			continue
		}
		out = append(out, in)
	}
	if f.log != nil {
		f.log.Debugf("loaded %d interactions for process %s from %s", len(out), processID, path)
	}
	return out, nil
}

// Append writes a new interaction to the process's log file, used by
// tests and WriteInteraction in place of a real SU.
func (f *FileSource) Append(processID string, in engine.Interaction) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(f.Dir, processID+".jsonl")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// WriteInteraction implements engine.Writer by standing in for the
// Scheduler Unit: it assigns the next sort key itself, a
// zero-padded decimal one greater than the process's current line
// count, and appends the interaction under that key.
func (f *FileSource) WriteInteraction(ctx context.Context, processID string, action []byte) (engine.SortKey, error) {
	existing, err := f.ListInteractions(ctx, processID, engine.Genesis, engine.Latest)
	if err != nil {
		return "", err
	}
	sortKey := engine.SortKey(fmt.Sprintf("%020d", len(existing)+1))
	in := engine.Interaction{
		ProcessID: processID,
		SortKey:   sortKey,
		Action:    json.RawMessage(action),
	}
	if err := f.Append(processID, in); err != nil {
		return "", &engine.TransientIOError{Op: "append interaction", Err: err}
	}
	return sortKey, nil
}
