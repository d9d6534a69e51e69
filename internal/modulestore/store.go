// Package modulestore implements engine.ModuleBinaryStore: fetching the
// immutable WASM binary (and its resource options) associated with a
// process id. Grounded on the teacher's internal/adapters/ipfs package,
// generalized from CID-addressed fetches to processId-addressed ones.
package modulestore

import "github.com/permaweb/cu-core/internal/engine"

// optionsSuffix is the conventional sidecar filename suffix carrying a
// process's ModuleOptions as JSON, next to its WASM binary.
const optionsSuffix = ".options.json"

func defaultOptions() engine.ModuleOptions {
	return engine.ModuleOptions{}
}
