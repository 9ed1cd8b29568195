package tools

import (
	"os"
	"sync"

	"crev/internal/index"
	"crev/internal/security"
)

// Env is the shared environment behind every navigation tool: the index
// snapshot taken at review start, the sandbox the tools read through, and
// the per-review caches. One Env serves one review.
type Env struct {
	Index     *index.Index
	Validator *security.PathValidator
	Trace     *Trace

	// MaxFileBytes caps read_file output; longer files are truncated with a
	// marker rather than rejected.
	MaxFileBytes int

	cacheMu sync.Mutex
	cache   map[string][]byte
}

// NewEnv creates a tool environment over an index snapshot.
func NewEnv(idx *index.Index, validator *security.PathValidator, maxFileBytes int) *Env {
	return &Env{
		Index:        idx,
		Validator:    validator,
		Trace:        NewTrace(),
		MaxFileBytes: maxFileBytes,
		cache:        make(map[string][]byte),
	}
}

// readCached returns a file's contents, loading it through the sandbox at
// most once per review.
func (e *Env) readCached(rel string) ([]byte, error) {
	abs, err := e.Validator.ResolveFile(rel)
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	data, ok := e.cache[abs]
	e.cacheMu.Unlock()
	if ok {
		return data, nil
	}

	data, err = os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	e.cacheMu.Lock()
	e.cache[abs] = data
	e.cacheMu.Unlock()
	return data, nil
}

// NewRegistry builds the closed navigation tool set for this environment.
func (e *Env) NewRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		&ReadFileTool{env: e},
		&SearchSymbolTool{env: e},
		&FindUsagesTool{env: e},
		&GetImportsTool{env: e},
		&FileTreeTool{env: e},
		&SearchTextTool{env: e},
	} {
		// Names are distinct by construction.
		_ = r.Register(t)
	}
	return r
}
