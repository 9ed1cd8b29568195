package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"crev/internal/logging"
)

var (
	// ErrSessionBusy is returned when a session is already held by another
	// review in this process.
	ErrSessionBusy = errors.New("session is in use by another review")

	// ErrIncompatibleVersion is returned for session files written by a
	// different format version.
	ErrIncompatibleVersion = errors.New("incompatible session format version")
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Store keeps one JSON file per session, grouped per project root so two
// projects can each have a session named "default" without colliding.
type Store struct {
	dir string

	mu   sync.Mutex
	held map[string]bool
}

// NewStore creates a session store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, held: make(map[string]bool)}
}

// scopeDir derives the per-project directory from the project root path.
func (st *Store) scopeDir(projectRoot string) string {
	sum := sha256.Sum256([]byte(projectRoot))
	return filepath.Join(st.dir, hex.EncodeToString(sum[:8]))
}

func sanitizeName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		s = "default"
	}
	return s
}

func (st *Store) path(projectRoot, name string) string {
	return filepath.Join(st.scopeDir(projectRoot), sanitizeName(name)+".json")
}

func (st *Store) key(projectRoot, name string) string {
	return st.path(projectRoot, name)
}

// Acquire takes the in-process lock for a session and returns its release
// function. A second Acquire before release fails with ErrSessionBusy.
func (st *Store) Acquire(projectRoot, name string) (func(), error) {
	key := st.key(projectRoot, name)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.held[key] {
		return nil, fmt.Errorf("%s: %w", name, ErrSessionBusy)
	}
	st.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.held, key)
			st.mu.Unlock()
		})
	}, nil
}

// Load reads a session from disk. A missing session returns os.ErrNotExist.
func (st *Store) Load(projectRoot, name string) (*Session, error) {
	data, err := os.ReadFile(st.path(projectRoot, name))
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session file for %q: %w", name, err)
	}
	if s.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("session %q has version %d, want %d: %w",
			name, s.FormatVersion, FormatVersion, ErrIncompatibleVersion)
	}
	return &s, nil
}

// LoadOrCreate returns the stored session, or a fresh one when none exists.
func (st *Store) LoadOrCreate(projectRoot, name string) (*Session, error) {
	s, err := st.Load(projectRoot, name)
	if err == nil {
		return s, nil
	}
	if os.IsNotExist(err) {
		return New(projectRoot, name), nil
	}
	return nil, err
}

// Save writes a session atomically: the JSON goes to a temp file in the same
// directory and is renamed over the target, so a crash mid-write can never
// leave a truncated session behind.
func (st *Store) Save(s *Session) error {
	target := st.path(s.ProjectRoot, s.Name)
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// ListOptions narrows and orders a List call. The zero value lists every
// session, most recently active first.
type ListOptions struct {
	// Name keeps only sessions whose name contains this substring.
	Name string
	// SortBy is "last_active" (the default), "name" or "created".
	SortBy string
	// Limit caps the result; zero means no cap.
	Limit int
}

// List returns summaries of the stored sessions for a project, filtered and
// ordered per opt.
func (st *Store) List(projectRoot string, opt ListOptions) ([]Info, error) {
	entries, err := os.ReadDir(st.scopeDir(projectRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		s, err := st.Load(projectRoot, name)
		if err != nil {
			logging.Warn("skipping unreadable session", "file", e.Name(), "error", err)
			continue
		}
		if opt.Name != "" && !strings.Contains(s.Name, opt.Name) {
			continue
		}
		infos = append(infos, s.Info())
	}

	switch opt.SortBy {
	case "name":
		sort.Slice(infos, func(i, j int) bool {
			return infos[i].Name < infos[j].Name
		})
	case "created":
		sort.Slice(infos, func(i, j int) bool {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		})
	default:
		sort.Slice(infos, func(i, j int) bool {
			return infos[i].LastActive.After(infos[j].LastActive)
		})
	}

	if opt.Limit > 0 && len(infos) > opt.Limit {
		infos = infos[:opt.Limit]
	}
	return infos, nil
}

// Delete removes a stored session. Deleting a missing session is not an error.
func (st *Store) Delete(projectRoot, name string) error {
	err := os.Remove(st.path(projectRoot, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Prune deletes sessions across all projects that have been inactive longer
// than maxAge, and returns how many were removed.
func (st *Store) Prune(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	scopes, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, scope := range scopes {
		if !scope.IsDir() {
			continue
		}
		scopeDir := filepath.Join(st.dir, scope.Name())
		files, err := os.ReadDir(scopeDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			full := filepath.Join(scopeDir, f.Name())
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			var s Session
			if err := json.Unmarshal(data, &s); err != nil {
				continue
			}
			if s.LastActive.Before(cutoff) {
				if err := os.Remove(full); err == nil {
					removed++
				}
			}
		}
		// Drop scope dirs emptied by pruning.
		if rest, err := os.ReadDir(scopeDir); err == nil && len(rest) == 0 {
			os.Remove(scopeDir)
		}
	}
	return removed, nil
}
