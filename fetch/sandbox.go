package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// sandboxes manages per-package extraction directories under a shared parent.
// Directories are keyed by a sanitized form of the package name, so at most
// one valid extraction per name exists at a time. A keyed lease serializes
// extractions for the same name.
type sandboxes struct {
	base string

	mu     sync.Mutex
	leases map[string]*sync.Mutex
}

func newSandboxes(base string) *sandboxes {
	if base == "" {
		base = filepath.Join(os.TempDir(), "pkgcode")
	}
	return &sandboxes{
		base:   base,
		leases: make(map[string]*sync.Mutex),
	}
}

// sanitizeName maps a package name onto a filesystem-safe directory name.
// Non-alphanumeric separators are replaced, so "@babel/core" and
// "@babel_core" share a sandbox; the lease still serializes them.
func sanitizeName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '.':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

func (s *sandboxes) path(name string) string {
	return filepath.Join(s.base, sanitizeName(name))
}

// acquire takes the lease for name and returns its release func.
func (s *sandboxes) acquire(name string) func() {
	key := sanitizeName(name)

	s.mu.Lock()
	lease, ok := s.leases[key]
	if !ok {
		lease = &sync.Mutex{}
		s.leases[key] = lease
	}
	s.mu.Unlock()

	lease.Lock()
	return lease.Unlock
}

// prepare removes any previous extraction for name and creates a fresh
// sandbox directory, guaranteeing no stale files leak into the new result.
func (s *sandboxes) prepare(name string) (string, error) {
	dir := s.path(name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("%w: cleaning sandbox: %v", ErrExtract, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating sandbox: %v", ErrExtract, err)
	}
	return dir, nil
}
