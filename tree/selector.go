package tree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/pkgcode/client"
)

// ErrNotAFile is returned when a single-file read resolves to a directory.
var ErrNotAFile = errors.New("not a file")

const (
	// DefaultMaxFiles caps how many files Collect returns.
	DefaultMaxFiles = 20
	// DefaultMaxFileSize is the largest file Collect reads as text.
	DefaultMaxFileSize = 256 << 10
)

// DefaultExtensions is the allow-list of source, script, and config text
// extensions considered code candidates.
var DefaultExtensions = []string{
	".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs",
	".json", ".md", ".markdown",
	".py", ".rb", ".go", ".java", ".c", ".cc", ".cpp", ".h", ".hpp",
	".sh", ".yml", ".yaml", ".toml", ".txt",
	".css", ".html", ".vue", ".svelte",
}

// CodeFile is one selected file: sandbox-root-relative path plus full text
// content.
type CodeFile struct {
	Path    string
	Content string
	Size    int64
}

// Selector filters walked files by extension, reads their content, and
// enforces a result cap. Skips along the way are diagnostics, not failures.
type Selector struct {
	extensions  map[string]struct{}
	maxFiles    int
	maxFileSize int64
	logger      *log.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithMaxFiles sets the result cap.
func WithMaxFiles(n int) SelectorOption {
	return func(s *Selector) {
		s.maxFiles = n
	}
}

// WithMaxFileSize sets the largest file read as text.
func WithMaxFileSize(n int64) SelectorOption {
	return func(s *Selector) {
		s.maxFileSize = n
	}
}

// WithExtensions replaces the extension allow-list.
func WithExtensions(exts []string) SelectorOption {
	return func(s *Selector) {
		s.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			s.extensions[strings.ToLower(ext)] = struct{}{}
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *log.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = l
	}
}

// NewSelector creates a Selector with the default allow-list and caps.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		maxFiles:    DefaultMaxFiles,
		maxFileSize: DefaultMaxFileSize,
		logger:      log.New(io.Discard),
	}
	WithExtensions(DefaultExtensions)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collect walks root and returns up to the configured cap of readable code
// files in traversal order, plus the true candidate count so callers can
// report how many more files exist beyond the cap.
func (s *Selector) Collect(root string) ([]CodeFile, int, error) {
	entries, err := Walk(root)
	if err != nil {
		return nil, 0, err
	}

	var files []CodeFile
	total := 0
	for _, e := range entries {
		if e.IsDir || e.Skipped() {
			if e.Skipped() {
				s.logger.Debug("skipped during walk", "path", e.Path, "reason", e.SkipReason)
			}
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Path))
		if _, ok := s.extensions[ext]; !ok {
			continue
		}
		total++
		if len(files) >= s.maxFiles {
			continue
		}

		cf, err := s.readText(root, e.Path)
		if err != nil {
			s.logger.Debug("skipped unreadable candidate", "path", e.Path, "err", err)
			continue
		}
		files = append(files, *cf)
	}

	return files, total, nil
}

// ReadOne reads a single file under root by its root-relative path.
func (s *Selector) ReadOne(root, rel string) (*CodeFile, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("%w: path %q escapes package root", client.ErrInvalidParams, rel)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file %s: %w", rel, client.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotAFile)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return &CodeFile{Path: filepath.ToSlash(rel), Content: string(data), Size: info.Size()}, nil
}

func (s *Selector) readText(root, rel string) (*CodeFile, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > s.maxFileSize {
		return nil, fmt.Errorf("file size %d exceeds limit %d", info.Size(), s.maxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if !isText(data) {
		return nil, errors.New("binary content")
	}
	return &CodeFile{Path: rel, Content: string(data), Size: info.Size()}, nil
}

// isText sniffs the leading bytes for NUL, the usual binary marker.
func isText(data []byte) bool {
	sniff := data
	if len(sniff) > 8000 {
		sniff = sniff[:8000]
	}
	return !bytes.ContainsRune(sniff, 0)
}
