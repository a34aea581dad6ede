// Package tree lists and selects files from an extracted package sandbox.
// Traversal tolerates unreadable entries: they are reported as skips, never
// as failures.
package tree

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Directory and file names never descended into or returned. Covers version
// control metadata, dependency caches, and OS metadata files.
var defaultSkipNames = map[string]struct{}{
	".git":             {},
	".svn":             {},
	".hg":              {},
	"node_modules":     {},
	"bower_components": {},
	"__pycache__":      {},
	".DS_Store":        {},
	"Thumbs.db":        {},
}

// Entry is one traversal result: either a visited path or a skip with its
// reason. Callers decide whether skips are surfaced as diagnostics.
type Entry struct {
	// Path is root-relative and slash-separated.
	Path  string
	IsDir bool
	// SkipReason is non-empty when the entry (and for directories, its
	// whole subtree) was not descended into or listed.
	SkipReason string
}

// Skipped reports whether the entry was excluded from traversal.
func (e Entry) Skipped() bool {
	return e.SkipReason != ""
}

// Walk traverses root depth-first and yields one Entry per encountered
// name. Hidden directories, the fixed skip set, and unreadable entries
// become skip entries; traversal always continues past them. Only a root
// that cannot be read at all is an error.
func Walk(root string) ([]Entry, error) {
	type frame struct {
		abs string
		rel string
	}

	var entries []Entry
	stack := []frame{{abs: root, rel: ""}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirents, err := os.ReadDir(cur.abs)
		if err != nil {
			if cur.rel == "" {
				return nil, err
			}
			entries = append(entries, Entry{Path: cur.rel, IsDir: true, SkipReason: err.Error()})
			continue
		}
		sort.Slice(dirents, func(i, j int) bool {
			return dirents[i].Name() < dirents[j].Name()
		})

		// Push child directories in reverse so the stack pops them in
		// lexicographic order.
		var dirs []frame
		for _, d := range dirents {
			name := d.Name()
			rel := path.Join(cur.rel, name)

			if d.IsDir() {
				if reason := skipDirReason(name); reason != "" {
					entries = append(entries, Entry{Path: rel, IsDir: true, SkipReason: reason})
					continue
				}
				entries = append(entries, Entry{Path: rel, IsDir: true})
				dirs = append(dirs, frame{abs: filepath.Join(cur.abs, name), rel: rel})
				continue
			}

			if _, skip := defaultSkipNames[name]; skip {
				entries = append(entries, Entry{Path: rel, SkipReason: "name in skip set"})
				continue
			}
			entries = append(entries, Entry{Path: rel})
		}
		for i := len(dirs) - 1; i >= 0; i-- {
			stack = append(stack, dirs[i])
		}
	}

	return entries, nil
}

func skipDirReason(name string) string {
	if strings.HasPrefix(name, ".") {
		return "hidden directory"
	}
	if _, ok := defaultSkipNames[name]; ok {
		return "name in skip set"
	}
	return ""
}

// ListFiles returns every non-skipped file under root as root-relative
// slash-separated paths, sorted lexicographically for determinism.
func ListFiles(root string) ([]string, error) {
	entries, err := Walk(root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir && !e.Skipped() {
			files = append(files, e.Path)
		}
	}
	sort.Strings(files)
	return files, nil
}
