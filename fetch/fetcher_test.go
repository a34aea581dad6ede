package fetch

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// makeTarGz builds a gzip-compressed tar stream from entry name to content.
// A trailing slash marks a directory entry.
func makeTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if name[len(name)-1] == '/' {
			if err := tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
				t.Fatalf("writing dir header: %v", err)
			}
			continue
		}
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing body: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(WithSandboxDir(t.TempDir()))
}

func TestFetchAndExtract_StripsWrapperDirectory(t *testing.T) {
	body := makeTarGz(t, map[string]string{
		"package/a.js": "module.exports = 1;",
		"package/b.md": "# readme",
		"package/.x":   "hidden",
	})
	server := archiveServer(t, body)

	f := newTestFetcher(t)
	root, err := f.FetchAndExtract(context.Background(), server.URL+"/pkg-1.0.0.tgz", "pkg")
	if err != nil {
		t.Fatalf("FetchAndExtract failed: %v", err)
	}

	for _, name := range []string{"a.js", "b.md", ".x"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("expected %s at sandbox root: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "package")); !os.IsNotExist(err) {
		t.Error("wrapper directory was not stripped")
	}
}

func TestFetchAndExtract_NestedEntries(t *testing.T) {
	body := makeTarGz(t, map[string]string{
		"package/":             "",
		"package/lib/":         "",
		"package/lib/index.js": "exports.ok = true;",
		"package/package.json": `{"name":"pkg"}`,
	})
	server := archiveServer(t, body)

	f := newTestFetcher(t)
	root, err := f.FetchAndExtract(context.Background(), server.URL+"/pkg.tgz", "pkg")
	if err != nil {
		t.Fatalf("FetchAndExtract failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "lib", "index.js"))
	if err != nil {
		t.Fatalf("reading nested file: %v", err)
	}
	if string(data) != "exports.ok = true;" {
		t.Errorf("nested file content = %q", data)
	}
}

func TestFetchAndExtract_IdempotentPerName(t *testing.T) {
	first := makeTarGz(t, map[string]string{"package/old.js": "old"})
	second := makeTarGz(t, map[string]string{"package/new.js": "new"})

	current := first
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(current)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	if _, err := f.FetchAndExtract(context.Background(), server.URL, "pkg"); err != nil {
		t.Fatalf("first extraction failed: %v", err)
	}

	current = second
	root, err := f.FetchAndExtract(context.Background(), server.URL, "pkg")
	if err != nil {
		t.Fatalf("second extraction failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "old.js")); !os.IsNotExist(err) {
		t.Error("residue from first extraction survived")
	}
	if _, err := os.Stat(filepath.Join(root, "new.js")); err != nil {
		t.Errorf("second archive's file missing: %v", err)
	}
}

func TestFetchAndExtract_DownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := f.FetchAndExtract(context.Background(), server.URL+"/missing.tgz", "pkg")
	if !errors.Is(err, ErrDownload) {
		t.Errorf("FetchAndExtract = %v, want ErrDownload", err)
	}
}

func TestFetchAndExtract_DecompressError(t *testing.T) {
	server := archiveServer(t, []byte("this is not gzip"))

	f := newTestFetcher(t)
	_, err := f.FetchAndExtract(context.Background(), server.URL, "pkg")
	if !errors.Is(err, ErrDecompress) {
		t.Errorf("FetchAndExtract = %v, want ErrDecompress", err)
	}
}

func TestFetchAndExtract_ExtractError(t *testing.T) {
	// Valid gzip wrapping garbage that is not a tar stream.
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(bytes.Repeat([]byte("not a tar header "), 64))
	_ = gz.Close()
	server := archiveServer(t, buf.Bytes())

	f := newTestFetcher(t)
	_, err := f.FetchAndExtract(context.Background(), server.URL, "pkg")
	if !errors.Is(err, ErrExtract) {
		t.Errorf("FetchAndExtract = %v, want ErrExtract", err)
	}
}

func TestFetchAndExtract_RejectsEscapingEntry(t *testing.T) {
	body := makeTarGz(t, map[string]string{
		"package/../../evil.js": "boom",
	})
	server := archiveServer(t, body)

	f := newTestFetcher(t)
	_, err := f.FetchAndExtract(context.Background(), server.URL, "pkg")
	if !errors.Is(err, ErrExtract) {
		t.Errorf("FetchAndExtract = %v, want ErrExtract for escaping entry", err)
	}
}

func TestFetchAndExtract_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	f := NewFetcher(WithSandboxDir(t.TempDir()), WithTimeout(20*time.Millisecond))
	_, err := f.FetchAndExtract(context.Background(), server.URL, "pkg")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrDownload) {
		t.Errorf("FetchAndExtract = %v, want ErrDownload wrapping the deadline", err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"react", "react"},
		{"@babel/core", "_babel_core"},
		{"left-pad", "left-pad"},
		{"lodash.merge", "lodash.merge"},
		{"weird name!", "weird_name_"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.name); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSandboxPath_SharedForSanitizedCollisions(t *testing.T) {
	f := newTestFetcher(t)
	if f.SandboxPath("@babel/core") != f.SandboxPath("@babel_core") {
		t.Error("sanitized collisions should share one sandbox path")
	}
}
