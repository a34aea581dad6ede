package npm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/git-pkgs/pkgcode/client"
)

func manifestBody() map[string]interface{} {
	return map[string]interface{}{
		"name":        "react",
		"version":     "18.3.1",
		"description": "React is a JavaScript library for building user interfaces.",
		"keywords":    []string{"react"},
		"license":     "MIT",
		"homepage":    "https://reactjs.org/",
		"repository": map[string]string{
			"type": "git",
			"url":  "git+https://github.com/facebook/react.git",
		},
		"dependencies": map[string]string{
			"loose-envify": "^1.1.0",
		},
		"devDependencies": map[string]string{
			"jest": "^29.0.0",
			"vite": "^5.0.0",
		},
		"dist": map[string]string{
			"tarball":   "https://registry.npmjs.org/react/-/react-18.3.1.tgz",
			"shasum":    "45c2c7b5bf4a7b8b6e26cdbc2dfbeecdbdb4ba1a",
			"integrity": "sha512-wS+hAgJShR0KhEvPJArfuPVN1+Hz1t0Y6n5jLrGQbkb4urgPE/0Rve+1kMB1v/oWgHgm4WIcV+i7F2pTVj+2iQ==",
		},
	}
}

func TestFetchManifestLatest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/react/latest" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manifestBody())
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))
	m, err := reg.FetchManifest(context.Background(), "react", "")
	if err != nil {
		t.Fatalf("FetchManifest failed: %v", err)
	}

	if m.Name != "react" || m.Version != "18.3.1" {
		t.Errorf("got %s@%s, want react@18.3.1", m.Name, m.Version)
	}
	if m.License != "MIT" {
		t.Errorf("license = %q, want MIT", m.License)
	}
	if m.Repository != "https://github.com/facebook/react" {
		t.Errorf("unexpected repository: %q", m.Repository)
	}
	if m.TarballURL == "" || m.Shasum == "" {
		t.Error("manifest lacks tarball URL or checksum")
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0] != "loose-envify" {
		t.Errorf("dependencies = %v", m.Dependencies)
	}
	if len(m.DevDependencies) != 2 {
		t.Errorf("devDependencies = %v", m.DevDependencies)
	}
}

func TestFetchManifestPinnedVersion(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body := manifestBody()
		body["version"] = "17.0.2"
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))
	m, err := reg.FetchManifest(context.Background(), "react", "17.0.2")
	if err != nil {
		t.Fatalf("FetchManifest failed: %v", err)
	}
	if gotPath != "/react/17.0.2" {
		t.Errorf("path = %q, want /react/17.0.2", gotPath)
	}
	if m.Version != "17.0.2" {
		t.Errorf("version = %q, want 17.0.2", m.Version)
	}
}

func TestFetchManifestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))
	_, err := reg.FetchManifest(context.Background(), "no-such-package-xyz", "")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("FetchManifest = %v, want ErrNotFound", err)
	}
}

func TestFetchManifestMissingTarball(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := manifestBody()
		body["dist"] = map[string]string{}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))
	_, err := reg.FetchManifest(context.Background(), "react", "")
	if !errors.Is(err, client.ErrInvalidResponse) {
		t.Errorf("FetchManifest = %v, want ErrInvalidResponse", err)
	}
}

func TestFetchManifestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(manifestBody())
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)),
		WithMetadataTimeout(20*time.Millisecond))
	_, err := reg.FetchManifest(context.Background(), "react", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchManifest = %v, want DeadlineExceeded", err)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/-/v1/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "http client" {
			t.Errorf("text = %q", q.Get("text"))
		}
		if q.Get("size") != "10" || q.Get("from") != "0" {
			t.Errorf("pagination = size %q from %q", q.Get("size"), q.Get("from"))
		}
		if q.Get("quality") == "" || q.Get("popularity") == "" || q.Get("maintenance") == "" {
			t.Error("weighting parameters missing")
		}

		resp := map[string]interface{}{
			"total": 1234,
			"objects": []map[string]interface{}{
				{
					"package": map[string]interface{}{
						"name":        "axios",
						"version":     "1.7.2",
						"description": "Promise based HTTP client",
						"keywords":    []string{"xhr", "http", "ajax"},
						"date":        "2024-05-20T18:00:00.000Z",
						"author":      map[string]string{"name": "Matt Zabriskie"},
						"links": map[string]string{
							"npm":        "https://www.npmjs.com/package/axios",
							"homepage":   "https://axios-http.com",
							"repository": "https://github.com/axios/axios",
						},
					},
					"score": map[string]interface{}{
						"final": 0.92,
						"detail": map[string]float64{
							"quality":     0.95,
							"popularity":  0.91,
							"maintenance": 0.9,
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))
	result, err := reg.Search(context.Background(), "http client", 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if result.Total != 1234 {
		t.Errorf("total = %d, want 1234", result.Total)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.Name != "axios" || hit.Author != "Matt Zabriskie" {
		t.Errorf("hit = %+v", hit)
	}
	if hit.PublishedAt.IsZero() {
		t.Error("PublishedAt not parsed")
	}
	if hit.Score != 0.92 || hit.Quality != 0.95 {
		t.Errorf("scores = %v/%v", hit.Score, hit.Quality)
	}
}

func TestSearchInvalidParams(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	reg := New(server.URL, client.NewClient(client.WithMaxRetries(0)))

	if _, err := reg.Search(context.Background(), "   ", 10, 0); !errors.Is(err, client.ErrInvalidParams) {
		t.Errorf("blank query = %v, want ErrInvalidParams", err)
	}
	if _, err := reg.Search(context.Background(), "react", 300, 0); !errors.Is(err, client.ErrInvalidParams) {
		t.Errorf("size 300 = %v, want ErrInvalidParams", err)
	}
	if calls.Load() != 0 {
		t.Errorf("invalid params reached the network: %d calls", calls.Load())
	}
}

func TestExtractHelpers(t *testing.T) {
	if got := extractLicense(map[string]interface{}{"type": "Apache-2.0"}); got != "Apache-2.0" {
		t.Errorf("extractLicense object = %q", got)
	}
	if got := extractKeywords("one, two ,three"); len(got) != 3 || got[1] != "two" {
		t.Errorf("extractKeywords string = %v", got)
	}
	if got := extractPerson(map[string]interface{}{"name": "TJ", "email": "tj@example.com"}); got != "TJ" {
		t.Errorf("extractPerson = %q", got)
	}
	if got := normalizeGitURL("git+https://github.com/axios/axios.git"); got != "https://github.com/axios/axios" {
		t.Errorf("normalizeGitURL = %q", got)
	}
}
