// Package npm provides a registry client for npmjs.com: manifest resolution
// for a name plus version-or-latest, and keyword search against the index.
package npm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/git-pkgs/pkgcode/client"
)

const (
	DefaultURL = "https://registry.npmjs.org"

	// MaxSearchSize is the largest page the search endpoint accepts.
	// Larger values are rejected, not truncated.
	MaxSearchSize = 250

	DefaultMetadataTimeout = 10 * time.Second
	DefaultSearchTimeout   = 15 * time.Second
)

// Search result weighting, fixed to match the npm website defaults.
const (
	qualityWeight     = "0.65"
	popularityWeight  = "0.98"
	maintenanceWeight = "0.5"
)

// Manifest describes one resolved package version. It is produced fresh per
// request and never mutated after FetchManifest returns.
type Manifest struct {
	Name        string
	Version     string
	Description string
	License     string
	Homepage    string
	Repository  string
	Author      string
	Keywords    []string

	TarballURL string
	Shasum     string
	Integrity  string

	Dependencies    []string
	DevDependencies []string
}

// SearchHit is one entry from the search endpoint.
type SearchHit struct {
	Name        string
	Version     string
	Description string
	Keywords    []string
	Author      string
	PublishedAt time.Time

	RegistryURL   string
	HomepageURL   string
	RepositoryURL string

	Score       float64
	Quality     float64
	Popularity  float64
	Maintenance float64
}

// SearchResult holds one page of search hits plus the index's total count.
type SearchResult struct {
	Hits  []SearchHit
	Total int
}

// Registry is a client for a single npm-compatible index service.
type Registry struct {
	baseURL         string
	client          *client.Client
	urls            *client.NPMURLs
	metadataTimeout time.Duration
	searchTimeout   time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetadataTimeout bounds a single FetchManifest call.
func WithMetadataTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.metadataTimeout = d
	}
}

// WithSearchTimeout bounds a single Search call.
func WithSearchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.searchTimeout = d
	}
}

// New creates a registry client. A failed request is surfaced to the caller
// on first occurrence, so the HTTP client is built without retries.
func New(baseURL string, c *client.Client, opts ...Option) *Registry {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = client.NewClient(client.WithMaxRetries(0))
	}
	r := &Registry{
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		client:          c,
		metadataTimeout: DefaultMetadataTimeout,
		searchTimeout:   DefaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.urls = &client.NPMURLs{BaseURL: r.baseURL}
	return r
}

// URLs returns the URL builder for this registry.
func (r *Registry) URLs() client.URLBuilder {
	return r.urls
}

type versionResponse struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	Keywords     interface{}       `json:"keywords"`
	License      interface{}       `json:"license"`
	Homepage     interface{}       `json:"homepage"`
	Repository   interface{}       `json:"repository"`
	Author       interface{}       `json:"author"`
	Dependencies map[string]string `json:"dependencies"`
	DevDeps      map[string]string `json:"devDependencies"`
	Dist         distInfo          `json:"dist"`
}

type distInfo struct {
	Shasum    string `json:"shasum"`
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
}

// FetchManifest resolves one package version with a single GET. An empty
// version resolves the "latest" dist-tag alias.
func (r *Registry) FetchManifest(ctx context.Context, name, version string) (*Manifest, error) {
	if version == "" {
		version = "latest"
	}
	reqURL := fmt.Sprintf("%s/%s/%s", r.baseURL, url.PathEscape(name), url.PathEscape(version))

	ctx, cancel := context.WithTimeout(ctx, r.metadataTimeout)
	defer cancel()

	var resp versionResponse
	if err := r.client.GetJSON(ctx, reqURL, &resp); err != nil {
		if httpErr, ok := err.(*client.HTTPError); ok && httpErr.IsNotFound() {
			return nil, &client.NotFoundError{Name: name, Version: version}
		}
		return nil, err
	}

	if resp.Dist.Tarball == "" || (resp.Dist.Shasum == "" && resp.Dist.Integrity == "") {
		return nil, fmt.Errorf("%w: manifest for %s@%s lacks a tarball URL or checksum",
			client.ErrInvalidResponse, name, version)
	}

	return &Manifest{
		Name:            coalesceString(resp.Name, name),
		Version:         resp.Version,
		Description:     resp.Description,
		License:         extractLicense(resp.License),
		Homepage:        extractString(resp.Homepage),
		Repository:      extractRepoURL(resp.Repository),
		Author:          extractPerson(resp.Author),
		Keywords:        extractKeywords(resp.Keywords),
		TarballURL:      resp.Dist.Tarball,
		Shasum:          resp.Dist.Shasum,
		Integrity:       resp.Dist.Integrity,
		Dependencies:    sortedKeys(resp.Dependencies),
		DevDependencies: sortedKeys(resp.DevDeps),
	}, nil
}

type searchResponse struct {
	Objects []struct {
		Package struct {
			Name        string      `json:"name"`
			Version     string      `json:"version"`
			Description string      `json:"description"`
			Keywords    interface{} `json:"keywords"`
			Date        string      `json:"date"`
			Author      interface{} `json:"author"`
			Publisher   struct {
				Username string `json:"username"`
			} `json:"publisher"`
			Links struct {
				NPM        string `json:"npm"`
				Homepage   string `json:"homepage"`
				Repository string `json:"repository"`
			} `json:"links"`
		} `json:"package"`
		Score struct {
			Final  float64 `json:"final"`
			Detail struct {
				Quality     float64 `json:"quality"`
				Popularity  float64 `json:"popularity"`
				Maintenance float64 `json:"maintenance"`
			} `json:"detail"`
		} `json:"score"`
	} `json:"objects"`
	Total int `json:"total"`
}

// Search queries the index. The query must be non-empty after trimming and
// size must not exceed MaxSearchSize; violations fail before any I/O.
func (r *Registry) Search(ctx context.Context, query string, size, from int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query must be a non-empty string", client.ErrInvalidParams)
	}
	if size <= 0 {
		size = 20
	}
	if size > MaxSearchSize {
		return nil, fmt.Errorf("%w: size %d exceeds maximum of %d", client.ErrInvalidParams, size, MaxSearchSize)
	}
	if from < 0 {
		from = 0
	}

	params := url.Values{}
	params.Set("text", query)
	params.Set("size", fmt.Sprintf("%d", size))
	params.Set("from", fmt.Sprintf("%d", from))
	params.Set("quality", qualityWeight)
	params.Set("popularity", popularityWeight)
	params.Set("maintenance", maintenanceWeight)
	reqURL := fmt.Sprintf("%s/-/v1/search?%s", r.baseURL, params.Encode())

	ctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	var resp searchResponse
	if err := r.client.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Objects))
	for _, obj := range resp.Objects {
		pkg := obj.Package
		publishedAt, _ := time.Parse(time.RFC3339, pkg.Date)

		author := extractPerson(pkg.Author)
		if author == "" {
			author = pkg.Publisher.Username
		}

		hits = append(hits, SearchHit{
			Name:          pkg.Name,
			Version:       pkg.Version,
			Description:   pkg.Description,
			Keywords:      extractKeywords(pkg.Keywords),
			Author:        author,
			PublishedAt:   publishedAt,
			RegistryURL:   pkg.Links.NPM,
			HomepageURL:   pkg.Links.Homepage,
			RepositoryURL: pkg.Links.Repository,
			Score:         obj.Score.Final,
			Quality:       obj.Score.Detail.Quality,
			Popularity:    obj.Score.Detail.Popularity,
			Maintenance:   obj.Score.Detail.Maintenance,
		})
	}

	return &SearchResult{Hits: hits, Total: resp.Total}, nil
}
