// Package popular aggregates a fixed set of seed searches into a ranked
// "popular packages" digest, cached for a configurable time-to-live.
package popular

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/pkgcode/internal/npm"
)

// Searcher is the slice of the registry client the cache needs.
type Searcher interface {
	Search(ctx context.Context, query string, size, from int) (*npm.SearchResult, error)
}

const (
	// DefaultTTL is how long a computed digest is served without any
	// network I/O.
	DefaultTTL = 24 * time.Hour
	// DefaultSeedLimit bounds how many of the configured seed queries are
	// issued per recomputation.
	DefaultSeedLimit = 5
	// DefaultTop is how many ranked packages the digest keeps.
	DefaultTop = 50

	seedPageSize = 10
)

// DefaultSeedQueries are the search terms used to build the digest.
func DefaultSeedQueries() []string {
	return []string{
		"react", "vue", "angular", "express", "typescript",
		"webpack", "lodash", "axios", "jest", "eslint",
	}
}

// Scorer ranks one accumulated hit; higher ranks earlier.
type Scorer func(npm.SearchHit) float64

// DefaultScorer is a heuristic, not a contract: shorter names, a present
// description, and more keywords all score higher. Replace it via Config
// when a real popularity signal is available.
func DefaultScorer(hit npm.SearchHit) float64 {
	score := 0.0
	if n := len(hit.Name); n > 0 {
		score += 10.0 / float64(n)
	}
	if hit.Description != "" {
		score += 2.0
	}
	score += 0.5 * float64(len(hit.Keywords))
	return score
}

// Config carries the cache tuning knobs. Zero values fall back to the
// package defaults.
type Config struct {
	TTL         time.Duration
	SeedQueries []string
	SeedLimit   int
	Top         int
	Scorer      Scorer
	Logger      *log.Logger
}

// Cache holds a single digest slot behind its own lock. Concurrent Digest
// calls during recomputation serialize; within the TTL they share the
// stored text with no network I/O.
type Cache struct {
	searcher Searcher
	cfg      Config

	mu      sync.Mutex
	digest  string
	created time.Time
}

// New creates a digest cache over the given searcher.
func New(searcher Searcher, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if len(cfg.SeedQueries) == 0 {
		cfg.SeedQueries = DefaultSeedQueries()
	}
	if cfg.SeedLimit <= 0 {
		cfg.SeedLimit = DefaultSeedLimit
	}
	if cfg.SeedLimit > len(cfg.SeedQueries) {
		cfg.SeedLimit = len(cfg.SeedQueries)
	}
	if cfg.Top <= 0 {
		cfg.Top = DefaultTop
	}
	if cfg.Scorer == nil {
		cfg.Scorer = DefaultScorer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &Cache{searcher: searcher, cfg: cfg}
}

// Digest returns the cached digest when it is fresh, otherwise recomputes
// it from the seed searches. A failed individual seed search is logged and
// skipped; partial results are acceptable. An error is returned only when
// every seed search failed.
func (c *Cache) Digest(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.digest != "" && time.Since(c.created) < c.cfg.TTL {
		return c.digest, nil
	}

	digest, err := c.recompute(ctx)
	if err != nil {
		return "", err
	}
	c.digest = digest
	c.created = time.Now()
	return digest, nil
}

// Invalidate drops the cached digest so the next Digest call recomputes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.digest = ""
	c.created = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) recompute(ctx context.Context) (string, error) {
	seeds := c.cfg.SeedQueries[:c.cfg.SeedLimit]

	seen := make(map[string]npm.SearchHit)
	var order []string
	failures := 0
	for _, seed := range seeds {
		result, err := c.searcher.Search(ctx, seed, seedPageSize, 0)
		if err != nil {
			failures++
			c.cfg.Logger.Warn("seed search failed", "seed", seed, "err", err)
			continue
		}
		for _, hit := range result.Hits {
			if _, ok := seen[hit.Name]; ok {
				continue
			}
			seen[hit.Name] = hit
			order = append(order, hit.Name)
		}
	}
	if failures == len(seeds) {
		return "", fmt.Errorf("all %d seed searches failed", len(seeds))
	}

	hits := make([]npm.SearchHit, 0, len(order))
	for _, name := range order {
		hits = append(hits, seen[name])
	}
	sort.SliceStable(hits, func(i, j int) bool {
		si, sj := c.cfg.Scorer(hits[i]), c.cfg.Scorer(hits[j])
		if si != sj {
			return si > sj
		}
		return hits[i].Name < hits[j].Name
	})
	if len(hits) > c.cfg.Top {
		hits = hits[:c.cfg.Top]
	}

	return formatDigest(hits, len(seeds)), nil
}

func formatDigest(hits []npm.SearchHit, seedCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Popular npm packages (%d packages from %d seed searches)\n", len(hits), seedCount)
	for i, hit := range hits {
		desc := hit.Description
		if desc == "" {
			desc = "no description"
		}
		fmt.Fprintf(&b, "%2d. %s@%s - %s\n", i+1, hit.Name, hit.Version, desc)
	}
	return b.String()
}
