package pkgcode

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/git-pkgs/purl"

	"github.com/git-pkgs/pkgcode/client"
	"github.com/git-pkgs/pkgcode/fetch"
	"github.com/git-pkgs/pkgcode/internal/npm"
	"github.com/git-pkgs/pkgcode/popular"
	"github.com/git-pkgs/pkgcode/tree"
)

// PURL is a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
// Supports both package PURLs (pkg:npm/react) and version PURLs
// (pkg:npm/react@18.2.0).
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// NotSpecified is the placeholder rendered for absent optional metadata.
const NotSpecified = "not specified"

// PackageInfo is the normalized metadata record for one package version.
// Optional fields that the manifest omits hold NotSpecified.
type PackageInfo struct {
	Name        string
	Version     string
	Description string
	License     string
	Homepage    string
	Repository  string
	Author      string
	Keywords    []string

	DependencyCount    int
	DevDependencyCount int

	// Links maps "registry", "download", "docs", and "purl" to URLs.
	Links map[string]string
}

// FileListing is the full relative-path inventory of one unpacked package.
type FileListing struct {
	Name    string
	Version string
	Files   []string
}

// CodeListing holds selected code files from one unpacked package. Total is
// the number of allow-listed candidates found; when it exceeds len(Files)
// the listing was capped.
type CodeListing struct {
	Name    string
	Version string
	Files   []CodeFile
	Total   int
}

// Remaining reports how many candidates exist beyond the returned files.
func (c *CodeListing) Remaining() int {
	if n := c.Total - len(c.Files); n > 0 {
		return n
	}
	return 0
}

// SearchPage is one page of search hits plus the pagination that produced it.
type SearchPage struct {
	Query string
	Hits  []SearchHit
	Total int
	Size  int
	From  int
}

// Extractor downloads an archive and unpacks it into a sandbox, returning
// the sandbox root.
type Extractor interface {
	FetchAndExtract(ctx context.Context, archiveURL, packageName string) (string, error)
}

// Explorer composes the registry client, archive pipeline, file selector,
// and popularity cache behind the package-level operations. It is safe for
// concurrent use.
type Explorer struct {
	registry *npm.Registry
	fetcher  Extractor
	selector *tree.Selector
	popular  *popular.Cache
	logger   *log.Logger
}

type explorerConfig struct {
	registryURL    string
	registryClient *client.Client
	registryOpts   []npm.Option
	fetchOpts      []fetch.Option
	selectorOpts   []tree.SelectorOption
	popularCfg     popular.Config
	breaker        bool
	logger         *log.Logger
}

// ExplorerOption configures an Explorer.
type ExplorerOption func(*explorerConfig)

// WithRegistryURL points the explorer at an npm-compatible index other than
// the public registry.
func WithRegistryURL(u string) ExplorerOption {
	return func(c *explorerConfig) {
		c.registryURL = u
	}
}

// WithRegistryClient replaces the HTTP client used for index requests.
func WithRegistryClient(cl *client.Client) ExplorerOption {
	return func(c *explorerConfig) {
		c.registryClient = cl
	}
}

// WithRegistryOptions forwards options to the registry client.
func WithRegistryOptions(opts ...npm.Option) ExplorerOption {
	return func(c *explorerConfig) {
		c.registryOpts = append(c.registryOpts, opts...)
	}
}

// WithFetchOptions forwards options to the archive fetcher.
func WithFetchOptions(opts ...fetch.Option) ExplorerOption {
	return func(c *explorerConfig) {
		c.fetchOpts = append(c.fetchOpts, opts...)
	}
}

// WithSandboxDir sets the parent directory for extraction sandboxes.
func WithSandboxDir(dir string) ExplorerOption {
	return func(c *explorerConfig) {
		c.fetchOpts = append(c.fetchOpts, fetch.WithSandboxDir(dir))
	}
}

// WithSelectorOptions forwards options to the code-file selector.
func WithSelectorOptions(opts ...tree.SelectorOption) ExplorerOption {
	return func(c *explorerConfig) {
		c.selectorOpts = append(c.selectorOpts, opts...)
	}
}

// WithPopularity replaces the popularity cache configuration.
func WithPopularity(cfg popular.Config) ExplorerOption {
	return func(c *explorerConfig) {
		c.popularCfg = cfg
	}
}

// WithCircuitBreaker wraps archive downloads in per-host circuit breakers.
func WithCircuitBreaker() ExplorerOption {
	return func(c *explorerConfig) {
		c.breaker = true
	}
}

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(l *log.Logger) ExplorerOption {
	return func(c *explorerConfig) {
		c.logger = l
	}
}

// New creates an Explorer against the public npm registry. All options are
// optional; the zero configuration is fully usable.
func New(opts ...ExplorerOption) *Explorer {
	cfg := explorerConfig{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := npm.New(cfg.registryURL, cfg.registryClient, cfg.registryOpts...)

	base := fetch.NewFetcher(cfg.fetchOpts...)
	var fetcher Extractor = base
	if cfg.breaker {
		fetcher = fetch.NewCircuitBreakerFetcher(base)
	}

	selectorOpts := append([]tree.SelectorOption{tree.WithLogger(cfg.logger)}, cfg.selectorOpts...)

	if cfg.popularCfg.Logger == nil {
		cfg.popularCfg.Logger = cfg.logger
	}

	return &Explorer{
		registry: registry,
		fetcher:  fetcher,
		selector: tree.NewSelector(selectorOpts...),
		popular:  popular.New(registry, cfg.popularCfg),
		logger:   cfg.logger,
	}
}

// URLs returns the URL builder for the configured registry.
func (e *Explorer) URLs() URLBuilder {
	return e.registry.URLs()
}

// resolveIdentifier normalizes a package identifier. Plain names pass
// through; "pkg:npm/..." identifiers are parsed, and a version embedded in
// the PURL is used when no explicit version was given.
func (e *Explorer) resolveIdentifier(name, version string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: package name must be a non-empty string", client.ErrInvalidParams)
	}
	if !strings.HasPrefix(name, "pkg:") {
		return name, strings.TrimSpace(version), nil
	}

	p, err := ParsePURL(name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", client.ErrInvalidParams, err)
	}
	if p.Type != "npm" {
		return "", "", fmt.Errorf("%w: unsupported PURL type %q", client.ErrInvalidParams, p.Type)
	}
	if version = strings.TrimSpace(version); version == "" {
		version = p.Version
	}
	return p.FullName(), version, nil
}

// PackageInfo fetches and normalizes metadata for one package version. An
// empty version resolves the latest release.
func (e *Explorer) PackageInfo(ctx context.Context, name, version string) (*PackageInfo, error) {
	name, version, err := e.resolveIdentifier(name, version)
	if err != nil {
		return nil, err
	}

	m, err := e.registry.FetchManifest(ctx, name, version)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("resolved manifest", "name", m.Name, "version", m.Version)

	return &PackageInfo{
		Name:               m.Name,
		Version:            m.Version,
		Description:        orNotSpecified(m.Description),
		License:            orNotSpecified(m.License),
		Homepage:           orNotSpecified(m.Homepage),
		Repository:         orNotSpecified(m.Repository),
		Author:             orNotSpecified(m.Author),
		Keywords:           m.Keywords,
		DependencyCount:    len(m.Dependencies),
		DevDependencyCount: len(m.DevDependencies),
		Links:              BuildURLs(e.registry.URLs(), m.Name, m.Version),
	}, nil
}

// PackageFiles downloads one package version and lists every file in its
// unpacked tree, dependency caches and VCS internals excluded.
func (e *Explorer) PackageFiles(ctx context.Context, name, version string) (*FileListing, error) {
	m, root, err := e.unpack(ctx, name, version)
	if err != nil {
		return nil, err
	}

	files, err := tree.ListFiles(root)
	if err != nil {
		return nil, err
	}
	return &FileListing{Name: m.Name, Version: m.Version, Files: files}, nil
}

// PackageCode downloads one package version and returns its code files. When
// filePath is non-empty exactly that file is read, bypassing the extension
// allow-list and size cap; otherwise up to the configured cap of code files
// is selected from the tree.
func (e *Explorer) PackageCode(ctx context.Context, name, version, filePath string) (*CodeListing, error) {
	m, root, err := e.unpack(ctx, name, version)
	if err != nil {
		return nil, err
	}

	if filePath != "" {
		cf, err := e.selector.ReadOne(root, filePath)
		if err != nil {
			return nil, err
		}
		return &CodeListing{Name: m.Name, Version: m.Version, Files: []CodeFile{*cf}, Total: 1}, nil
	}

	files, total, err := e.selector.Collect(root)
	if err != nil {
		return nil, err
	}
	return &CodeListing{Name: m.Name, Version: m.Version, Files: files, Total: total}, nil
}

// Search queries the package index and echoes the effective pagination.
func (e *Explorer) Search(ctx context.Context, query string, size, from int) (*SearchPage, error) {
	if size <= 0 {
		size = 20
	}
	if from < 0 {
		from = 0
	}

	result, err := e.registry.Search(ctx, query, size, from)
	if err != nil {
		return nil, err
	}
	return &SearchPage{
		Query: strings.TrimSpace(query),
		Hits:  result.Hits,
		Total: result.Total,
		Size:  size,
		From:  from,
	}, nil
}

// Popular returns the popular-packages digest, recomputing it from seed
// searches when the cached copy has expired.
func (e *Explorer) Popular(ctx context.Context) (string, error) {
	return e.popular.Digest(ctx)
}

// unpack resolves the manifest and extracts the tarball into its sandbox.
func (e *Explorer) unpack(ctx context.Context, name, version string) (*Manifest, string, error) {
	name, version, err := e.resolveIdentifier(name, version)
	if err != nil {
		return nil, "", err
	}

	m, err := e.registry.FetchManifest(ctx, name, version)
	if err != nil {
		return nil, "", err
	}

	e.logger.Debug("fetching archive", "name", m.Name, "version", m.Version, "url", m.TarballURL)

	root, err := e.fetcher.FetchAndExtract(ctx, m.TarballURL, m.Name)
	if err != nil {
		return nil, "", err
	}
	return m, root, nil
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotSpecified
	}
	return s
}
