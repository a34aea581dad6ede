// Package pkgcode retrieves, enumerates, and inspects the source contents of
// published npm packages, and searches the package index.
//
// The core pipeline resolves a package manifest, streams its distribution
// archive, unpacks it into a per-package sandbox with the conventional
// wrapper directory stripped, then walks the unpacked tree to select code
// files under extension, size, and count constraints. A separate TTL'd cache
// aggregates seed searches into a popular-packages digest.
//
// Basic usage:
//
//	import "github.com/git-pkgs/pkgcode"
//
//	ex := pkgcode.New()
//	info, err := ex.PackageInfo(context.Background(), "react", "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(info.Name, info.Repository)
//
// Package identifiers may also be given in PURL form:
//
//	code, err := ex.PackageCode(context.Background(), "pkg:npm/@babel/core@7.24.0", "", "")
package pkgcode

import (
	"github.com/git-pkgs/pkgcode/client"
	"github.com/git-pkgs/pkgcode/fetch"
	"github.com/git-pkgs/pkgcode/internal/npm"
	"github.com/git-pkgs/pkgcode/tree"
)

// Re-export types from internal/npm
type (
	// Manifest describes one resolved package version.
	Manifest = npm.Manifest

	// SearchHit is one entry from the search endpoint.
	SearchHit = npm.SearchHit

	// SearchResult holds one page of search hits plus the total count.
	SearchResult = npm.SearchResult
)

// Re-export types from client and tree
type (
	// Client is the HTTP client used against the index service.
	Client = client.Client

	// URLBuilder constructs URLs for a package on the registry.
	URLBuilder = client.URLBuilder

	// CodeFile is one selected file: relative path plus text content.
	CodeFile = tree.CodeFile
)

// Error types
type (
	HTTPError     = client.HTTPError
	NotFoundError = client.NotFoundError
)

// Re-export errors
var (
	// ErrInvalidParams marks malformed caller input, always raised before
	// any network call.
	ErrInvalidParams = client.ErrInvalidParams

	// ErrNotFound marks a missing package, version, or file.
	ErrNotFound = client.ErrNotFound

	// ErrInvalidResponse marks an index response that cannot be decoded.
	ErrInvalidResponse = client.ErrInvalidResponse

	// ErrNotAFile marks a single-file request that resolved to a directory.
	ErrNotAFile = tree.ErrNotAFile

	// Archive pipeline failures, by stage.
	ErrDownload   = fetch.ErrDownload
	ErrDecompress = fetch.ErrDecompress
	ErrExtract    = fetch.ErrExtract
)

// MaxSearchSize is the largest accepted search page size.
const MaxSearchSize = npm.MaxSearchSize

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	return client.BuildURLs(urls, name, version)
}
