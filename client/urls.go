package client

import (
	"fmt"
	"strings"
)

// URLBuilder constructs URLs for a package on the registry.
type URLBuilder interface {
	Registry(name, version string) string
	Download(name, version string) string
	Documentation(name, version string) string
	PURL(name, version string) string
}

// NPMURLs builds npmjs.com and registry URLs for a package.
type NPMURLs struct {
	BaseURL string
}

func (u *NPMURLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

func (u *NPMURLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	shortName := name
	if strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		shortName = parts[1]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", strings.TrimSuffix(u.BaseURL, "/"), name, shortName, version)
}

func (u *NPMURLs) Documentation(name, version string) string {
	return u.Registry(name, version)
}

func (u *NPMURLs) PURL(name, version string) string {
	namespace := ""
	pkgName := name
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		namespace = parts[0]
		pkgName = parts[1]
	}

	purl := "pkg:npm/" + pkgName
	if namespace != "" {
		purl = fmt.Sprintf("pkg:npm/%s/%s", namespace, pkgName)
	}
	if version != "" {
		purl += "@" + version
	}
	return purl
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "registry", "download", "docs", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Registry(name, version); v != "" {
		result["registry"] = v
	}
	if v := urls.Download(name, version); v != "" {
		result["download"] = v
	}
	if v := urls.Documentation(name, version); v != "" {
		result["docs"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}
