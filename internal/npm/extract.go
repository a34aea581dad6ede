package npm

import (
	"sort"
	"strings"
)

// The registry stores several manifest fields in historically inconsistent
// shapes (string, object, or array). The extract helpers accept all of them.

func extractString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
		if s, ok := arr[0].(string); ok {
			return s
		}
	}
	return ""
}

func extractRepoURL(repo interface{}) string {
	switch r := repo.(type) {
	case string:
		return normalizeGitURL(r)
	case map[string]interface{}:
		if url, ok := r["url"].(string); ok {
			return normalizeGitURL(url)
		}
	case []interface{}:
		if len(r) > 0 {
			if m, ok := r[0].(map[string]interface{}); ok {
				if url, ok := m["url"].(string); ok {
					return normalizeGitURL(url)
				}
			}
		}
	}
	return ""
}

func normalizeGitURL(u string) string {
	u = strings.TrimPrefix(u, "git+")
	u = strings.TrimPrefix(u, "git://")
	u = strings.TrimSuffix(u, ".git")
	if strings.HasPrefix(u, "github.com/") {
		u = "https://" + u
	}
	return u
}

func extractLicense(v interface{}) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]interface{}:
		if t, ok := l["type"].(string); ok {
			return t
		}
	case []interface{}:
		var licenses []string
		for _, item := range l {
			switch li := item.(type) {
			case string:
				licenses = append(licenses, li)
			case map[string]interface{}:
				if t, ok := li["type"].(string); ok {
					licenses = append(licenses, t)
				}
			}
		}
		return strings.Join(licenses, ",")
	}
	return ""
}

func extractKeywords(v interface{}) []string {
	switch k := v.(type) {
	case []interface{}:
		keywords := make([]string, 0, len(k))
		for _, item := range k {
			if s, ok := item.(string); ok && s != "" {
				keywords = append(keywords, s)
			}
		}
		return keywords
	case []string:
		return k
	case string:
		// A few old packages publish keywords as a comma-separated string.
		var keywords []string
		for _, s := range strings.Split(k, ",") {
			if s = strings.TrimSpace(s); s != "" {
				keywords = append(keywords, s)
			}
		}
		return keywords
	}
	return nil
}

func extractPerson(v interface{}) string {
	switch p := v.(type) {
	case string:
		return p
	case map[string]interface{}:
		if name, ok := p["name"].(string); ok {
			return name
		}
	}
	return ""
}

func coalesceString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
