package merge

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters stripped during URL
// normalization. utm_* is matched by prefix.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"ref":    {},
	"source": {},
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased
// scheme and host, "www." stripped, trailing slash removed, tracking
// query parameters dropped, remaining parameters sorted, fragment
// discarded. Unparseable input falls back to a lowercased trim so two
// devices still agree on the key.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(trimmed, "/"))
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimRight(u.Path, "/")

	query := ""
	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			keys := make([]string, 0, len(values))
			for k := range values {
				if isTrackingParam(k) {
					continue
				}
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var parts []string
			for _, k := range keys {
				vals := values[k]
				sort.Strings(vals)
				for _, v := range vals {
					parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
				}
			}
			query = strings.Join(parts, "&")
		}
	}

	normalized := strings.ToLower(u.Scheme) + "://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	_, ok := trackingParams[lower]
	return ok
}
