package page

import (
	"net/url"
	"strings"
)

// enginePatterns maps known search engine hosts to their query parameter.
type enginePattern struct {
	host  string
	param string
}

var enginePatterns = []enginePattern{
	{"www.google.com", "q"},
	{"www.google.co.jp", "q"},
	{"www.bing.com", "q"},
	{"search.yahoo.com", "p"},
	{"search.yahoo.co.jp", "p"},
	{"duckduckgo.com", "q"},
	{"www.baidu.com", "wd"},
}

// genericParams are tried when no engine pattern matches, so in-site search
// pages still yield a usable query.
var genericParams = []string{"q", "query", "search", "keyword", "s", "p"}

// QueryFromURL extracts the search query from a URL. Known engines are
// checked first by host; otherwise common query parameters are tried in
// order. Returns "" when nothing looks like a search query.
func QueryFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	values := u.Query()

	for _, p := range enginePatterns {
		if u.Host == p.host || strings.HasSuffix(u.Host, "."+p.host) {
			if q := values.Get(p.param); q != "" {
				return q
			}
		}
	}
	for _, param := range genericParams {
		if q := values.Get(param); q != "" {
			return q
		}
	}
	return ""
}

// IsSearchURL reports whether the URL belongs to a search results page.
func IsSearchURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, frag := range []string{"google.", "bing.", "yahoo.", "duckduckgo.", "baidu.", "search."} {
		if strings.Contains(host, frag) {
			return true
		}
	}
	return false
}
