package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// LinkFilter decides which extracted links are pushed onto the frontier.
//
// A link is kept when it belongs to the site and passes the glob patterns:
//  1. It must contain Prefix, or start with it when Strict is set
//  2. If its path matches any IgnorePatterns entry it is dropped
//  3. If FollowPatterns is set its path must match at least one entry
type LinkFilter struct {
	// Prefix is the site root links are matched against.
	Prefix string

	// Strict switches the site check from containment to prefix matching.
	Strict bool

	// IgnorePatterns are URL path globs to skip, e.g. "/admin/*", "*.pdf".
	IgnorePatterns []string

	// FollowPatterns, when set, are the only URL path globs crawled.
	FollowPatterns []string
}

// Allow reports whether link should be enqueued.
func (f LinkFilter) Allow(link string) bool {
	if !f.sameSite(link) {
		return false
	}
	if len(f.IgnorePatterns) == 0 && len(f.FollowPatterns) == 0 {
		return true
	}
	return f.shouldCrawl(link)
}

// sameSite applies the site check.
func (f LinkFilter) sameSite(link string) bool {
	if f.Strict {
		return strings.HasPrefix(link, f.Prefix)
	}
	return strings.Contains(link, f.Prefix)
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
func (f LinkFilter) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range f.IgnorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(f.FollowPatterns) > 0 {
		for _, pattern := range f.FollowPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a separator also match the last path element.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
