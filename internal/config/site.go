package config

// SiteConfig holds site-specific configuration for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Prefix overrides the same-site filter string for this site.
	Prefix string `yaml:"prefix,omitempty"`

	// IgnorePatterns are URL path patterns that are never enqueued.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict enqueued links to matching URL paths.
	// If empty, every same-site link is followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// BinaryTypes overrides the media types stored verbatim.
	BinaryTypes []string `yaml:"binaryTypes,omitempty"`
}

// File represents the structure of the .sitemirror configuration file.
type File struct {
	// Sites maps hosts (e.g. "books.toscrape.com") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merging the
// site-specific entry over the defaults. A nil File yields a zero SiteConfig.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Prefix != "" {
		result.Prefix = siteConfig.Prefix
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if len(siteConfig.BinaryTypes) > 0 {
		result.BinaryTypes = siteConfig.BinaryTypes
	}

	return result
}
