package config

import (
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemirror"

	// DefaultOutputDir is the directory the mirror is written to when
	// --output-dir is not given.
	DefaultOutputDir = "files"

	// DefaultIndexFile is the file name used for URLs that map to an empty
	// path, such as the root page.
	DefaultIndexFile = "index.html"

	// DefaultWorkers caps the number of concurrently running page tasks.
	// Tasks are I/O bound, so the cap exists to bound open sockets and file
	// handles rather than CPU.
	DefaultWorkers = 16

	// DefaultTimeout bounds a single HTTP request including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits the number of bytes read from one response.
	DefaultMaxBodySize = 50 * 1024 * 1024 // 50MB

	// DefaultProgressInterval is how often progress lines are printed.
	DefaultProgressInterval = 5 * time.Second

	// DefaultUserAgent identifies sitemirror in HTTP requests.
	DefaultUserAgent = "sitemirror/1.0 (+https://github.com/nao1215/sitemirror)"
)

// DefaultBinaryContentTypes are the media types persisted verbatim without
// text decoding or link extraction.
var DefaultBinaryContentTypes = []string{
	"image/x-icon",
	"image/vnd.microsoft.icon",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

// Config holds all configuration options for a crawl.
// It is populated from CLI flags and the configuration file and passed
// through the application explicitly rather than kept in global state.
type Config struct {
	// RootURL is the seed URL the crawl starts from.
	RootURL string

	// Prefix is the same-site filter. An extracted link is followed only if
	// its string contains Prefix. Empty means RootURL.
	Prefix string

	// StrictPrefix switches the same-site filter from substring containment
	// to a string prefix match.
	StrictPrefix bool

	// OutputDir is the directory the mirror is written to.
	OutputDir string

	// IndexFile is the file name for URLs that map to an empty path.
	IndexFile string

	// Workers caps concurrently running page tasks. 0 means unbounded.
	Workers int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxBodySize is the maximum number of bytes read from one response.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// BinaryContentTypes are the media types stored verbatim.
	BinaryContentTypes []string

	// ProgressInterval is how often progress is reported. 0 disables it.
	ProgressInterval time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the default search locations are used.
	ConfigFilePath string

	// SiteConfigs holds the per-site settings loaded from the configuration file.
	SiteConfigs *File

	// JSONReport prints the run summary as JSON.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport prints the run summary as Markdown.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the summary to a file instead of stdout.
	ReportFile string

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// DBDir is the directory holding the history database.
	DBDir string

	// FailOnError makes the crawl command exit non-zero when any page failed.
	FailOnError bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:          DefaultOutputDir,
		IndexFile:          DefaultIndexFile,
		Workers:            DefaultWorkers,
		Timeout:            DefaultTimeout,
		MaxBodySize:        DefaultMaxBodySize,
		UserAgent:          DefaultUserAgent,
		BinaryContentTypes: append([]string(nil), DefaultBinaryContentTypes...),
		ProgressInterval:   DefaultProgressInterval,
		SaveToDB:           true,
		DBDir:              XDGDataDir(),
	}
}

// EffectivePrefix returns the same-site filter string: Prefix when set,
// RootURL otherwise.
func (c *Config) EffectivePrefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return c.RootURL
}

// XDGDataDir returns the XDG data directory for sitemirror.
// On Linux: ~/.local/share/sitemirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemirror.
// On Linux: ~/.config/sitemirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found as one of the sentinel errors in errors.go.
func (c *Config) Validate() error {
	if c.RootURL == "" {
		return ErrNoRootURL
	}

	u, err := url.Parse(c.RootURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidRootURL
	}

	if c.OutputDir == "" {
		return ErrEmptyOutputDir
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize <= 0 {
		return ErrInvalidMaxBodySize
	}

	if c.ProgressInterval < 0 {
		return ErrInvalidProgressInterval
	}

	return nil
}
