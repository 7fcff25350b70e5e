package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoRootURL is returned when no root URL is given.
	ErrNoRootURL = errors.New("no root URL specified: provide the URL of the site to mirror")

	// ErrInvalidRootURL is returned when the root URL is not an absolute http(s) URL.
	ErrInvalidRootURL = errors.New("invalid root URL: must be an absolute http or https URL")

	// ErrEmptyOutputDir is returned when the output directory is empty.
	ErrEmptyOutputDir = errors.New("invalid output directory: must not be empty")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the worker count is negative.
	// Zero is valid and means unbounded.
	ErrInvalidWorkers = errors.New("invalid workers: must be non-negative (0 means unbounded)")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidProgressInterval is returned when the progress interval is negative.
	ErrInvalidProgressInterval = errors.New("invalid progress interval: must be non-negative (0 disables progress)")
)
