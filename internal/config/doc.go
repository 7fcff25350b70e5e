// Package config provides configuration structures and utilities for sitemirror.
// It defines the crawl settings, the per-site YAML configuration file, and the
// XDG directories used for the run database.
package config
