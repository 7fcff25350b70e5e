// Package mirror persists crawled resources under an output directory.
//
// A URL is mapped to a relative path by stripping the site prefix. The
// site root maps to the index file and a path ending in "/" gets the index
// file appended. Every write goes through an os.Root opened on the output
// directory, so a mapped path can never escape it, and ".." segments are
// rejected before any file is touched.
//
// Writes overwrite existing files. Running the same crawl twice against an
// unchanged site produces byte-identical files.
package mirror
