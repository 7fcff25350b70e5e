// Package main provides the entry point for the sitemirror CLI.
//
// sitemirror mirrors a website to a local directory. It starts from a root
// URL, follows same-site links with a bounded pool of concurrent workers and
// writes every fetched resource to a path derived from its URL.
//
// Usage:
//
//	sitemirror crawl <root-url>
//	sitemirror history <root-url>
//
// See --help for all available options.
package main

// main is the entry point for sitemirror.
func main() {
	Execute()
}
