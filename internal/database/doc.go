// Package database stores crawl run history in SQLite.
//
// Every crawl run is saved with its counters and one row per admitted URL,
// so later runs of the same site can be listed and compared file by file.
// The database lives in a single file, sitemirror.db, in the XDG data
// directory unless another directory is given.
//
// modernc.org/sqlite is a CGO-free driver, so the binary stays statically
// linkable. The connection pool is limited to one connection because
// SQLite allows only one writer; a run is written in one transaction after
// the crawl has finished.
package database
