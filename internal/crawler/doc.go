// Package crawler mirrors a local directory tree into an Aleph collection.
//
// A single scanner goroutine walks the tree breadth-first through a scan
// queue, creating each folder remotely before listing it so that every child
// carries its parent's remote id. Files are handed to a fixed pool of upload
// workers through a second queue. Crawl returns once the tree is enumerated,
// the upload queue has drained and every worker has been released with a
// poison pill.
package crawler
