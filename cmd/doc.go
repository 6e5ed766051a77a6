// Package cmd implements the alephclient command line.
//
// Architecture overview:
//   - Root command: loads config.Config through Viper (file, CRAWLDIR_* and legacy ALEPH_* variables, flags),
//     builds the zap logger and an app.App holding the Aleph client and the outcome recorders.
//   - crawldir: resolves or creates the target collection, then runs crawler.Crawler. One scanner goroutine
//     walks the tree breadth-first and creates folders before their children are queued; a fixed pool of
//     upload workers sized by crawl.parallelism streams files to the ingest endpoint.
//   - Failures: transient errors (5xx, network) are retried with jittered exponential back-off up to
//     aleph.retries attempts; anything else skips the node and the crawl carries on. The summary line reports
//     the counts and --strict turns any failure into a non-zero exit.
//   - Observability: zap logs carry collection ids, foreign ids and attempts; Prometheus metrics are served on
//     metrics.addr while the crawl runs; outcomes can be persisted to Postgres via ledger.dsn.
package cmd
