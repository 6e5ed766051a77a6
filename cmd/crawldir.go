package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawldir/internal/aleph"
	"github.com/JakeFAU/crawldir/internal/config"
	"github.com/JakeFAU/crawldir/internal/crawler"
	"github.com/JakeFAU/crawldir/internal/metrics"
	"github.com/JakeFAU/crawldir/internal/policy/ratelimit"
)

// errNodesFailed is returned under --strict when any node failed.
var errNodesFailed = errors.New("some nodes failed to upload")

type crawlDirOptions struct {
	foreignID string
	languages []string
	casefile  bool
	noIndex   bool
	label     string
	category  string
	summary   string
	strict    bool
}

func newCrawlDirCmd(v *viper.Viper, globals *globalFlags) *cobra.Command {
	opts := &crawlDirOptions{}
	cmd := &cobra.Command{
		Use:   "crawldir PATH",
		Short: "Upload a file or directory tree into a collection",
		Long: `Crawl a directory and upload its content into the collection with the
given foreign id, creating the collection first when it does not exist.
Folders are recreated in Aleph and every file is linked to its folder.
Re-running against the same collection updates the same documents.`,
		Args: existingPath,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlDir(cmd, args[0], opts, globals)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.foreignID, "foreign-id", "f", "", "foreign id of the target collection (required)")
	f.StringArrayVarP(&opts.languages, "language", "l", nil, "language hint (ISO 639), repeatable")
	f.BoolVar(&opts.casefile, "casefile", false, "create the collection as a casefile")
	f.BoolVarP(&opts.noIndex, "noindex", "i", false, "do not index documents after ingest")
	f.StringVar(&opts.label, "label", "", "label for a newly created collection (default: foreign id)")
	f.StringVar(&opts.category, "category", "", "category for a newly created collection (default: other)")
	f.StringVar(&opts.summary, "summary", "", "summary for a newly created collection")
	f.BoolVar(&opts.strict, "strict", false, "exit non-zero when any file or folder fails to upload")
	f.Bool("nojunk", false, "skip hidden and system files and folders")
	f.IntP("parallel", "p", 1, "number of parallel file uploads")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while crawling")
	f.Float64("max-rps", 0, "maximum upload requests per second (0 for no limit)")
	if err := cmd.MarkFlagRequired("foreign-id"); err != nil {
		panic(err)
	}
	mustBindFlags(v, f, map[string]string{
		"crawl.nojunk":      "nojunk",
		"crawl.parallelism": "parallel",
		"metrics.addr":      "metrics-addr",
		"crawl.max_rps":     "max-rps",
	})
	return cmd
}

func existingPath(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("path %q: %w", args[0], err)
	}
	return nil
}

func runCrawlDir(cmd *cobra.Command, path string, opts *crawlDirOptions, globals *globalFlags) error {
	ctx := cmd.Context()
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, logger)
		defer stopMetricsServer(srv, logger)
	}

	recorders := appInstance.GetRecorder()
	spinner := newProgressRecorder(newProgressConfig(cmd.ErrOrStderr(), globals.quiet), "uploading")
	if spinner != nil {
		recorders = append(recorders, spinner)
	}

	c := crawler.New(appInstance.GetIngester(), crawlerOptions(cfg, opts, recorders), logger.Named("crawler"))
	summary, err := c.Crawl(ctx, path, opts.foreignID, aleph.CollectionConfig{
		Label:     opts.label,
		Languages: opts.languages,
		CaseFile:  opts.casefile,
		Category:  opts.category,
		Summary:   opts.summary,
	})
	spinner.Finish()
	if err != nil {
		return fmt.Errorf("crawldir: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "collection %s: %d uploaded, %d failed, %d retries in %s\n",
		summary.CollectionID, summary.Uploaded, summary.Failed, summary.Retries,
		summary.Duration.Round(time.Millisecond))
	if summary.Failed == 0 {
		return nil
	}
	for _, o := range appInstance.GetOutcomes().Failed() {
		fmt.Fprintf(out, "  failed: %s: %s\n", o.ForeignID, o.Error)
	}
	if opts.strict {
		return fmt.Errorf("%w: %d of %d", errNodesFailed, summary.Failed, summary.Failed+summary.Uploaded)
	}
	return nil
}

func crawlerOptions(cfg config.Config, opts *crawlDirOptions, rec crawler.Recorder) crawler.Options {
	var limiter crawler.Limiter
	if cfg.Crawl.MaxRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Crawl.MaxRPS, Burst: cfg.Crawl.Burst})
	}
	return crawler.Options{
		Parallelism: cfg.Crawl.Parallelism,
		SkipJunk:    cfg.Crawl.NoJunk,
		Executor: crawler.ExecutorConfig{
			Retries: cfg.Aleph.Retries,
			Index:   cfg.Crawl.Index && !opts.noIndex,
			Backoff: crawler.NewExponentialBackoff(cfg.BackoffInitial(), cfg.BackoffMax()),
			Limiter: limiter,
		},
		Recorder: rec,
	}
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func stopMetricsServer(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
