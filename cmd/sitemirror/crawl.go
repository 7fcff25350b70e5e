package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/nao1215/sitemirror/internal/log"
	"github.com/nao1215/sitemirror/internal/mirror"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/report"
	"github.com/nao1215/sitemirror/internal/transport"
	"github.com/spf13/cobra"
)

var (
	// errCrawlCancelled is returned when the crawl was interrupted.
	errCrawlCancelled = errors.New("crawl cancelled: the mirror is partial")

	// errPageFailures is returned with --fail-on-error when a page failed.
	errPageFailures = errors.New("some pages could not be mirrored")
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <root-url>",
		Short: "Mirror a website to a local directory",
		Long: `Crawl fetches the root URL, follows every link that stays on the same site
and writes each resource to the output directory.

A link is followed when it contains the prefix (the root URL unless --prefix
is given). With --strict-prefix the link must start with it instead.
Files are written to the path that remains after removing the prefix from
the URL. URLs ending in "/" are written as index.html.

Images are stored byte for byte. Every other response is treated as text
and searched for links.

Examples:
  # Mirror a site into ./files
  sitemirror crawl https://books.toscrape.com/

  # Mirror into a custom directory with 4 workers
  sitemirror crawl -o ./books -w 4 https://books.toscrape.com/

  # Only follow the catalogue section
  sitemirror crawl --prefix https://books.toscrape.com/catalogue/ https://books.toscrape.com/

  # Go through a SOCKS5 proxy
  sitemirror crawl --proxy 127.0.0.1:9050 http://example.com/

  # Write a Markdown summary to a file
  sitemirror crawl -m -r report.md https://books.toscrape.com/

Configuration file (.sitemirror) example:
  sites:
    books.toscrape.com:
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      ignorePatterns:
        - "/logout*"`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Output flags
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir,
		"Directory the mirror is written to")
	cmd.Flags().String("index-file", config.DefaultIndexFile,
		"File name used for URLs ending in /")

	// Crawl behavior flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Maximum number of pages processed concurrently (0 means unbounded)")
	cmd.Flags().String("prefix", "",
		"Only follow links containing this string (default: the root URL)")
	cmd.Flags().Bool("strict-prefix", false,
		"Only follow links starting with the prefix")
	cmd.Flags().DurationP("progress", "P", config.DefaultProgressInterval,
		"Interval between progress lines on stderr (0 disables them)")

	// Transport flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address ([user:password@]host:port)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of bytes read from one response")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemirror in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON summary (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown summary (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write the summary to the specified file path (creates directories if needed)")
	cmd.Flags().Bool("fail-on-error", false,
		"Exit with an error when any page could not be mirrored")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing in-flight pages...")
			cancel()
		case <-ctx.Done():
		}
	}()

	summary, err := runCrawl(ctx, cfg, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}

	if err := outputReport(cfg, summary, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// The run is recorded even after an interrupt.
	if err := saveRun(context.WithoutCancel(ctx), cfg, summary, logger); err != nil {
		logger.Error("failed to save run", "error", err)
	}

	if summary.Cancelled {
		return errCrawlCancelled
	}
	if cfg.FailOnError && summary.Stats.FailureCount() > 0 {
		return fmt.Errorf("%w: %d failure(s)", errPageFailures, summary.Stats.FailureCount())
	}
	return nil
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if len(args) > 0 {
		cfg.RootURL = args[0]
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.IndexFile, err = flags.GetString("index-file"); err != nil {
		return nil, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.Prefix, err = flags.GetString("prefix"); err != nil {
		return nil, err
	}
	if cfg.StrictPrefix, err = flags.GetBool("strict-prefix"); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval, err = flags.GetDuration("progress"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.FailOnError, err = flags.GetBool("fail-on-error"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not found.
	// If no path was specified, silently use an empty config.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	return cfg, nil
}

// setupLogger creates a structured logger that masks secrets.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	return log.NewSecureLogger(w, verbose)
}

// siteConfigFor returns the merged configuration file entry for the
// root URL's host.
func siteConfigFor(cfg *config.Config) config.SiteConfig {
	u, err := url.Parse(cfg.RootURL)
	if err != nil {
		return cfg.SiteConfigs.GetSiteConfig("")
	}
	return cfg.SiteConfigs.GetSiteConfig(u.Host)
}

// runCrawl mirrors cfg.RootURL and returns the run summary.
// progress receives the periodic progress lines.
func runCrawl(ctx context.Context, cfg *config.Config, progress io.Writer, logger *slog.Logger) (*model.CrawlSummary, error) {
	site := siteConfigFor(cfg)

	// Flags take precedence over the configuration file.
	if cfg.Prefix == "" && site.Prefix != "" {
		cfg.Prefix = site.Prefix
	}
	if len(site.BinaryTypes) > 0 {
		cfg.BinaryContentTypes = site.BinaryTypes
	}
	prefix := cfg.EffectivePrefix()

	clientOpts := []transport.Option{
		transport.WithTimeout(cfg.Timeout),
	}
	if cfg.ProxyAddress != "" {
		address, user, password := splitProxyAddress(cfg.ProxyAddress)
		clientOpts = append(clientOpts, transport.WithProxy(address))
		if user != "" {
			clientOpts = append(clientOpts, transport.WithProxyAuth(user, password))
		}
	}
	if u, err := url.Parse(cfg.RootURL); err == nil {
		clientOpts = append(clientOpts, transport.WithSiteHost(u.Host))
	}
	if site.Cookie != "" {
		clientOpts = append(clientOpts, transport.WithCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		clientOpts = append(clientOpts, transport.WithHeaders(site.Headers))
	}

	client, err := transport.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	writer, err := mirror.NewWriter(cfg.OutputDir, prefix, mirror.WithIndexFile(cfg.IndexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open output directory: %w", err)
	}
	defer writer.Close()

	fetcher := crawler.NewHTTPFetcher(client,
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
	)

	processor := crawler.NewProcessor(fetcher, crawler.NewParser(), writer,
		crawler.WithPrefix(prefix),
		crawler.WithStrictPrefix(cfg.StrictPrefix),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithBinaryContentTypes(cfg.BinaryContentTypes),
		crawler.WithProcessorLogger(logger),
	)

	coordinator := crawler.NewCoordinator(processor,
		crawler.WithWorkers(cfg.Workers),
		crawler.WithLogger(logger),
		crawler.WithProgress(progress, cfg.ProgressInterval),
	)

	logger.Info("starting crawl",
		"root", cfg.RootURL,
		"prefix", prefix,
		"output", writer.Dir(),
		"workers", cfg.Workers,
	)

	result, err := coordinator.Run(ctx, cfg.RootURL)
	if err != nil {
		return nil, err
	}

	summary := processor.Summary(result)
	summary.RootURL = cfg.RootURL
	summary.OutputDir = writer.Dir()
	return summary, nil
}

// splitProxyAddress separates optional credentials from a proxy address
// of the form [user:password@]host:port.
func splitProxyAddress(raw string) (address, user, password string) {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw, "", ""
	}
	user, password, _ = strings.Cut(raw[:at], ":")
	return raw[at+1:], user, password
}

// outputReport writes the run summary in the requested format to the
// report file, or to stdout when no file is configured.
func outputReport(cfg *config.Config, summary *model.CrawlSummary, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(output, cfg.JSONReport, cfg.MarkdownReport, cfg.Verbose).Write(summary)
	return err
}

// newReportWriter selects the report format.
func newReportWriter(w io.Writer, jsonOutput, markdownOutput, verbose bool) report.Writer {
	switch {
	case jsonOutput:
		return report.NewFullJSONWriter(w, getVersion(), report.WithPrettyPrint())
	case markdownOutput:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(verbose))
	}
}

// saveRun records the run in the history database if enabled.
func saveRun(ctx context.Context, cfg *config.Config, summary *model.CrawlSummary, logger *slog.Logger) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, summary)
	if err != nil {
		return err
	}

	logger.Info("run saved to database", "id", id, "path", db.Path())
	return nil
}
