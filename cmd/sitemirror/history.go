package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemirror/internal/config"
	"github.com/nao1215/sitemirror/internal/database"
	"github.com/spf13/cobra"
)

// errRootURLRequired is returned when a history query needs a site.
var errRootURLRequired = errors.New("root URL is required (use --list-sites to see recorded sites)")

// NewHistoryCmd creates the history command.
// This command reads past runs from the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [root-url]",
		Short: "Show and compare recorded crawl runs",
		Long: `History displays runs recorded by 'sitemirror crawl'.

Every crawl stores its summary and the files it wrote. History can list the
recorded sites, list the runs of a site, show one run again, or compare the
two latest runs of a site. The comparison shows which files were added,
removed, or changed between the runs.

Examples:
  # List all recorded sites
  sitemirror history --list-sites

  # List the runs of a site
  sitemirror history https://books.toscrape.com/

  # Show the summary of run 3
  sitemirror history --run-id 3

  # Compare the two latest runs of a site
  sitemirror history --diff https://books.toscrape.com/

  # Output the comparison in JSON format
  sitemirror history --diff --json https://books.toscrape.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-sites", "L", false,
		"List all sites with recorded runs")
	cmd.Flags().BoolP("list", "l", false,
		"List the runs of the specified site (default when a root URL is given)")
	cmd.Flags().Int64P("run-id", "i", 0,
		"Show the summary of a run by ID (use --list to see available IDs)")
	cmd.Flags().Bool("diff", false,
		"Compare the two latest runs of the specified site")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// historyOptions holds the parsed flags of the history command.
type historyOptions struct {
	rootURL   string
	listSites bool
	list      bool
	runID     int64
	diff      bool
	json      bool
	markdown  bool
	dbDir     string
	verbose   bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}
	if (opts.list || opts.diff) && opts.rootURL == "" {
		return errRootURLRequired
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.runID > 0:
		return showRun(ctx, db, out, opts)
	case opts.diff:
		return showDiff(ctx, db, out, opts)
	case opts.list || opts.rootURL != "":
		return listRuns(ctx, db, out, opts)
	default:
		return listSites(ctx, db, out, opts)
	}
}

// parseHistoryFlags reads the history command flags.
func parseHistoryFlags(cmd *cobra.Command, args []string) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{verbose: getVerboseFlag(cmd)}
	if len(args) > 0 {
		opts.rootURL = args[0]
	}

	var err error
	if opts.listSites, err = flags.GetBool("list-sites"); err != nil {
		return nil, err
	}
	if opts.list, err = flags.GetBool("list"); err != nil {
		return nil, err
	}
	if opts.runID, err = flags.GetInt64("run-id"); err != nil {
		return nil, err
	}
	if opts.diff, err = flags.GetBool("diff"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.listSites {
		opts.rootURL = ""
		opts.list = false
	}
	return opts, nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// listSites lists every root URL with recorded runs.
func listSites(ctx context.Context, db *database.MirrorDB, out io.Writer, opts *historyOptions) error {
	sites, err := db.ListSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if opts.json {
		return writeJSON(out, sites)
	}

	if len(sites) == 0 {
		fmt.Fprintln(out, "No recorded sites found in the database.")
		fmt.Fprintln(out, "\nUse 'sitemirror crawl <root-url>' to mirror a site.")
		return nil
	}

	fmt.Fprintf(out, "Recorded sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Fprintf(out, "  • %s\n", site)
	}
	fmt.Fprintln(out, "\nUse 'sitemirror history <root-url>' to see the runs of a site.")

	return nil
}

// listRuns lists the recorded runs of one site.
func listRuns(ctx context.Context, db *database.MirrorDB, out io.Writer, opts *historyOptions) error {
	runs, err := db.ListRuns(ctx, opts.rootURL)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if opts.json {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", opts.rootURL)
		fmt.Fprintln(out, "\nUse 'sitemirror crawl' to mirror this site.")
		return nil
	}

	fmt.Fprintf(out, "Run history for %s (%d runs):\n\n", opts.rootURL, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-9s  %7s  %8s  %s\n", "ID", "Date", "Status", "Files", "Failures", "Output")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))

	for _, run := range runs {
		status := "complete"
		if run.Cancelled {
			status = "cancelled"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-9s  %7d  %8d  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			status,
			run.Stats.Written,
			run.Stats.FailureCount(),
			run.OutputDir,
		)
	}

	fmt.Fprintln(out, "\nUse 'sitemirror history --run-id <id>' to show a run.")
	fmt.Fprintln(out, "Use 'sitemirror history --diff <root-url>' to compare the latest two runs.")

	return nil
}

// showRun renders the summary of one recorded run.
func showRun(ctx context.Context, db *database.MirrorDB, out io.Writer, opts *historyOptions) error {
	summary, err := db.GetRun(ctx, opts.runID)
	if err != nil {
		return fmt.Errorf("failed to get run %d: %w", opts.runID, err)
	}

	_, err = newReportWriter(out, opts.json, opts.markdown, opts.verbose).Write(summary)
	return err
}

// showDiff compares the two latest runs of a site.
func showDiff(ctx context.Context, db *database.MirrorDB, out io.Writer, opts *historyOptions) error {
	diff, err := db.DiffLatest(ctx, opts.rootURL)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("%w (use 'sitemirror crawl' to record another run)", err)
		}
		return fmt.Errorf("failed to compare runs: %w", err)
	}

	_, err = newReportWriter(out, opts.json, opts.markdown, opts.verbose).WriteDiff(diff)
	return err
}
