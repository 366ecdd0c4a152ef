package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pagesync/internal/config"
	"pagesync/internal/notifications"
	"pagesync/internal/reconcile"
	"pagesync/internal/sources/bulkexport"
	"pagesync/internal/sources/graph"
	"pagesync/internal/store"
)

const dateLayout = "2006-01-02"

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var sinceFlag, untilFlag string
	var skipExports bool

	cmd := &cobra.Command{
		Use:   "sync [page-key...]",
		Short: "Reconcile pages from the Graph API and local exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			since, until, err := parseWindow("--since", sinceFlag, "--until", untilFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store, logger *slog.Logger) error {
				pageKeys, err := selectPages(cfg, args)
				if err != nil {
					return err
				}

				client := graph.NewClient(cfg)
				sources := []reconcile.PageSource{
					graph.NewSource(cfg, client, since, until, logger),
				}
				if !skipExports {
					sources = append(sources, bulkexport.NewSource(cfg, logger))
				}

				return runReconciliation(cmd, cfg, st, logger, pageKeys, sources)
			})
		},
	}

	cmd.Flags().StringVar(&sinceFlag, "since", "", "Start of the sync window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&untilFlag, "until", "", "End of the sync window (YYYY-MM-DD, exclusive)")
	cmd.Flags().BoolVar(&skipExports, "skip-exports", false, "Reconcile from the Graph API only")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import [page-key...]",
		Short: "Reconcile pages from local CSV exports only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store, logger *slog.Logger) error {
				pageKeys, err := selectPages(cfg, args)
				if err != nil {
					return err
				}
				sources := []reconcile.PageSource{bulkexport.NewSource(cfg, logger)}
				return runReconciliation(cmd, cfg, st, logger, pageKeys, sources)
			})
		},
	}
}

func runReconciliation(cmd *cobra.Command, cfg *config.Config, st *store.Store, logger *slog.Logger, pageKeys []string, sources []reconcile.PageSource) error {
	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier := notifications.NewService(cfg)
	coordinator := reconcile.New(cfg, st, logger)

	summary, err := coordinator.Run(runCtx, pageKeys, sources)
	if err != nil {
		_ = notifier.NotifyError(runCtx, err, "reconciliation run")
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderSummary(summary))
	if summary.Failed() {
		for _, failure := range summary.Failures {
			fmt.Fprintln(out, colorize(out, ansiRed, "  failed: "+failure.Err.Error()))
		}
		_ = notifier.NotifyRunFailed(runCtx, summary)
		return fmt.Errorf("reconciliation finished with %d failures", len(summary.Failures))
	}
	fmt.Fprintln(out, colorize(out, ansiGreen, "Reconciliation complete"))
	return notifier.NotifyRunCompleted(runCtx, summary)
}

func renderSummary(summary *reconcile.Summary) string {
	headers := []string{"Pages", "Created", "Merged", "Skipped", "Failures", "Duration"}
	rows := [][]string{{
		fmt.Sprintf("%d", summary.PagesProcessed),
		fmt.Sprintf("%d", summary.Created),
		fmt.Sprintf("%d", summary.Merged),
		fmt.Sprintf("%d", summary.Skipped),
		fmt.Sprintf("%d", len(summary.Failures)),
		summary.Duration().Round(time.Millisecond).String(),
	}}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

// selectPages resolves the pages a command operates on: explicit
// arguments when given, otherwise every configured page.
func selectPages(cfg *config.Config, args []string) ([]string, error) {
	if len(args) > 0 {
		for _, key := range args {
			if _, ok := cfg.Graph.Pages[key]; !ok {
				return nil, fmt.Errorf("page %q not configured (known: %s)", key, strings.Join(configuredPages(cfg), ", "))
			}
		}
		return args, nil
	}
	pages := configuredPages(cfg)
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages configured; add a [graph.pages.<key>] section to the config")
	}
	return pages, nil
}

func configuredPages(cfg *config.Config) []string {
	pages := make([]string, 0, len(cfg.Graph.Pages))
	for key := range cfg.Graph.Pages {
		pages = append(pages, key)
	}
	sort.Strings(pages)
	return pages
}

func parseWindow(startName, startFlag, endName, endFlag string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if strings.TrimSpace(startFlag) != "" {
		start, err = time.Parse(dateLayout, startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse %s: %w", startName, err)
		}
	}
	if strings.TrimSpace(endFlag) != "" {
		end, err = time.Parse(dateLayout, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse %s: %w", endName, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%s must be after %s", endName, startName)
	}
	return start, end, nil
}
