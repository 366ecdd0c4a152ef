package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pagesync/internal/config"
	"pagesync/internal/dedup"
	"pagesync/internal/store"
)

func newDedupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Collapse duplicate posts left behind by past imports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store, logger *slog.Logger) error {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				auditor := dedup.New(cfg, st, logger)
				result, err := auditor.Run(runCtx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				headers := []string{"Pages", "Groups collapsed", "Posts deleted"}
				rows := [][]string{{
					fmt.Sprintf("%d", result.PagesAudited),
					fmt.Sprintf("%d", result.GroupsCollapsed),
					fmt.Sprintf("%d", result.PostsDeleted),
				}}
				aligns := []columnAlignment{alignRight, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
}
