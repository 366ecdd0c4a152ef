package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"pagesync/internal/config"
	"pagesync/internal/record"
	"pagesync/internal/store"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	var fromFlag, toFlag, typeFlag string

	cmd := &cobra.Command{
		Use:   "posts <page-key>",
		Short: "List canonical posts for a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store, logger *slog.Logger) error {
				pageKey := args[0]
				posts, err := queryPosts(cmd, st, pageKey, fromFlag, toFlag, typeFlag)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(posts) == 0 {
					fmt.Fprintf(out, "No posts for page %s\n", pageKey)
					return nil
				}

				headers := []string{"ID", "Published", "Type", "Title", "Reactions", "Comments", "Shares", "Total"}
				rows := make([][]string, 0, len(posts))
				for _, post := range posts {
					rows = append(rows, []string{
						post.ID,
						post.PublishTime.Format("2006-01-02 15:04"),
						string(post.Type),
						clipTitle(post.Title, 40),
						fmt.Sprintf("%d", post.Metrics.Reactions),
						fmt.Sprintf("%d", post.Metrics.Comments),
						fmt.Sprintf("%d", post.Metrics.Shares),
						fmt.Sprintf("%d", post.TotalEngagement),
					})
				}
				aligns := []columnAlignment{
					alignLeft, alignLeft, alignLeft, alignLeft,
					alignRight, alignRight, alignRight, alignRight,
				}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				fmt.Fprintf(out, "%d posts\n", len(posts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&fromFlag, "from", "", "Only posts published on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Only posts published before this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&typeFlag, "type", "", "Only posts of this type (photo, video, reel, live, text, link)")
	return cmd
}

func queryPosts(cmd *cobra.Command, st *store.Store, pageKey, fromFlag, toFlag, typeFlag string) ([]*store.Post, error) {
	ctx := cmd.Context()
	if typeFlag != "" {
		postType := record.ParsePostType(typeFlag)
		if postType == record.TypeUnknown {
			return nil, fmt.Errorf("unknown post type %q", typeFlag)
		}
		return st.PostsByType(ctx, pageKey, postType)
	}
	if fromFlag != "" || toFlag != "" {
		from, to, err := parseWindow("--from", fromFlag, "--to", toFlag)
		if err != nil {
			return nil, err
		}
		if from.IsZero() {
			from = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		if to.IsZero() {
			to = time.Now().UTC().Add(24 * time.Hour)
		}
		return st.PostsByDateRange(ctx, pageKey, from, to)
	}
	return st.PostsByPage(ctx, pageKey)
}

func clipTitle(title string, limit int) string {
	runes := []rune(title)
	if len(runes) <= limit {
		return title
	}
	return string(runes[:limit-1]) + "…"
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show canonical store counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store, logger *slog.Logger) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				headers := []string{"Pages", "Posts", "Authoritative", "Synthetic", "Aliases"}
				rows := [][]string{{
					fmt.Sprintf("%d", stats.Pages),
					fmt.Sprintf("%d", stats.Posts),
					fmt.Sprintf("%d", stats.Authoritative),
					fmt.Sprintf("%d", stats.Synthetic),
					fmt.Sprintf("%d", stats.Aliases),
				}}
				aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				fmt.Fprintf(out, "Database: %s\n", st.Path())
				return nil
			})
		},
	}
}
