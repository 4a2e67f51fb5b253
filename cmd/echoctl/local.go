package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/STRATINT/echoloop/internal/app"
	"github.com/STRATINT/echoloop/internal/database"
	"github.com/STRATINT/echoloop/internal/engagement"
	"github.com/STRATINT/echoloop/internal/models"
)

const closeTimeout = 30 * time.Second

// withApp builds the full application for a one-shot command and closes it
// afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			db, err := app.OpenDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newInsightsCmd(opts *rootOptions) *cobra.Command {
	var recent, top int

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Compute the engagement insight from stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			db, err := app.OpenDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			store := database.NewEngagementRepository(db)
			recentPosts, err := store.GetRecentOriginatedPostsWithMetrics(cmd.Context(), recent)
			if err != nil {
				return err
			}
			topPosts, err := store.GetTopPerformingPosts(cmd.Context(), top)
			if err != nil {
				return err
			}

			insight := engagement.ComputeInsight(recentPosts, topPosts)
			return opts.print(cmd.OutOrStdout(), insight, func(w io.Writer) {
				writeInsight(w, insight)
			})
		},
	}

	cmd.Flags().IntVar(&recent, "recent", engagement.DefaultRecentSample, "number of recent posts averaged")
	cmd.Flags().IntVar(&top, "top", engagement.DefaultTopSample, "number of top posts analysed")
	return cmd
}

func writeInsight(w io.Writer, in models.Insight) {
	fmt.Fprintf(w, "Recent posts:        %d\n", in.RecentCount)
	fmt.Fprintf(w, "Average engagement:  %.2f\n", in.AverageEngagement)
	fmt.Fprintf(w, "Top posts:           %d\n", len(in.TopPosts))
	fmt.Fprintf(w, "Emoji:               %.0f%%\n", in.Patterns.EmojiPercent)
	fmt.Fprintf(w, "Mentions:            %.0f%%\n", in.Patterns.MentionPercent)
	fmt.Fprintf(w, "Hashtags:            %.0f%%\n", in.Patterns.HashtagPercent)
	fmt.Fprintf(w, "Questions:           %.0f%%\n", in.Patterns.QuestionPercent)
	fmt.Fprintf(w, "Average length:      %.0f chars\n", in.Patterns.AverageLength)
	for i, p := range in.TopPosts {
		fmt.Fprintf(w, "  #%d %s\n", i+1, oneLine(p.Text))
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newPostNowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post-now",
		Short: "Generate and publish one post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.PostScheduledTweet(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "post published")
				return nil
			})
		},
	}
}

func newTrendSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trend-summary",
		Short: "Generate and publish a market trend summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Orchestrator.PostTrendSummary(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "trend summary published")
				return nil
			})
		},
	}
}

func newPostCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>",
		Short: "Publish operator-written text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				post, err := a.Orchestrator.PublishManual(ctx, text)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), post, func(w io.Writer) {
					fmt.Fprintf(w, "published %s\n", post.ID)
				})
			})
		},
	}
}

func newReplyMentionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reply-mentions",
		Short: "Answer recent mentions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Orchestrator.CheckAndReplyToMentions(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "replied to %d mentions\n", n)
				return err
			})
		},
	}
}

func newPruneActivityCmd(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune-activity",
		Short: "Delete activity log entries older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			cfg, logger, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			db, err := app.OpenDatabase(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := database.NewActivityLogRepository(db).DeleteOlderThan(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d activity log entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest entry kept")
	return cmd
}
