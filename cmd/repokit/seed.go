package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repokit/examples/blogging"
	"repokit/idgen"
	"repokit/validation"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the blogging schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				if err := blogging.Migrate(ctx, a.db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
				return nil
			})
		},
	}
}

func newSeedCmd() *cobra.Command {
	var (
		opts blogging.SeedOptions
		node int64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and insert demo blogs, posts and comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.All(
				validation.NonNegative(opts.Blogs, "count"),
				validation.NonNegative(opts.PostsPerBlog, "posts"),
				validation.NonNegative(opts.CommentsPerPost, "comments"),
			); err != nil {
				return err
			}
			ids, err := idgen.New(node)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				if err := blogging.Migrate(ctx, a.db); err != nil {
					return err
				}
				if err := blogging.Seed(ctx, a.uow, a.repos, ids, opts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d blogs (%d posts, %d comments each)\n",
					opts.Blogs, opts.PostsPerBlog, opts.CommentsPerPost)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.Blogs, "count", 50, "number of blogs")
	f.IntVar(&opts.PostsPerBlog, "posts", 2, "posts per blog")
	f.IntVar(&opts.CommentsPerPost, "comments", 2, "comments per post")
	f.Int64Var(&node, "node", 1, "id generator node")
	return cmd
}
