package main

import (
	"context"
	"fmt"

	"github.com/avatarctic/realtime-core/internal/application/services"
	"github.com/avatarctic/realtime-core/internal/infrastructure/redis"
	"github.com/spf13/cobra"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cache entries",
	}

	// withAdmin connects a cache service for the duration of one command.
	withAdmin := func(cmd *cobra.Command, fn func(ctx context.Context, admin *services.CacheAdminService) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := root.logger(cmd.ErrOrStderr())
		cache, err := redis.NewCacheService(&cfg.Redis, &cfg.Cache, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := cache.Connect(ctx); err != nil {
			return err
		}
		defer func() { _ = cache.Disconnect() }()
		return fn(ctx, services.NewCacheAdminService(cache, logger))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show hit/miss counters and store figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				return printJSON(cmd.OutOrStdout(), admin.Stats(ctx))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				raw, ok := admin.Get(ctx, args[0])
				if !ok {
					return fmt.Errorf("key %q not found", args[0])
				}
				return printJSON(cmd.OutOrStdout(), raw)
			})
		},
	})

	var limit int
	keys := &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List keys matching a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				for _, k := range admin.Keys(ctx, pattern, limit) {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
	keys.Flags().IntVar(&limit, "limit", 100, "Maximum keys to print (0 = all)")
	cmd.AddCommand(keys)

	cmd.AddCommand(&cobra.Command{
		Use:   "del-pattern <glob>",
		Short: "Delete every key matching a glob pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				n, err := admin.InvalidatePattern(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "del-tag <tag>",
		Short: "Delete every key carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				n, err := admin.InvalidateTag(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys\n", n)
				return nil
			})
		},
	})

	var yes bool
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Wipe the cache database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(cmd, func(ctx context.Context, admin *services.CacheAdminService) error {
				if err := admin.Flush(ctx, yes); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cache flushed")
				return nil
			})
		},
	}
	flush.Flags().BoolVar(&yes, "yes", false, "Confirm the flush")
	cmd.AddCommand(flush)

	return cmd
}
