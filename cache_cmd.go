package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/tickspeak/internal/cache"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect the lead-in clip cache",
		Long:  paragraph(fmt.Sprintf("\nShow, prune or %s the rendered lead-in clips kept between runs.", keyword("clear"))),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dc, err := openClipCacheForCmd()
			if err != nil {
				return err
			}
			defer dc.Close() //nolint:errcheck

			fmt.Fprintln(cmd.OutOrStdout(), dc.Path())
			fmt.Fprintln(cmd.OutOrStdout(), dc.Stats())
			return nil
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached lead-in clip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dc, err := openClipCacheForCmd()
			if err != nil {
				return err
			}
			defer dc.Close() //nolint:errcheck

			n, err := dc.Clear()
			if err != nil {
				return fmt.Errorf("unable to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d clips from %s\n", n, dc.Path())
			return nil
		},
	}

	pruneOlderThan time.Duration

	cachePruneCmd = &cobra.Command{
		Use:     "prune",
		Short:   "Delete cached lead-in clips older than a given age",
		Example: paragraph("tickspeak cache prune --older-than 720h"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pruneOlderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			dc, err := openClipCacheForCmd()
			if err != nil {
				return err
			}
			defer dc.Close() //nolint:errcheck

			n := dc.Prune(pruneOlderThan)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d clips older than %s from %s\n", n, pruneOlderThan, dc.Path())
			return nil
		},
	}
)

func openClipCacheForCmd() (*cache.DiskCache, error) {
	dir, err := clipCacheDir(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := cache.NewDiskCache(cache.DefaultConfig(dir))
	if err != nil {
		return nil, fmt.Errorf("unable to open cache at %s: %w", dir, err)
	}
	return dc, nil
}

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "minimum age of clips to delete")
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)
}
