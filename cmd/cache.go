package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var clearYes bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached face tracks",
}

var cacheListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List all cached tracks",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheList(cmd.Context(), cmd.OutOrStdout())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear [key...]",
	Short:        "Delete cached tracks",
	Long:         "Deletes the named cache entries. Without keys, every entry is deleted after confirmation.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheClear(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), args)
	},
}

var cacheResetCmd = &cobra.Command{
	Use:          "reset",
	Short:        "Drop the cache tables (database backends)",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		resetter, ok := Cache.(interface {
			Reset(ctx context.Context) error
		})
		if !ok {
			return fmt.Errorf("the %s cache has no tables to drop; use 'cache clear'", cacheBackend)
		}
		reader := bufio.NewReader(cmd.InOrStdin())
		if !clearYes && !confirm(cmd.OutOrStdout(), reader, "⚠️  Are you sure you want to DROP all cache tables?") {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "🗑️  Clearing Database...")
		if err := resetter.Reset(cmd.Context()); err != nil {
			utils.ShowError("Failed to reset database", err, nil)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✨ Cache Reset Complete.")
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
	cacheResetCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd, cacheResetCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(ctx context.Context, out io.Writer) error {
	entries, err := Cache.List(ctx)
	if err != nil {
		utils.ShowError("Failed to list cache", err, nil)
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No cached tracks found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KEY\tFRAMES\tREVISION\tUPDATED")
	fmt.Fprintln(w, "---\t------\t--------\t-------")

	for _, e := range entries {
		rev := e.Revision
		if len(rev) > 8 {
			rev = rev[:8]
		}
		if rev == "" {
			rev = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Key, e.Frames, rev, e.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runCacheClear(ctx context.Context, out io.Writer, in io.Reader, keys []string) error {
	if len(keys) == 0 {
		entries, err := Cache.List(ctx)
		if err != nil {
			utils.ShowError("Failed to list cache", err, nil)
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No cached tracks found.")
			return nil
		}
		prompt := fmt.Sprintf("⚠️  Are you sure you want to delete all %d cached tracks?", len(entries))
		if !clearYes && !confirm(out, bufio.NewReader(in), prompt) {
			return nil
		}
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
	}

	for _, key := range keys {
		if err := Cache.Delete(ctx, key); err != nil {
			utils.ShowError("Failed to delete "+key, err, nil)
			return err
		}
		fmt.Fprintf(out, "🗑️  Deleted %s\n", key)
	}
	return nil
}

func confirm(out io.Writer, r *bufio.Reader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
