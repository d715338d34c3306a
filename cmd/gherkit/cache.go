package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/gherkit/pkg/models"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()
			if !a.cache.Enabled() {
				fmt.Println("Cache is disabled.")
				return nil
			}

			stats, err := a.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backend:  %s\n", stats.Backend)
			fmt.Printf("TTL:      %s\n", stats.TTL)
			fmt.Printf("Entries:  %d (%d expired)\n", stats.Entries, stats.Expired)
			fmt.Printf("  %-15s %d\n", models.KindHTMLFetch, stats.ByKind[models.KindHTMLFetch])
			fmt.Printf("  %-15s %d\n", models.KindLLMCompletion, stats.ByKind[models.KindLLMCompletion])
			fmt.Printf("Size:     %d bytes\n", stats.PayloadBytes)
			return nil
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()
			if !a.cache.Enabled() {
				fmt.Println("Cache is disabled.")
				return nil
			}

			start := time.Now()
			n, err := a.cache.Clear(cmd.Context(), expiredOnly)
			if err != nil {
				return err
			}
			if expiredOnly {
				fmt.Printf("Removed %d expired cache entries in %s.\n", n, time.Since(start).Round(time.Millisecond))
			} else {
				fmt.Printf("Removed %d cache entries in %s.\n", n, time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired entries")

	addConfigFlag(cmd, &configPath)
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
