package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minios-linux/locsync/i18n"
)

// ---------------------------------------------------------------------------
// cache (inspect / clear)
// ---------------------------------------------------------------------------

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the translation cache",
	}
	cmd.AddCommand(newCacheStatsCmd(), newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached translations per language",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(providerFlags{}, false)
			if err != nil {
				return err
			}
			defer p.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", i18n.T("Cache:"), p.cache.Path())
			for _, s := range p.cache.Stats() {
				fmt.Fprintf(out, "  %-10s %d\n", s.Lang, s.Entries)
			}
			fmt.Fprintf(out, "  %-10s %d\n", i18n.T("total"), p.cache.Len())

			files, keys := p.snaps.Stats()
			fmt.Fprintf(out, "%s %s\n", i18n.T("Snapshots:"), p.snaps.Path())
			fmt.Fprintf(out, "  %d %s, %d %s\n", files, i18n.T("files"), keys, i18n.T("keys"))
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var withSnapshots bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached translation",
		Long: `Remove every cached translation. Snapshots are kept, so the next sync
still only retranslates keys whose source changed; pass --snapshots to
forget them too and retranslate everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(providerFlags{}, false)
			if err != nil {
				return err
			}
			defer p.close()

			n := p.cache.Len()
			p.cache.Clear()
			if err := p.cache.Save(); err != nil {
				return fmt.Errorf("saving cache: %w", err)
			}
			p.log.Success(i18n.T("Removed %d cached translation(s)"), n)

			if withSnapshots {
				p.snaps.Reset()
				if err := p.snaps.Save(); err != nil {
					return fmt.Errorf("saving snapshots: %w", err)
				}
				p.log.Success(i18n.T("Snapshots cleared"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withSnapshots, "snapshots", false, "Also clear source snapshots")
	return cmd
}
