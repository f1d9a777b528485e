package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/decksync/decksync/internal/media"
	"github.com/decksync/decksync/internal/store"
	"github.com/decksync/decksync/internal/types"
)

var mediaCmd = &cobra.Command{
	Use:   "media DECK",
	Short: "Reconcile media from a foreign collection, records untouched",
	Long: `Run the bulk media pass only: copy media assets from the given
collection's media directory into the local one, compared by content
hash. Files sharing a name with different content are kept under
disambiguated names; nothing is ever overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		foreign, err := store.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open foreign collection: %w", err)
		}
		defer foreign.Close()

		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		srcDir, err := foreign.MediaDir()
		if err != nil {
			return err
		}
		dstDir, err := local.MediaDir()
		if err != nil {
			return err
		}

		src, err := media.NewDirStore(srcDir)
		if err != nil {
			return err
		}
		dst, err := media.NewDirStore(dstDir)
		if err != nil {
			return err
		}

		syncer := media.NewSyncer(src, dst, &media.Config{Logger: newLogger("[media] ")})
		result, err := syncer.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("media pass failed: %w", err)
		}

		// Refresh bookkeeping from the reconciled directory.
		files, err := dst.List()
		if err != nil {
			return err
		}
		for _, f := range files {
			entry := &types.MediaEntry{Filename: f.Name, Hash: f.Hash}
			if err := local.UpsertMedia(cmd.Context(), entry); err != nil {
				return err
			}
		}

		fmt.Printf("Media pass complete: copied=%d renamed=%d skipped=%d failed=%d\n",
			len(result.Copied), len(result.Renamed), result.Skipped, len(result.Failed))
		for _, ferr := range result.Failed {
			fmt.Printf("  failed: %v\n", ferr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mediaCmd)
}
