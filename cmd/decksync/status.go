package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/decksync/decksync/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local collection status",
	Long: `Display the current state of the local collection.

Shows:
  - Collection file location and size
  - Record counts per kind
  - Media asset bookkeeping count
  - Current update sequence number`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := collectionPath()

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			fmt.Printf("Collection not initialized at %s\n", path)
			fmt.Printf("Run 'decksync init' to create it\n")
			return nil
		}
		if err != nil {
			return err
		}

		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		usn, err := local.USN(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Collection: %s (%d bytes)\n", path, info.Size())
		for _, kind := range types.Kinds {
			count, err := local.Count(cmd.Context(), kind)
			if err != nil {
				return err
			}
			fmt.Printf("  %-10s %d\n", kind+":", count)
		}
		entries, err := local.ListMedia(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("  %-10s %d\n", "media:", len(entries))
		fmt.Printf("  usn:       %d\n", usn)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		fmt.Printf("Initialized collection at %s\n", collectionPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(initCmd)
}
