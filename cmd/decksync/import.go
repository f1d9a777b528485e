package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/decksync/decksync/internal/importer"
	"github.com/decksync/decksync/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge a foreign collection file into the local collection",
	Long: `Merge a foreign collection file into the local collection.

Every record in the foreign file ends up in the local collection;
nothing is pushed back and no local record is deleted. Conflicting
records keep the local version. The foreign file itself is never
modified. Media assets are reconciled by content hash after the record
merge.

Tags given with --tags are attached to newly added notes only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags := viper.GetString("tags")

		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		imp := importer.New(local, newLogger("[import] "))

		start := time.Now()
		count, err := imp.ImportFile(cmd.Context(), args[0], tags)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Imported %d notes from %s in %v\n",
			count, args[0], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	importCmd.Flags().String("tags", "", "space-delimited tags for newly imported notes")
	_ = viper.BindPFlag("tags", importCmd.Flags().Lookup("tags"))

	rootCmd.AddCommand(importCmd)
}

// openLocal opens and initializes the configured local collection.
func openLocal(cmd *cobra.Command) (*store.Store, error) {
	local, err := store.Open(collectionPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	if err := local.InitSchema(cmd.Context()); err != nil {
		_ = local.Close()
		return nil, err
	}
	return local, nil
}
