package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/decksync/decksync/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Dump the local collection to a JSONL file",
	Long: `Dump the local collection to a JSONL file, one record envelope per
line: templates first, then notes, then cards. The output can be
rebuilt into an importable collection with 'decksync build'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := openLocal(cmd)
		if err != nil {
			return err
		}
		defer local.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		if err := export.WriteJSONL(cmd.Context(), local, f); err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported collection to %s\n", args[0])
		return nil
	},
}

var buildCmd = &cobra.Command{
	Use:   "build JSONL DECK",
	Short: "Build an importable collection file from JSONL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open JSONL file: %w", err)
		}
		defer f.Close()

		st, err := export.BuildStore(cmd.Context(), f, args[1])
		if err != nil {
			return fmt.Errorf("build failed: %w", err)
		}
		defer st.Close()

		fmt.Printf("Built collection %s from %s\n", args[1], args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(buildCmd)
}
