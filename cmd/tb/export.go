package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskboard/taskboard/internal/store"
	"github.com/taskboard/taskboard/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "setup",
	Short:   "Export tasks, users and workspaces",
	Long: `Write the full board as JSON or YAML.

Example usage:
  tb export > board.json
  tb export --format yaml -o board.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		ctx, cancel := requestContext()
		defer cancel()
		db := openBackend(ctx)
		defer db.Close()
		snap := readStore(ctx, db).Snapshot()

		var w io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				fail("failed to create %s: %v", output, err)
			}
			defer f.Close()
			w = f
		}

		if err := writeSnapshot(w, snap, format); err != nil {
			fail("%v", err)
		}
		if output != "" {
			fmt.Fprintf(os.Stderr, "%s Exported %d tasks to %s\n", ui.RenderPass("✓"), len(snap.Tasks), output)
		}
	},
}

// writeSnapshot encodes snap as "json" or "yaml".
func writeSnapshot(w io.Writer, snap store.Snapshot, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (use json or yaml)", format)
	}
	return nil
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "Output format (json, yaml)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	rootCmd.AddCommand(exportCmd)
}
