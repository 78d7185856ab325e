package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

func newConvertCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Re-encode an index as JavaScript or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := searchindex.ParseFormat(format)
			if err != nil {
				return err
			}
			idx, err := load(args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return searchindex.Encode(cmd.OutOrStdout(), idx, f)
			}
			return writeAtomic(output, idx, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: js or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// writeAtomic writes through a temporary file in the target directory so
// that a watcher never sees a half-written index.
func writeAtomic(path string, idx *searchindex.Index, format searchindex.Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".docindex-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := searchindex.Encode(tmp, idx, format); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
