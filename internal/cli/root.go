// Package cli implements docindex, the offline companion of the docsearch
// service: it checks, inspects, queries and re-encodes search-index
// artifacts on disk without a running server.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

// errInvalid is returned by check when at least one file is invalid. The
// per-file details have already been printed.
var errInvalid = errors.New("one or more indexes are invalid")

type options struct {
	json     bool
	logLevel string
}

// NewRootCmd builds the docindex command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "docindex",
		Short:         "Inspect and query documentation search indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `docindex reads searchindex.js artifacts produced by documentation
generators (or their JSON form) and checks, lists, queries or converts them.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print machine-readable JSON")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCheckCmd(opts),
		newStatsCmd(opts),
		newDocsCmd(opts),
		newQueryCmd(opts),
		newConvertCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		return 1
	}
	return 0
}

func load(path string) (*searchindex.Index, error) {
	return searchindex.DecodeFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
