package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
)

func newQueryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <file> <query...>",
		Short: "Run a search against an index file",
		Long: `Run a search with the same semantics as the server: words are required
(AND), "OR" switches to any-match, and "-word" or "NOT word" excludes.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			idx, err := load(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			res, err := executor.New().Execute(cmd.Context(), name, idx, parser.Parse(query), limit)
			if err != nil {
				return err
			}
			res.Query = query

			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "%d hits for %q\n", res.TotalHits, query)
			if len(res.Results) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tDOCNAME\tTITLE")
			for _, r := range res.Results {
				fmt.Fprintf(tw, "%g\t%s\t%s\n", r.Score, r.DocName, r.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	return cmd
}
