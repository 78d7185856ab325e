package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

type statsOutput struct {
	File       string            `json:"file"`
	Checksum   string            `json:"checksum"`
	EnvVersion json.RawMessage   `json:"envversion,omitempty"`
	Stats      searchindex.Stats `json:"stats"`
	HasTitles  bool              `json:"has_titles"`
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Print document, term and posting counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := load(args[0])
			if err != nil {
				return err
			}
			checksum, err := idx.Checksum()
			if err != nil {
				return err
			}
			s := statsOutput{
				File:       args[0],
				Checksum:   checksum,
				EnvVersion: idx.EnvVersion,
				Stats:      idx.Stats(),
				HasTitles:  idx.Titles != nil,
			}
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, s)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", s.File)
			fmt.Fprintf(tw, "documents\t%d\n", s.Stats.Documents)
			fmt.Fprintf(tw, "terms\t%d\n", s.Stats.Terms)
			fmt.Fprintf(tw, "title terms\t%d\n", s.Stats.TitleTerms)
			fmt.Fprintf(tw, "postings\t%d\n", s.Stats.Postings)
			if v, ok := idx.EnvVersionNumber(); ok {
				fmt.Fprintf(tw, "envversion\t%d\n", v)
			} else if len(s.EnvVersion) > 0 {
				fmt.Fprintf(tw, "envversion\t%s\n", s.EnvVersion)
			}
			fmt.Fprintf(tw, "checksum\t%s\n", s.Checksum)
			return tw.Flush()
		},
	}
}

func newDocsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "docs <file>",
		Short: "List the documents of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := load(args[0])
			if err != nil {
				return err
			}
			docs := idx.Documents()
			out := cmd.OutOrStdout()
			if opts.json {
				return writeJSON(out, docs)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tDOCNAME\tFILENAME\tTITLE")
			for _, d := range docs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.Filename, d.Title)
			}
			return tw.Flush()
		},
	}
}
