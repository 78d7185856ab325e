package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
)

type checkResult struct {
	File   string                        `json:"file"`
	Valid  bool                          `json:"valid"`
	Error  string                        `json:"error,omitempty"`
	Report *searchindex.ValidationReport `json:"report,omitempty"`
}

func newCheckCmd(opts *options) *cobra.Command {
	var showWarnings bool
	cmd := &cobra.Command{
		Use:   "check <file>...",
		Short: "Decode and validate indexes; exits 1 if any is invalid",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]checkResult, 0, len(args))
			invalid := 0
			for _, path := range args {
				res := checkFile(path)
				if !res.Valid {
					invalid++
				}
				results = append(results, res)
			}

			out := cmd.OutOrStdout()
			if opts.json {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					printCheck(out, res, showWarnings)
				}
			}
			if invalid > 0 {
				if !opts.json {
					fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d indexes invalid\n", invalid, len(results))
				}
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showWarnings, "warnings", "w", false, "list warnings, not just their count")
	return cmd
}

func checkFile(path string) checkResult {
	idx, err := load(path)
	if err != nil {
		return checkResult{File: path, Error: err.Error()}
	}
	report := searchindex.Validate(idx)
	res := checkResult{File: path, Valid: report.Valid, Report: report}
	if !report.Valid {
		res.Error = report.Err().Error()
	}
	return res
}

func printCheck(w io.Writer, res checkResult, showWarnings bool) {
	if res.Report == nil {
		fmt.Fprintf(w, "FAIL %s: %s\n", res.File, res.Error)
		return
	}
	status := "ok  "
	if !res.Valid {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s %s: %d documents, %d terms, %d errors, %d warnings\n",
		status, res.File, res.Report.Stats.Documents, res.Report.Stats.Terms,
		len(res.Report.Errors), len(res.Report.Warnings))
	for _, issue := range res.Report.Errors {
		fmt.Fprintf(w, "    error   [%s] %s\n", issue.Code, issue.Message)
	}
	if showWarnings {
		for _, issue := range res.Report.Warnings {
			fmt.Fprintf(w, "    warning [%s] %s\n", issue.Code, issue.Message)
		}
	}
	if res.Report.Truncated {
		fmt.Fprintln(w, "    (issue list truncated)")
	}
}
