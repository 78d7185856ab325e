package searchindex

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Issue codes.
const (
	CodeLengthMismatch   = "length_mismatch"
	CodeIndexOutOfRange  = "index_out_of_range"
	CodeEmptyTerm        = "empty_term"
	CodeDuplicateDocName = "duplicate_docname"
	CodeDuplicatePosting = "duplicate_posting"
	CodeOrphanDocument   = "orphan_document"
	CodeNegativeWeight   = "negative_weight"
)

// maxIssues bounds each list in a report; a corrupt index with millions of
// bad postings still yields a readable report.
const maxIssues = 1000

// Issue is a single violation found by Validate.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Term    string `json:"term,omitempty"`
	Doc     *int   `json:"doc,omitempty"`
	Message string `json:"message"`
}

// ValidationReport lists every error and warning found in an index. Errors
// break the index contract; warnings are suspicious but harmless to search.
type ValidationReport struct {
	Valid     bool    `json:"valid"`
	Errors    []Issue `json:"errors"`
	Warnings  []Issue `json:"warnings"`
	Truncated bool    `json:"truncated,omitempty"`
	Stats     Stats   `json:"stats"`
}

// Err returns nil for a valid report and otherwise an error wrapping
// apperrors.ErrInvalidIndex that summarises the first error.
func (r *ValidationReport) Err() error {
	if r.Valid {
		return nil
	}
	first := r.Errors[0]
	return fmt.Errorf("%w: %d error(s), first: %s", apperrors.ErrInvalidIndex, len(r.Errors), first.Message)
}

func (r *ValidationReport) addError(issue Issue) {
	if len(r.Errors) >= maxIssues {
		r.Truncated = true
		return
	}
	r.Errors = append(r.Errors, issue)
}

func (r *ValidationReport) addWarning(issue Issue) {
	if len(r.Warnings) >= maxIssues {
		r.Truncated = true
		return
	}
	r.Warnings = append(r.Warnings, issue)
}

// Validate checks the structural invariants of idx and reports every
// violation rather than stopping at the first:
//   - docnames, filenames (and titles when present) have equal length;
//   - every document index referenced from terms/titleterms is in range;
//   - every term key is a non-empty string.
func Validate(idx *Index) *ValidationReport {
	r := &ValidationReport{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Stats:    idx.Stats(),
	}
	n := len(idx.DocNames)

	if len(idx.Filenames) != n {
		r.addError(Issue{
			Code:    CodeLengthMismatch,
			Field:   fieldFilenames,
			Message: fmt.Sprintf("filenames has %d entries, docnames has %d", len(idx.Filenames), n),
		})
	}
	if idx.Titles != nil && len(idx.Titles) != n {
		r.addError(Issue{
			Code:    CodeLengthMismatch,
			Field:   fieldTitles,
			Message: fmt.Sprintf("titles has %d entries, docnames has %d", len(idx.Titles), n),
		})
	}

	seenNames := make(map[string]int, n)
	for i, name := range idx.DocNames {
		if first, dup := seenNames[name]; dup {
			r.addWarning(Issue{
				Code:    CodeDuplicateDocName,
				Field:   fieldDocNames,
				Doc:     intPtr(i),
				Message: fmt.Sprintf("docname %q at %d repeats entry %d", name, i, first),
			})
			continue
		}
		seenNames[name] = i
	}

	referenced := make([]bool, n)
	checkPostings(r, fieldTerms, idx.Terms, n, referenced)
	checkPostings(r, fieldTitleTerms, idx.TitleTerms, n, referenced)

	for i, ok := range referenced {
		if !ok {
			r.addWarning(Issue{
				Code:    CodeOrphanDocument,
				Field:   fieldDocNames,
				Doc:     intPtr(i),
				Message: fmt.Sprintf("document %d (%s) is not referenced by any term", i, idx.DocNames[i]),
			})
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func checkPostings(r *ValidationReport, field string, m map[string]PostingList, n int, referenced []bool) {
	terms := make([]string, 0, len(m))
	for term := range m {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			r.addError(Issue{
				Code:    CodeEmptyTerm,
				Field:   field,
				Term:    term,
				Message: fmt.Sprintf("%s contains an empty term key", field),
			})
		}
		pl := m[term]
		for i, p := range pl {
			if p.Doc < 0 || p.Doc >= n {
				r.addError(Issue{
					Code:    CodeIndexOutOfRange,
					Field:   field,
					Term:    term,
					Doc:     intPtr(p.Doc),
					Message: fmt.Sprintf("%s[%q] references document %d, valid range is [0, %d)", field, term, p.Doc, n),
				})
				continue
			}
			referenced[p.Doc] = true
			if p.Weight < 0 {
				r.addWarning(Issue{
					Code:    CodeNegativeWeight,
					Field:   field,
					Term:    term,
					Doc:     intPtr(p.Doc),
					Message: fmt.Sprintf("%s[%q] gives document %d weight %d", field, term, p.Doc, p.Weight),
				})
			}
			if i > 0 && pl[i-1].Doc == p.Doc {
				r.addWarning(Issue{
					Code:    CodeDuplicatePosting,
					Field:   field,
					Term:    term,
					Doc:     intPtr(p.Doc),
					Message: fmt.Sprintf("%s[%q] lists document %d more than once", field, term, p.Doc),
				})
			}
		}
	}
}

func intPtr(i int) *int { return &i }
