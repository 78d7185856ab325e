// Package parser turns a raw query string into a QueryPlan: the terms a
// document must match, the terms that exclude it, and whether required terms
// combine with AND (the default) or OR.
package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// QueryTerm is a stemmed term plus the unstemmed word it came from. Alt
// holds the Porter2 stem when it differs from Term.
type QueryTerm struct {
	Term string `json:"term"`
	Alt  string `json:"alt,omitempty"`
	Raw  string `json:"raw"`
}

type QueryPlan struct {
	Terms        []QueryTerm
	Type         QueryType
	ExcludeTerms []QueryTerm
	RawQuery     string
}

// Parse builds a plan. "OR"/"AND" switch the combination mode for the whole
// query; "NOT word" and "-word" exclude documents matching word.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]QueryTerm, 0),
		ExcludeTerms: make([]QueryTerm, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	seen := make(map[string]struct{})
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false
		if rest, ok := strings.CutPrefix(word, "-"); ok && rest != "" {
			word = rest
			exclude = true
		}
		for _, tok := range tokenizer.Tokenize(word) {
			qt := QueryTerm{Term: tok.Term, Alt: tok.Alt, Raw: tok.Raw}
			key := tok.Term
			if exclude {
				key = "-" + key
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if exclude {
				plan.ExcludeTerms = append(plan.ExcludeTerms, qt)
			} else {
				plan.Terms = append(plan.Terms, qt)
			}
		}
	}
	return plan
}

// Normalized renders the plan canonically (sorted terms, explicit mode) so
// that equivalent queries share a cache entry.
func (p *QueryPlan) Normalized() string {
	join := func(terms []QueryTerm) string {
		parts := make([]string, len(terms))
		for i, t := range terms {
			parts[i] = t.Term
			if t.Raw != "" && t.Raw != t.Term {
				parts[i] += "~" + t.Raw
			}
		}
		sort.Strings(parts)
		return strings.Join(parts, ",")
	}
	out := p.Type.String() + "|" + join(p.Terms)
	if len(p.ExcludeTerms) > 0 {
		out += "|NOT:" + join(p.ExcludeTerms)
	}
	return out
}
