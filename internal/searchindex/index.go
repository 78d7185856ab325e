// Package searchindex models the search-index artifact emitted by
// documentation generators such as Sphinx (searchindex.js): a flat object of
// parallel document lists plus term -> document postings. It decodes the
// artifact, re-encodes it, and checks its structural invariants.
package searchindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Posting is one reference from a term to a document. Weight is zero unless
// the artifact annotates the reference with a [doc, weight] pair.
type Posting struct {
	Doc    int
	Weight int
}

// PostingList is sorted by Doc ascending.
type PostingList []Posting

// Document is the positional record correlating a page's name, source file
// and display title.
type Document struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
}

// Stats summarises the size of an index.
type Stats struct {
	Documents  int `json:"documents"`
	Terms      int `json:"terms"`
	TitleTerms int `json:"title_terms"`
	Postings   int `json:"postings"`
}

// Index is a decoded search-index artifact. It is treated as immutable once
// decoded; the folded-key lookup table is built lazily and is safe for
// concurrent use.
type Index struct {
	DocNames   []string
	Filenames  []string
	Titles     []string
	EnvVersion json.RawMessage
	Terms      map[string]PostingList
	TitleTerms map[string]PostingList

	// API cross-reference metadata, kept verbatim.
	Objects  json.RawMessage
	ObjNames json.RawMessage
	ObjTypes json.RawMessage

	// Top-level fields this package does not interpret (alltitles,
	// indexentries, ...) survive a decode/encode round trip.
	Extra map[string]json.RawMessage

	foldOnce   sync.Once
	foldTerms  map[string][]string
	foldTitles map[string][]string
}

// Len returns the number of documents.
func (idx *Index) Len() int {
	return len(idx.DocNames)
}

// Document returns the record at position i.
func (idx *Index) Document(i int) (Document, bool) {
	if i < 0 || i >= len(idx.DocNames) {
		return Document{}, false
	}
	doc := Document{Index: i, Name: idx.DocNames[i]}
	if i < len(idx.Filenames) {
		doc.Filename = idx.Filenames[i]
	}
	if i < len(idx.Titles) {
		doc.Title = idx.Titles[i]
	}
	return doc, true
}

// Documents returns every document record in index order.
func (idx *Index) Documents() []Document {
	docs := make([]Document, 0, len(idx.DocNames))
	for i := range idx.DocNames {
		doc, _ := idx.Document(i)
		docs = append(docs, doc)
	}
	return docs
}

// Lookup returns the postings of term in the body-term table.
func (idx *Index) Lookup(term string) PostingList {
	return idx.Terms[term]
}

// LookupTitle returns the postings of term in the title-term table.
func (idx *Index) LookupTitle(term string) PostingList {
	return idx.TitleTerms[term]
}

// FoldedTerms returns the body-term keys equal to term under case folding.
// Generators sometimes keep capitalised keys ("Ising") that a lower-cased
// query would otherwise never reach.
func (idx *Index) FoldedTerms(term string) []string {
	idx.buildFolded()
	return idx.foldTerms[strings.ToLower(term)]
}

// FoldedTitleTerms is FoldedTerms for the title-term table.
func (idx *Index) FoldedTitleTerms(term string) []string {
	idx.buildFolded()
	return idx.foldTitles[strings.ToLower(term)]
}

func (idx *Index) buildFolded() {
	idx.foldOnce.Do(func() {
		idx.foldTerms = foldKeys(idx.Terms)
		idx.foldTitles = foldKeys(idx.TitleTerms)
	})
}

func foldKeys(m map[string]PostingList) map[string][]string {
	folded := make(map[string][]string, len(m))
	for key := range m {
		lower := strings.ToLower(key)
		folded[lower] = append(folded[lower], key)
	}
	for _, keys := range folded {
		sort.Strings(keys)
	}
	return folded
}

// EnvVersionNumber reports envversion when the artifact stores it as a
// single integer (older generators); newer ones store a per-domain mapping.
func (idx *Index) EnvVersionNumber() (int, bool) {
	var v int
	if len(idx.EnvVersion) == 0 || json.Unmarshal(idx.EnvVersion, &v) != nil {
		return 0, false
	}
	return v, true
}

// Stats counts documents, distinct terms and postings.
func (idx *Index) Stats() Stats {
	s := Stats{
		Documents:  len(idx.DocNames),
		Terms:      len(idx.Terms),
		TitleTerms: len(idx.TitleTerms),
	}
	for _, pl := range idx.Terms {
		s.Postings += len(pl)
	}
	for _, pl := range idx.TitleTerms {
		s.Postings += len(pl)
	}
	return s
}

// Checksum is the hex SHA-256 of the canonical JSON encoding. Two indexes
// with the same content have the same checksum regardless of the source
// format or key order they were decoded from.
func (idx *Index) Checksum() (string, error) {
	data, err := idx.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
