// Package tokenizer turns query text into the terms a documentation search
// index is keyed by: lower-cased words with English stop words removed,
// stemmed the way the index generator stemmed them.
//
// Older generators key their indexes by the original Porter stem; newer
// releases switched to Snowball English (Porter2). Every token carries the
// Porter stem as Term and, when the two disagree, the Porter2 stem as Alt.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/kljensen/snowball/english"
)

// stopWords matches the list documentation generators drop at index time;
// searching for them can never produce a hit.
var stopWords = map[string]struct{}{
	"a": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"near": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "such": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "to": {}, "was": {}, "will": {}, "with": {},
}

// Token is a normalised query term. Raw keeps the lower-cased unstemmed
// word, which some index keys (identifiers, proper names) are stored as.
type Token struct {
	Term     string
	Alt      string
	Raw      string
	Position int
}

// Tokenize splits text on anything other than letters, digits and '_',
// drops stop words and words shorter than two runes, and stems the rest.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		stemmed := Stem(word)
		if stemmed == "" {
			continue
		}
		tok := Token{
			Term:     stemmed,
			Raw:      word,
			Position: pos,
		}
		if alt := StemPorter2(word); alt != "" && alt != stemmed {
			tok.Alt = alt
		}
		tokens = append(tokens, tok)
		pos++
	}
	return tokens
}

// Stem applies the original Porter algorithm to a single word.
func Stem(word string) string {
	return porterstemmer.StemString(word)
}

// StemPorter2 applies the Snowball English stemmer to a single lower-case word.
func StemPorter2(word string) string {
	return english.Stem(word, false)
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
