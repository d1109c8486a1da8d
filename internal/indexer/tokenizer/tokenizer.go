// Package tokenizer splits corpus lines into whitespace-separated tokens and
// applies an optional, pluggable normalisation (stemming, Unicode
// normalisation, lower-casing) to each token. Normalisation is always one
// token to one token, so a document's length does not depend on it.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// Token represents a single normalised term and its zero-based position in
// the line it came from.
type Token struct {
	Term     string
	Position int
}

// Normalizer maps one token to one token. It must be deterministic and free
// of side effects.
type Normalizer func(string) string

// Identity leaves tokens unchanged.
func Identity(term string) string { return term }

// Stem reduces a token with the snowball English stemmer. Stop words are
// stemmed as well so every token is treated uniformly.
func Stem(term string) string { return english.Stem(term, true) }

// NFC rewrites a token into Unicode normalisation form C.
func NFC(term string) string { return norm.NFC.String(term) }

// Lowercase lower-cases a token.
func Lowercase(term string) string { return strings.ToLower(term) }

// Chain applies normalizers left to right.
func Chain(normalizers ...Normalizer) Normalizer {
	switch len(normalizers) {
	case 0:
		return Identity
	case 1:
		return normalizers[0]
	}
	return func(term string) string {
		for _, n := range normalizers {
			term = n(term)
		}
		return term
	}
}

var named = map[string]Normalizer{
	"identity":  Identity,
	"stem":      Stem,
	"nfc":       NFC,
	"lowercase": Lowercase,
}

// ByNames resolves configured normalizer names into a chain.
func ByNames(names []string) (Normalizer, error) {
	chain := make([]Normalizer, 0, len(names))
	for _, name := range names {
		n, ok := named[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		chain = append(chain, n)
	}
	return Chain(chain...), nil
}

// Analyzer turns raw lines into normalised tokens. The zero value leaves
// tokens unchanged.
type Analyzer struct {
	normalize Normalizer
}

// NewAnalyzer returns an Analyzer using n; a nil n means Identity.
func NewAnalyzer(n Normalizer) Analyzer {
	if n == nil {
		n = Identity
	}
	return Analyzer{normalize: n}
}

// Analyze splits line on Unicode whitespace and normalises every token.
// Runs of whitespace never produce empty tokens. A normaliser that maps a
// token to the empty string is ignored for that token.
func (a Analyzer) Analyze(line string) []Token {
	normalize := a.normalize
	if normalize == nil {
		normalize = Identity
	}
	words := strings.Fields(line)
	tokens := make([]Token, len(words))
	for pos, word := range words {
		term := normalize(word)
		if term == "" {
			term = word
		}
		tokens[pos] = Token{
			Term:     term,
			Position: pos,
		}
	}
	return tokens
}

// Terms returns the normalised terms of line in order.
func (a Analyzer) Terms(line string) []string {
	tokens := a.Analyze(line)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
