// Package coreroots builds the set of word roots already present in the
// keyword inventory. Roots in this set are never suggested as negatives.
package coreroots

import (
	"sort"

	"github.com/cognicore/termintel/pkg/termintel/ingest"
)

// Set is an immutable-by-convention set of tokens. Operations return new sets.
type Set map[string]struct{}

// Build tokenizes every keyword text and collects the distinct tokens.
func Build(keywordTexts []string, tok *ingest.Tokenizer) Set {
	set := make(Set)
	for _, text := range keywordTexts {
		for _, t := range tok.Tokenize(text) {
			set[t] = struct{}{}
		}
	}
	return set
}

// Of creates a set from literal tokens.
func Of(tokens ...string) Set {
	set := make(Set, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Contains reports whether token is a core root. A nil set contains nothing.
func (s Set) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// ContainsAny reports whether any of tokens is a core root.
func (s Set) ContainsAny(tokens []string) bool {
	for _, t := range tokens {
		if s.Contains(t) {
			return true
		}
	}
	return false
}

// Union returns a new set with the members of both sets.
func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range o {
		out[t] = struct{}{}
	}
	return out
}

// Minus returns a new set with the members of s that are not in o.
func (s Set) Minus(o Set) Set {
	out := make(Set, len(s))
	for t := range s {
		if !o.Contains(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted lists the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
