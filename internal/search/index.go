// Package search ranks catalog names against a misspelled one so validation
// errors can say "did you mean ...". The index is read-only once built and
// safe for concurrent use; it does no logging.
//
// Similarity is the Jaccard index of two term sets, |A ∩ B| / |A ∪ B|. A
// name's terms are its case-folded words plus, unless disabled, the padded
// trigrams of each word, so "acme" and "acmee" still share most terms.
package search

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Match is a catalog name and its similarity to the query, in (0, 1].
type Match struct {
	Name  string
	Score float64
}

type termSet map[string]struct{}

type entry struct {
	name  string
	terms termSet
	runes int
}

// NameIndex holds the names given to NewNameIndex.
type NameIndex struct {
	ignore   map[string]bool
	trigrams bool
	entries  []entry
}

// Option configures a NameIndex.
type Option func(*NameIndex)

// IgnoreWords drops words such as legal suffixes ("ltd", "inc") from names
// and queries before scoring.
func IgnoreWords(words ...string) Option {
	return func(x *NameIndex) {
		for _, w := range words {
			if w = cases.Fold().String(strings.TrimSpace(w)); w != "" {
				if x.ignore == nil {
					x.ignore = make(map[string]bool, len(words))
				}
				x.ignore[w] = true
			}
		}
	}
}

// WithoutTrigrams scores on whole words only.
func WithoutTrigrams() Option {
	return func(x *NameIndex) { x.trigrams = false }
}

// NewNameIndex indexes names. Runs of whitespace collapse to one space;
// blank names, repeats, and names made only of ignored words are skipped.
func NewNameIndex(names []string, opts ...Option) *NameIndex {
	x := &NameIndex{trigrams: true}
	for _, o := range opts {
		o(x)
	}
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.Join(strings.Fields(raw), " ")
		if name == "" || seen[name] {
			continue
		}
		terms := x.terms(name)
		if len(terms) == 0 {
			continue
		}
		seen[name] = true
		x.entries = append(x.entries, entry{name: name, terms: terms, runes: utf8.RuneCountInString(name)})
	}
	return x
}

// Len reports how many names were indexed.
func (x *NameIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// TopK returns at most k names sharing any term with query, best first.
// Ties go to the shorter name, then to the alphabetically smaller one. k <= 0
// means 3.
func (x *NameIndex) TopK(query string, k int) []Match {
	if x.Len() == 0 {
		return nil
	}
	q := x.terms(query)
	if len(q) == 0 {
		return nil
	}
	if k <= 0 {
		k = 3
	}

	type hit struct {
		Match
		runes int
	}
	var hits []hit
	for _, e := range x.entries {
		shared := intersect(q, e.terms)
		if shared == 0 {
			continue
		}
		score := float64(shared) / float64(len(q)+len(e.terms)-shared)
		hits = append(hits, hit{Match{e.name, score}, e.runes})
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.runes, b.runes); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	out := make([]Match, 0, min(k, len(hits)))
	for _, h := range hits[:min(k, len(hits))] {
		out = append(out, h.Match)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Suggest returns the closest name when it scores at least threshold and is
// not just query in another case.
func (x *NameIndex) Suggest(query string, threshold float64) (string, bool) {
	best := x.TopK(query, 1)
	if len(best) == 0 || best[0].Score < threshold {
		return "", false
	}
	if strings.EqualFold(best[0].Name, strings.TrimSpace(query)) {
		return "", false
	}
	return best[0].Name, true
}

func (x *NameIndex) terms(s string) termSet {
	words := strings.FieldsFunc(cases.Fold().String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(termSet, len(words)*4)
	for _, w := range words {
		if x.ignore[w] {
			continue
		}
		set[w] = struct{}{}
		if x.trigrams {
			for _, g := range trigrams(w) {
				set["#"+g] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// trigrams returns the 3-rune windows of w padded with a space on each
// side: "acme" gives " ac", "acm", "cme", "me ".
func trigrams(w string) []string {
	r := []rune(" " + w + " ")
	if len(r) < 3 {
		return nil
	}
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}

func intersect(a, b termSet) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
