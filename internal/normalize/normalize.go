// Package normalize canonicalizes spreadsheet header names and cell values
// so lookups survive inconsistent authoring: mixed case, stray whitespace,
// accented characters and duplicated column names.
package normalize

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold returns the canonical form of a header or cell value: diacritics
// stripped, whitespace trimmed, upper-cased. "  Código Pop " folds to
// "CODIGO POP".
func Fold(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// DedupeHeaders makes header names unique while preserving first-seen order
// and positional addressability. Repeats (compared by folded form) get a
// numeric suffix: ["POP","Nombre","POP"] becomes ["POP","Nombre","POP_1"].
// The output always has the same length as the input. Generated suffixes
// skip any name a literal column already owns, so a sheet authored with its
// own "POP_1" next to a repeated "POP" still comes out all-unique.
func DedupeHeaders(headers []string) []string {
	used := make(map[string]bool, len(headers))
	for _, h := range headers {
		used[Fold(h)] = true
	}

	emitted := make(map[string]int, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		key := Fold(h)
		n, dup := emitted[key]
		if !dup {
			emitted[key] = 0
			out = append(out, h)
			continue
		}
		var candidate string
		for {
			n++
			candidate = fmt.Sprintf("%s_%d", h, n)
			if fk := Fold(candidate); !used[fk] {
				used[fk] = true
				break
			}
		}
		emitted[key] = n
		out = append(out, candidate)
	}
	return out
}

// Resolver locates a logical column among a snapshot's headers. Exact names
// are tried first; Contains names fall back to folded substring matching, so
// "POP" still finds a column authored as "CÓDIGO POP". Both passes return
// the leftmost match. That leftmost tie-break is deliberate and relied on by
// callers; do not change it.
type Resolver struct {
	Exact    []string
	Contains []string
}

// Resolve returns the matching header name as it appears in headers, or
// false when no column qualifies.
func (r Resolver) Resolve(headers []string) (string, bool) {
	for _, h := range headers {
		folded := Fold(h)
		for _, want := range r.Exact {
			if folded == Fold(want) {
				return h, true
			}
		}
	}
	for _, h := range headers {
		folded := Fold(h)
		for _, want := range r.Contains {
			if strings.Contains(folded, Fold(want)) {
				return h, true
			}
		}
	}
	return "", false
}

// POPColumn is the resolution policy for the site-code column used across
// every dataset tab.
func POPColumn() Resolver {
	return Resolver{Exact: []string{"POP"}, Contains: []string{"POP"}}
}
