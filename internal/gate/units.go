package gate

import (
	"strings"
	"unicode"
)

// stopwords are tokens that carry no standalone intent and are excluded from
// the minimal meaning unit set.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true,
	"and": true, "or": true, "but": true, "nor": true,
	"of": true, "to": true, "in": true, "on": true, "at": true,
	"by": true, "for": true, "with": true, "from": true, "into": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "am": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "there": true,
	"i": true, "me": true, "my": true, "we": true, "us": true, "our": true,
	"you": true, "your": true, "he": true, "she": true, "they": true,
	"them": true, "their": true,
	"as": true, "so": true, "if": true, "then": true, "than": true,
	"do": true, "does": true, "did": true, "not": true, "no": true,
	"can": true, "will": true, "would": true, "should": true, "could": true,
	"have": true, "has": true, "had": true,
}

// ExtractUnits returns the ordered set of minimal meaning units in the text:
// lowercased tokens with stopwords and single-rune fragments removed,
// deduplicated in order of first occurrence. The result is a pure function
// of the text.
func ExtractUnits(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	units := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) < 2 {
			continue
		}
		if stopwords[tok] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		units = append(units, tok)
	}

	return units
}
