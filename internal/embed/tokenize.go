package embed

import "strings"

// stopwords are excluded from tokenization so that lexical similarity is
// driven by content words. Shared by the synthetic embedder and the BM25
// side-channel.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "of": true,
	"to": true, "in": true, "on": true, "at": true, "for": true,
	"and": true, "or": true, "it": true, "its": true, "this": true,
	"that": true, "with": true, "as": true, "by": true, "from": true,
	"what": true, "which": true, "who": true, "how": true, "i": true,
	"my": true, "me": true, "we": true, "our": true, "you": true,
	"do": true, "does": true, "did": true, "about": true,
}

// Tokenize lowercases text, splits on non-alphanumeric runes, drops
// stopwords and strips a plural 's' from longer tokens.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		if len(f) > 3 && strings.HasSuffix(f, "s") {
			f = f[:len(f)-1]
		}
		out = append(out, f)
	}
	return out
}
