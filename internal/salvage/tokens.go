package salvage

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// numPattern matches a monetary amount with optional thousands separators and
// up to two decimal places. Grouped forms are tried first.
const numPattern = `[0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?`

// currencyPrefix matches "$", "A$", "AUD" and "AUD $".
const currencyPrefix = `(?:\bAUD\s*\$?|\bA\$|\$)`

var (
	numberRe         = regexp.MustCompile(`\b(?:` + numPattern + `)\b`)
	prefixCurrencyRe = regexp.MustCompile(`(?i)` + currencyPrefix + `\s*(` + numPattern + `)\b`)
	suffixCurrencyRe = regexp.MustCompile(`(?i)\b(` + numPattern + `)\s*(?:dollars|aud)\b`)
	wordRe           = regexp.MustCompile(`\S+`)
	sentenceBreakRe  = regexp.MustCompile(`[.!?](?:\s+|$)|\n+`)
)

// unitSuffixes rule out bare numbers. Currency-marked amounts are only
// checked against markedUnitSuffixes, so "$5,000 cc'd to the broker" stays
// an amount.
var (
	unitSuffixes = []string{
		"%", "km", "kms", "kilomet", "hour", "hr", "day", "week", "month", "year", "yr", "cc", "mm",
	}
	markedUnitSuffixes = []string{"%", "km", "kms", "kilomet"}
)

// token is a number found in the source text.
type token struct {
	raw   string
	start int
	end   int
	value decimal.Decimal
}

// formatted reports whether the token carries grouping or cents.
func (t token) formatted() bool {
	return strings.ContainsAny(t.raw, ",.")
}

// yearLike reports whether a plain four-digit token reads as a calendar year.
func (t token) yearLike() bool {
	if t.formatted() || len(t.raw) != 4 {
		return false
	}
	return t.value.GreaterThanOrEqual(decimal.NewFromInt(1900)) && t.value.LessThanOrEqual(decimal.NewFromInt(2100))
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

func newToken(text string, start, end int) (token, bool) {
	raw := text[start:end]
	v, ok := parseAmount(raw)
	if !ok {
		return token{}, false
	}
	return token{raw: raw, start: start, end: end, value: v}, true
}

// hasUnitSuffix reports whether the text right after a number names a unit
// (percent, distance, duration) rather than money.
func hasUnitSuffix(rest string, units []string) bool {
	rest = strings.ToLower(strings.TrimLeft(rest, " \t"))
	for _, u := range units {
		if !strings.HasPrefix(rest, u) {
			continue
		}
		if u == "%" {
			return true
		}
		// "km" must not match "kmart"; allow plurals like "days" or "hours".
		tail := strings.TrimPrefix(rest, u)
		tail = strings.TrimPrefix(tail, "s")
		if u == "kilomet" || tail == "" || !unicode.IsLetter(rune(tail[0])) {
			return true
		}
	}
	return false
}

// words indexes the whitespace-separated words of a text.
type words struct {
	spans [][]int
	norm  []string
}

func splitWords(text string) words {
	spans := wordRe.FindAllStringIndex(text, -1)
	norm := make([]string, len(spans))
	for i, s := range spans {
		norm[i] = normalizeWord(text[s[0]:s[1]])
	}
	return words{spans: spans, norm: norm}
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
}

// indexOf returns the index of the word containing byte offset pos, or the
// nearest preceding word.
func (w words) indexOf(pos int) int {
	i := sort.Search(len(w.spans), func(i int) bool { return w.spans[i][0] > pos })
	if i > 0 {
		return i - 1
	}
	return 0
}

// anyWithin reports whether a word in [idx-before, idx+after] starts with one
// of the given stems.
func (w words) anyWithin(idx, before, after int, stems []string) bool {
	lo := max(idx-before, 0)
	hi := min(idx+after, len(w.norm)-1)
	for i := lo; i <= hi; i++ {
		for _, s := range stems {
			if strings.HasPrefix(w.norm[i], s) {
				return true
			}
		}
	}
	return false
}

// exactWithin is anyWithin with whole-word comparison and the center excluded.
func (w words) exactWithin(idx, before, after int, set []string) bool {
	lo := max(idx-before, 0)
	hi := min(idx+after, len(w.norm)-1)
	for i := lo; i <= hi; i++ {
		if i == idx {
			continue
		}
		for _, s := range set {
			if w.norm[i] == s {
				return true
			}
		}
	}
	return false
}

// sentenceSpans splits text into sentence byte ranges. A period only ends a
// sentence when followed by whitespace, so "6,500.00" stays intact.
func sentenceSpans(text string) [][]int {
	var spans [][]int
	start := 0
	for _, b := range sentenceBreakRe.FindAllStringIndex(text, -1) {
		if b[0] > start {
			spans = append(spans, []int{start, b[0]})
		}
		start = b[1]
	}
	if start < len(text) {
		spans = append(spans, []int{start, len(text)})
	}
	return spans
}

// currencySpans returns the byte ranges of every currency-marked amount.
func currencySpans(text string) [][]int {
	var spans [][]int
	for _, re := range []*regexp.Regexp{prefixCurrencyRe, suffixCurrencyRe} {
		for _, m := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, m)
		}
	}
	return spans
}

func overlapsAny(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// bareTokens returns numbers not marked as currency that pass the
// plausibility filters shared by the contextual strategies.
func bareTokens(text string, minValue decimal.Decimal) []token {
	claimed := currencySpans(text)
	var out []token
	for _, m := range numberRe.FindAllStringIndex(text, -1) {
		if overlapsAny(m[0], m[1], claimed) {
			continue
		}
		tok, ok := newToken(text, m[0], m[1])
		if !ok {
			continue
		}
		if !plausibleBare(text, tok, minValue) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// plausibleBare reports whether a number without a currency marker can be
// money: at least minValue, not a year and not followed by a unit.
func plausibleBare(text string, tok token, minValue decimal.Decimal) bool {
	return !tok.value.LessThan(minValue) && !tok.yearLike() && !hasUnitSuffix(text[tok.end:], unitSuffixes)
}
