package salvage

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crashify360/totalloss/internal/model"
)

// Strategy recovers candidate amounts from text. Strategies are stateless and
// may be run in any order; the Extractor merges their output.
type Strategy func(text string) []model.ExtractionCandidate

// Base confidences per method.
const (
	confStructured        = 0.9
	confCurrencyOffer     = 0.8
	confCurrencyFormatted = 0.75
	confCurrencyPlain     = 0.7
	confContextFormatted  = 0.6
	confContextPlain      = 0.5
	confNearbyFormatted   = 0.4
	confNearbyPlain       = 0.3

	stalePenalty = 0.1
	staleWindow  = 3
)

var structuredRe = regexp.MustCompile(`(?i)\b(?:` +
	`salvage\s+(?:value|offer|price|bid|amount)|` +
	`total\s+salvage(?:\s+value)?|` +
	`(?:our|final|revised|new|best|firm)\s+(?:salvage\s+)?(?:offer|bid|price|tender)|` +
	`offer\s+(?:amount|price)|` +
	`offer|amount|price|tender|bid` +
	`)\s*(:|=|\bis\b|\bof\b|\bwill\s+be\b)\s*(` + currencyPrefix + `\s*)?(` + numPattern + `)\b`)

var (
	// contextStems mark monetary context for contextual extraction.
	contextStems = []string{"offer", "tender", "salvage", "value", "pay", "paid", "bid", "price", "quote"}
	// offerStems boost a currency amount when they precede it.
	offerStems = []string{"offer", "tender", "bid", "salvage", "pay", "paid", "purchase", "buy"}
	// proximityKeywords are the broad domain vocabulary for the weakest strategy.
	proximityKeywords = []string{
		"salvage", "offer", "bid", "quote", "value", "valuation", "price",
		"tender", "worth", "amount", "sum", "cash", "pay", "paid",
	}
	// staleWords mark an amount as superseded ("our previous offer", "was declined").
	staleWords = []string{
		"previous", "prior", "earlier", "original", "old",
		"rejected", "declined", "withdrawn", "superseded",
	}
)

// NewStructuredFormat returns the strategy for amounts introduced by an
// explicit label such as "Salvage Value:", "Offer:", "Our offer is" or
// "Price: AUD". After "is", "of" or "will be" the amount must carry a
// currency marker. An unmarked amount after ":" or "=" must pass the same
// plausibility filters as a bare number.
func NewStructuredFormat(minValue decimal.Decimal) Strategy {
	return func(text string) []model.ExtractionCandidate {
		w := splitWords(text)
		var out []model.ExtractionCandidate
		for _, m := range structuredRe.FindAllStringSubmatchIndex(text, -1) {
			sep := text[m[2]:m[3]]
			marked := m[4] >= 0
			vs, ve := m[6], m[7]
			tok, ok := newToken(text, vs, ve)
			if !ok {
				continue
			}
			if marked {
				if hasUnitSuffix(text[ve:], markedUnitSuffixes) {
					continue
				}
			} else if (sep != ":" && sep != "=") || !plausibleBare(text, tok, minValue) {
				continue
			}
			out = append(out, model.ExtractionCandidate{
				Value:      tok.value,
				Method:     model.MethodStructuredFormat,
				RawMatch:   text[m[0]:m[1]],
				Start:      m[0],
				End:        m[1],
				Confidence: adjust(confStructured, w, vs),
			})
		}
		return out
	}
}

// NewCurrencyPattern returns the strategy that picks up every
// currency-marked amount ("$6,500", "AUD 5000", "5,000 dollars"). Amounts
// preceded within window words by an offer verb score highest.
func NewCurrencyPattern(window int) Strategy {
	return func(text string) []model.ExtractionCandidate {
		w := splitWords(text)
		var out []model.ExtractionCandidate
		for _, re := range []*regexp.Regexp{prefixCurrencyRe, suffixCurrencyRe} {
			for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
				vs, ve := m[2], m[3]
				if hasUnitSuffix(text[m[1]:], markedUnitSuffixes) {
					continue
				}
				tok, ok := newToken(text, vs, ve)
				if !ok {
					continue
				}

				conf := confCurrencyPlain
				switch {
				case w.anyWithin(w.indexOf(m[0]), window, 0, offerStems):
					conf = confCurrencyOffer
				case tok.formatted():
					conf = confCurrencyFormatted
				}

				out = append(out, model.ExtractionCandidate{
					Value:      tok.value,
					Method:     model.MethodCurrencyPattern,
					RawMatch:   text[m[0]:m[1]],
					Start:      m[0],
					End:        m[1],
					Confidence: adjust(conf, w, vs),
				})
			}
		}
		return out
	}
}

// NewContextual returns the strategy for bare numbers (no currency marker)
// within window words of a monetary context word.
func NewContextual(window int, minValue decimal.Decimal) Strategy {
	return func(text string) []model.ExtractionCandidate {
		w := splitWords(text)
		var out []model.ExtractionCandidate
		for _, tok := range bareTokens(text, minValue) {
			if !w.anyWithin(w.indexOf(tok.start), window, window, contextStems) {
				continue
			}
			conf := confContextPlain
			if tok.formatted() {
				conf = confContextFormatted
			}
			out = append(out, model.ExtractionCandidate{
				Value:      tok.value,
				Method:     model.MethodContextual,
				RawMatch:   tok.raw,
				Start:      tok.start,
				End:        tok.end,
				Confidence: adjust(conf, w, tok.start),
			})
		}
		return out
	}
}

// NewKeywordProximity returns the weakest strategy: any bare number in a
// sentence that mentions a domain keyword.
func NewKeywordProximity(minValue decimal.Decimal) Strategy {
	return func(text string) []model.ExtractionCandidate {
		w := splitWords(text)
		toks := bareTokens(text, minValue)
		var out []model.ExtractionCandidate
		for _, s := range sentenceSpans(text) {
			if !mentionsKeyword(strings.ToLower(text[s[0]:s[1]])) {
				continue
			}
			for _, tok := range toks {
				if tok.start < s[0] || tok.end > s[1] {
					continue
				}
				conf := confNearbyPlain
				if tok.formatted() {
					conf = confNearbyFormatted
				}
				out = append(out, model.ExtractionCandidate{
					Value:      tok.value,
					Method:     model.MethodKeywordProximity,
					RawMatch:   tok.raw,
					Start:      tok.start,
					End:        tok.end,
					Confidence: adjust(conf, w, tok.start),
				})
			}
		}
		return out
	}
}

func mentionsKeyword(sentence string) bool {
	for _, k := range proximityKeywords {
		if strings.Contains(sentence, k) {
			return true
		}
	}
	return false
}

// adjust lowers the confidence of an amount described as superseded and
// clamps the result to [0, 1].
func adjust(conf float64, w words, valueStart int) float64 {
	if len(w.norm) > 0 && w.exactWithin(w.indexOf(valueStart), staleWindow, staleWindow, staleWords) {
		conf -= stalePenalty
	}
	return min(max(conf, 0), 1)
}
