// Package trust scores how specific a generated answer is to the client's
// own numbers.
package trust

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DollarPoints  = 2
	PercentPoints = 1
	FactPoints    = 1
	GenericPoints = -1

	PassScore      = 4
	PassDollars    = 2
	MaxGenericPass = 2
)

var (
	dollarRe  = regexp.MustCompile(`\$\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?(?:\s?(?:[kKmMbB]|million|billion|thousand)\b)?`)
	percentRe = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
)

// GenericPhrases is the denylist of filler that signals a non-specific
// answer.
var GenericPhrases = []string{
	"it depends",
	"generally speaking",
	"consult a financial advisor",
	"consult with a financial advisor",
	"everyone's situation is different",
	"in general",
	"as a rule of thumb",
	"past performance is not indicative",
	"there are many factors",
	"do your own research",
}

type Result struct {
	Score                  int      `json:"score"`
	SpecificNumbersFound   int      `json:"specific_numbers_found"`
	DollarAmountsFound     int      `json:"dollar_amounts_found"`
	PercentagesFound       int      `json:"percentages_found"`
	FactsReferenced        int      `json:"facts_referenced"`
	GenericPhrasesDetected int      `json:"generic_phrases_detected"`
	Passed                 bool     `json:"passed"`
	Issues                 []string `json:"issues,omitempty"`
}

// DollarAmounts returns the distinct dollar amounts in text, in order of
// first appearance.
func DollarAmounts(text string) []string {
	return distinct(dollarRe.FindAllString(text, -1), normalizeNumber)
}

// Percentages returns the distinct percentages in text.
func Percentages(text string) []string {
	return distinct(percentRe.FindAllString(text, -1), normalizeNumber)
}

func normalizeNumber(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

func distinct(in []string, key func(string) string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		k := key(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Validate scores text against the client's facts. It has no side effects.
func Validate(text string, facts []string) Result {
	var r Result
	lower := strings.ToLower(text)

	r.DollarAmountsFound = len(DollarAmounts(text))
	r.PercentagesFound = len(Percentages(text))
	r.SpecificNumbersFound = r.DollarAmountsFound + r.PercentagesFound

	seen := make(map[string]bool, len(facts))
	for _, f := range facts {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		if strings.Contains(lower, f) {
			r.FactsReferenced++
		}
	}

	var generic []string
	for _, p := range GenericPhrases {
		if strings.Contains(lower, p) {
			r.GenericPhrasesDetected++
			generic = append(generic, p)
		}
	}

	r.Score = r.DollarAmountsFound*DollarPoints +
		r.PercentagesFound*PercentPoints +
		r.FactsReferenced*FactPoints +
		r.GenericPhrasesDetected*GenericPoints
	r.Passed = r.Score >= PassScore &&
		r.DollarAmountsFound >= PassDollars &&
		r.GenericPhrasesDetected <= MaxGenericPass

	if r.DollarAmountsFound < PassDollars {
		r.Issues = append(r.Issues, fmt.Sprintf("only %d dollar amounts cited, need %d", r.DollarAmountsFound, PassDollars))
	}
	if r.Score < PassScore {
		r.Issues = append(r.Issues, fmt.Sprintf("score %d below %d", r.Score, PassScore))
	}
	if r.GenericPhrasesDetected > MaxGenericPass {
		r.Issues = append(r.Issues, "too many generic phrases: "+strings.Join(generic, "; "))
	}
	if len(facts) > 0 && r.FactsReferenced == 0 {
		r.Issues = append(r.Issues, "no client facts referenced")
	}
	return r
}
