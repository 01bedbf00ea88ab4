// Package intent maps a chat message to a coarse advisory topic.
package intent

import "finadvisor/internal/textmatch"

type Intent string

const (
	Tax         Intent = "tax"
	Risk        Intent = "risk"
	Goals       Intent = "goals"
	General     Intent = "general"
	GeneralChat Intent = "general_chat"
)

const (
	KeywordWeight = 0.5
	PhraseWeight  = 1.0
	// MinScore is the lowest best score that still counts as a financial
	// topic.
	MinScore = 0.5
)

// order doubles as the tie-break.
var order = []Intent{Tax, Risk, Goals, General}

// Table lists the keywords and phrases of one intent.
type Table struct {
	Keywords []string
	Phrases  []string
}

var DefaultTables = map[Intent]Table{
	Tax: {
		Keywords: []string{"tax", "taxes", "irs", "deduction", "deductions", "bracket", "refund", "withholding", "deductible", "rmd"},
		Phrases:  []string{"capital gains", "tax bracket", "roth conversion", "tax loss harvesting", "estimated taxes", "required minimum distribution", "filing status"},
	},
	Risk: {
		Keywords: []string{"risk", "risky", "volatility", "volatile", "crash", "downturn", "hedge", "diversify", "diversification", "recession", "insurance"},
		Phrases:  []string{"market crash", "risk tolerance", "emergency fund", "asset allocation", "lose money", "bear market", "too aggressive", "too conservative"},
	},
	Goals: {
		Keywords: []string{"goal", "goals", "retire", "retirement", "college", "tuition", "vacation", "wedding", "milestone"},
		Phrases:  []string{"on track", "retire early", "down payment", "college fund", "save for", "financial independence", "buy a house"},
	},
	General: {
		Keywords: []string{"budget", "spending", "income", "debt", "worth", "money", "mortgage", "loan", "expenses", "savings", "invest", "portfolio", "salary"},
		Phrases:  []string{"net worth", "cash flow", "pay off", "credit card", "financial situation", "how am i doing"},
	},
}

type Result struct {
	Intent Intent             `json:"intent"`
	Score  float64            `json:"score"`
	Scores map[Intent]float64 `json:"scores"`
}

type Classifier struct {
	tables map[Intent]Table
}

func NewClassifier() *Classifier {
	return &Classifier{tables: DefaultTables}
}

// Classify scores the message against every table. Each distinct keyword
// adds KeywordWeight and each distinct phrase adds PhraseWeight. A best
// score under MinScore yields GeneralChat.
func (c *Classifier) Classify(message string) Result {
	text := textmatch.Normalize(message)
	res := Result{Intent: GeneralChat, Scores: make(map[Intent]float64, len(order))}

	for _, in := range order {
		t := c.tables[in]
		var s float64
		for _, kw := range t.Keywords {
			if text.Has(kw) {
				s += KeywordWeight
			}
		}
		for _, ph := range t.Phrases {
			if text.Has(ph) {
				s += PhraseWeight
			}
		}
		res.Scores[in] = s
		if s > res.Score {
			res.Intent, res.Score = in, s
		}
	}
	if res.Score < MinScore {
		res.Intent = GeneralChat
	}
	return res
}
