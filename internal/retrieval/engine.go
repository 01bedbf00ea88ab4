// Package retrieval ranks a user's cached documents against a free-text
// query using a per-category weighted trigger table.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"finadvisor/internal/docstore"
	"finadvisor/internal/textmatch"
)

// Trigger is a term that pulls a category into the results when it appears
// in the query.
type Trigger struct {
	Term   string
	Weight float64
}

// DefaultTriggers maps each category to the query terms that favor it.
var DefaultTriggers = map[docstore.Category][]Trigger{
	docstore.CategorySummary: {
		{"net worth", 3}, {"worth", 1}, {"financial picture", 2}, {"financial situation", 2},
		{"how am i doing", 2}, {"overview", 1.5}, {"summary", 1.5}, {"overall", 1}, {"on track", 1},
	},
	docstore.CategoryIncome: {
		{"income", 2}, {"salary", 2}, {"earn", 1.5}, {"earnings", 1.5}, {"paycheck", 1.5},
		{"wages", 1.5}, {"bonus", 1}, {"rental income", 2}, {"cash flow", 1},
	},
	docstore.CategoryExpenses: {
		{"expenses", 2}, {"expense", 2}, {"spending", 2}, {"spend", 1.5}, {"budget", 1.5},
		{"bills", 1}, {"cost", 1}, {"cash flow", 1.5}, {"save more", 1},
	},
	docstore.CategoryAssets: {
		{"assets", 2}, {"portfolio", 2}, {"investments", 2}, {"invest", 1}, {"allocation", 2},
		{"stocks", 1.5}, {"bonds", 1.5}, {"401k", 1}, {"ira", 1}, {"brokerage", 1.5},
		{"savings", 1}, {"rebalance", 1.5}, {"diversified", 1.5},
	},
	docstore.CategoryLiabilities: {
		{"debt", 2}, {"loan", 2}, {"loans", 2}, {"mortgage", 2}, {"credit card", 2},
		{"liabilities", 2}, {"interest rate", 1.5}, {"pay off", 1.5}, {"refinance", 1.5},
	},
	docstore.CategoryGoals: {
		{"goal", 2}, {"goals", 2}, {"retire", 1.5}, {"retirement", 1.5}, {"college", 1.5},
		{"save for", 1.5}, {"target", 1}, {"on track", 1},
	},
	docstore.CategoryTax: {
		{"tax", 2}, {"taxes", 2}, {"deduction", 1.5}, {"bracket", 1.5}, {"irs", 1.5},
		{"roth conversion", 2}, {"capital gains", 2}, {"tax loss harvesting", 2},
	},
	docstore.CategoryBenefits: {
		{"benefits", 2}, {"employer match", 2}, {"match", 1}, {"insurance", 1.5}, {"hsa", 1.5},
		{"pension", 1.5}, {"social security", 2},
	},
	docstore.CategoryEstate: {
		{"estate", 2}, {"trust", 1.5}, {"beneficiary", 2}, {"beneficiaries", 2}, {"inheritance", 2},
		{"heirs", 1.5}, {"power of attorney", 2},
	},
	docstore.CategoryChatMemory: {
		{"last time", 2}, {"previously", 1.5}, {"earlier", 1.5}, {"we discussed", 2},
		{"you said", 1.5}, {"remind me", 1},
	},
}

type Result struct {
	Document docstore.Document `json:"document"`
	Score    float64           `json:"score"`
}

type Engine struct {
	store    docstore.Store
	triggers map[docstore.Category][]Trigger
}

func New(store docstore.Store) *Engine {
	return &Engine{store: store, triggers: DefaultTriggers}
}

// Score returns the weight each category receives for query.
func (e *Engine) Score(query string) map[docstore.Category]float64 {
	q := textmatch.Normalize(query)
	scores := make(map[docstore.Category]float64, len(e.triggers))
	for c, triggers := range e.triggers {
		for _, tr := range triggers {
			if q.Has(tr.Term) {
				scores[c] += tr.Weight
			}
		}
	}
	return scores
}

// Search returns the user's documents whose category scored above zero,
// highest score first, ties broken by category priority. limit <= 0 means
// no limit. Only the given user's documents are read.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int) ([]Result, error) {
	docs, err := e.store.Query(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents for %s: %w", userID, err)
	}
	scores := e.Score(query)

	var out []Result
	for _, d := range docs {
		if s := scores[d.Category]; s > 0 {
			out = append(out, Result{Document: d, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return docstore.Priority(out[i].Document.Category) < docstore.Priority(out[j].Document.Category)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
