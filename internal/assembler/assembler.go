// Package assembler builds the bounded prompt context for one advisory
// turn.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"finadvisor/internal/docstore"
	"finadvisor/internal/retrieval"
	"finadvisor/internal/syncer"
	"finadvisor/internal/trust"
)

type Level string

const (
	Focused       Level = "focused"
	Balanced      Level = "balanced"
	Comprehensive Level = "comprehensive"
)

var ErrUnknownLevel = errors.New("unknown insight level")

func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case Focused, Balanced, Comprehensive:
		return l, nil
	case "":
		return Balanced, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// Budgets caps the assembled context per level, in characters.
type Budgets map[Level]int

var DefaultBudgets = Budgets{Focused: 2000, Balanced: 4000, Comprehensive: 8000}

const (
	// maxFactChars clips each mandatory value so the mandatory section
	// never exceeds MinBudget.
	maxFactChars = 160
	// MinBudget is the smallest accepted budget.
	MinBudget = 1200

	mandatoryHeader = "Client facts (always included):\n"
	unknownFact     = "unknown"
	truncMarker     = "\n[truncated]\n"
	minSectionChars = 80
)

type Searcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]retrieval.Result, error)
}

type MemoryReader interface {
	GetContext(ctx context.Context, sessionID, userID string) (string, error)
}

type Request struct {
	UserID        string
	SessionID     string
	Query         string
	Level         Level
	SkipRetrieval bool
}

type Context struct {
	Text      string   `json:"text"`
	Facts     []string `json:"facts"`
	Sections  []string `json:"sections"`
	Truncated bool     `json:"truncated"`
	Level     Level    `json:"level"`
	Budget    int      `json:"budget"`
}

type Assembler struct {
	store   docstore.Store
	search  Searcher
	memory  MemoryReader
	budgets Budgets
	logger  *zap.Logger
}

// New fills missing levels from DefaultBudgets and raises any budget below
// MinBudget to it.
func New(store docstore.Store, search Searcher, memory MemoryReader, budgets Budgets, logger *zap.Logger) *Assembler {
	b := make(Budgets, len(DefaultBudgets))
	for l, v := range DefaultBudgets {
		b[l] = v
	}
	for l, v := range budgets {
		if v > 0 {
			b[l] = v
		}
	}
	for l, v := range b {
		if v < MinBudget {
			b[l] = MinBudget
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, search: search, memory: memory, budgets: b, logger: logger}
}

func (a *Assembler) Budget(l Level) int { return a.budgets[l] }

type section struct {
	name string
	text string
}

// Assemble returns the mandatory facts first, then retrieved documents in
// rank order, then session memory. When the budget runs out, memory goes
// first and then the lowest-ranked documents. The mandatory section is never
// cut.
func (a *Assembler) Assemble(ctx context.Context, req Request) (Context, error) {
	level, err := ParseLevel(string(req.Level))
	if err != nil {
		return Context{}, err
	}
	budget := a.budgets[level]

	values, err := a.mandatoryValues(ctx, req.UserID)
	if err != nil {
		return Context{}, err
	}
	out := Context{Level: level, Budget: budget, Sections: []string{"mandatory"}, Facts: facts(values)}

	var b strings.Builder
	b.WriteString(mandatoryHeader)
	for i, label := range syncer.SummaryLabels {
		fmt.Fprintf(&b, "- %s: %s\n", label, values[i])
	}

	var optional []section
	if !req.SkipRetrieval {
		results, err := a.search.Search(ctx, req.UserID, req.Query, 0)
		if err != nil {
			return Context{}, fmt.Errorf("retrieve documents: %w", err)
		}
		for _, r := range results {
			optional = append(optional, section{
				name: "document:" + string(r.Document.Category),
				text: "\n## " + string(r.Document.Category) + "\n" + withNewline(r.Document.Content),
			})
		}
	}
	if req.SessionID != "" && a.memory != nil {
		mem, err := a.memory.GetContext(ctx, req.SessionID, req.UserID)
		if err != nil {
			a.logger.Warn("memory unavailable for context", zap.String("session_id", req.SessionID), zap.Error(err))
		} else if mem != "" {
			optional = append(optional, section{name: "memory", text: "\n## conversation\n" + withNewline(mem)})
		}
	}

	remaining := budget - utf8.RuneCountInString(b.String())
	for _, s := range optional {
		n := utf8.RuneCountInString(s.text)
		if n <= remaining {
			b.WriteString(s.text)
			remaining -= n
			out.Sections = append(out.Sections, s.name)
			continue
		}
		out.Truncated = true
		if remaining >= minSectionChars {
			b.WriteString(truncateRunes(s.text, remaining))
			out.Sections = append(out.Sections, s.name)
		}
		break
	}
	out.Text = b.String()
	return out, nil
}

// mandatoryValues reads the labeled lines of the summary document. A missing
// summary yields unknown values.
func (a *Assembler) mandatoryValues(ctx context.Context, userID string) ([]string, error) {
	values := make([]string, len(syncer.SummaryLabels))
	for i := range values {
		values[i] = unknownFact
	}
	doc, err := a.store.Get(ctx, docstore.DocID(userID, docstore.CategorySummary))
	if errors.Is(err, docstore.ErrNotFound) {
		a.logger.Warn("no financial summary on file", zap.String("user_id", userID))
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load financial summary: %w", err)
	}
	for _, line := range strings.Split(doc.Content, "\n") {
		for i, label := range syncer.SummaryLabels {
			v, ok := strings.CutPrefix(line, label+": ")
			if !ok || values[i] != unknownFact {
				continue
			}
			if v = strings.TrimSpace(v); v != "" {
				values[i] = clipRunes(v, maxFactChars)
			}
		}
	}
	return values, nil
}

// facts lists the atoms a trustworthy answer can cite: the client name and
// every money amount and percentage in the mandatory values.
func facts(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && s != unknownFact && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if name, _, _ := strings.Cut(values[0], ","); name != unknownFact {
		add(strings.TrimSpace(name))
	}
	for _, v := range values {
		for _, d := range trust.DollarAmounts(v) {
			add(d)
		}
		for _, p := range trust.Percentages(v) {
			add(p)
		}
	}
	return out
}

func withNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func truncateRunes(s string, n int) string {
	keep := n - utf8.RuneCountInString(truncMarker)
	r := []rune(s)
	return string(r[:keep]) + truncMarker
}
