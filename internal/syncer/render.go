package syncer

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"finadvisor/internal/docstore"
	"finadvisor/internal/records"
)

// Labels of the summary lines the context assembler lifts into its
// mandatory section. Each appears at the start of exactly one line.
const (
	LabelClient     = "Client"
	LabelNetWorth   = "Net worth"
	LabelCashFlow   = "Cash flow"
	LabelRetirement = "Retirement status"
	LabelAllocation = "Asset allocation"
	LabelDebt       = "Debt status"
)

// SummaryLabels is the order of the mandatory facts.
var SummaryLabels = []string{LabelClient, LabelNetWorth, LabelCashFlow, LabelRetirement, LabelAllocation, LabelDebt}

// sourceTables records where each category's content came from.
var sourceTables = map[docstore.Category]string{
	docstore.CategorySummary:     "client_profiles,financial_items",
	docstore.CategoryIncome:      "financial_items:income",
	docstore.CategoryExpenses:    "financial_items:expenses",
	docstore.CategoryAssets:      "financial_items:assets",
	docstore.CategoryLiabilities: "financial_items:liabilities",
	docstore.CategoryGoals:       "financial_items:goals",
	docstore.CategoryTax:         "client_profiles,financial_items:tax",
	docstore.CategoryBenefits:    "financial_items:benefits",
	docstore.CategoryEstate:      "financial_items:estate",
	docstore.CategoryChatMemory:  "conversation_memory",
}

func SourceTable(c docstore.Category) string { return sourceTables[c] }

var retirementAccounts = map[string]bool{
	"401k": true, "403b": true, "457b": true, "ira": true, "roth_ira": true,
	"sep_ira": true, "simple_ira": true, "pension": true, "retirement": true,
}

// render produces the content of one profile-backed category. Output only
// depends on the profile, never on wall-clock time, so re-rendering
// unchanged records yields an identical hash.
func render(c docstore.Category, p *records.Profile) string {
	switch c {
	case docstore.CategorySummary:
		return renderSummary(p)
	case docstore.CategoryIncome:
		return renderIncome(p.Income)
	case docstore.CategoryExpenses:
		return renderExpenses(p.Expenses)
	case docstore.CategoryAssets:
		return renderAssets(p.Assets)
	case docstore.CategoryLiabilities:
		return renderLiabilities(p.Liabilities)
	case docstore.CategoryGoals:
		return renderGoals(p.Goals)
	case docstore.CategoryTax:
		return renderTax(p)
	case docstore.CategoryBenefits:
		return renderList("Benefits", p.Benefits)
	case docstore.CategoryEstate:
		return renderList("Estate planning", p.Estate)
	}
	return ""
}

type totals struct {
	assets, liabilities, retirement float64
	monthlyIncome, monthlyExpenses  float64
	debtPayments                    float64
}

func computeTotals(p *records.Profile) totals {
	var t totals
	for _, it := range p.Assets {
		t.assets += it.Amount
		if retirementAccounts[strings.ToLower(it.Account)] {
			t.retirement += it.Amount
		}
	}
	for _, it := range p.Liabilities {
		t.liabilities += it.Amount
		t.debtPayments += it.Payment
	}
	for _, it := range p.Income {
		t.monthlyIncome += it.Amount / 12
	}
	for _, it := range p.Expenses {
		t.monthlyExpenses += it.Amount
	}
	return t
}

func renderSummary(p *records.Profile) string {
	t := computeTotals(p)
	id := p.Identity
	var b strings.Builder

	name := id.Name
	if name == "" {
		name = "client " + p.UserID
	}
	fmt.Fprintf(&b, "Financial summary for %s\n", name)

	client := []string{name}
	if id.Age > 0 {
		client = append(client, fmt.Sprintf("age %d", id.Age))
	}
	if id.RiskTolerance != "" {
		client = append(client, "risk tolerance "+id.RiskTolerance)
	}
	if id.FilingStatus != "" {
		client = append(client, "filing status "+id.FilingStatus)
	}
	if id.State != "" {
		client = append(client, "state "+id.State)
	}
	fmt.Fprintf(&b, "%s: %s\n", LabelClient, strings.Join(client, ", "))

	fmt.Fprintf(&b, "%s: %s (assets %s, liabilities %s)\n",
		LabelNetWorth, FormatMoney(t.assets-t.liabilities), FormatMoney(t.assets), FormatMoney(t.liabilities))

	flow := t.monthlyIncome - t.monthlyExpenses - t.debtPayments
	direction := "surplus"
	if flow < 0 {
		direction = "deficit"
	}
	fmt.Fprintf(&b, "%s: %s per month %s (income %s/mo, expenses %s/mo, debt payments %s/mo)\n",
		LabelCashFlow, FormatMoney(math.Abs(flow)), direction,
		FormatMoney(t.monthlyIncome), FormatMoney(t.monthlyExpenses), FormatMoney(t.debtPayments))

	fmt.Fprintf(&b, "%s: %s\n", LabelRetirement, retirementStatus(id, t))
	fmt.Fprintf(&b, "%s: %s\n", LabelAllocation, allocation(p.Assets, t.assets))
	fmt.Fprintf(&b, "%s: %s\n", LabelDebt, debtStatus(p.Liabilities, t))
	return b.String()
}

func retirementStatus(id records.Identity, t totals) string {
	savings := "retirement savings " + FormatMoney(t.retirement)
	switch {
	case id.RetirementAge == 0:
		return "target retirement age not set; " + savings
	case id.Age == 0:
		return fmt.Sprintf("target retirement age %d; %s", id.RetirementAge, savings)
	case id.Age >= id.RetirementAge:
		return fmt.Sprintf("at or past target retirement age %d; %s", id.RetirementAge, savings)
	}
	return fmt.Sprintf("%d years until target retirement age %d; %s", id.RetirementAge-id.Age, id.RetirementAge, savings)
}

func allocation(assets []records.Item, total float64) string {
	if total <= 0 {
		return "no invested assets on file"
	}
	byKind := make(map[string]float64)
	for _, it := range assets {
		kind := strings.ToLower(strings.TrimSpace(it.Kind))
		if kind == "" {
			kind = "other"
		}
		byKind[kind] += it.Amount
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if byKind[kinds[i]] != byKind[kinds[j]] {
			return byKind[kinds[i]] > byKind[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s %s", k, FormatPercent(byKind[k]/total*100)))
	}
	return strings.Join(parts, ", ")
}

func debtStatus(liabilities []records.Item, t totals) string {
	if len(liabilities) == 0 || t.liabilities <= 0 {
		return "no outstanding debt"
	}
	top := sortedItems(liabilities)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Rate > top[j].Rate })
	s := FormatMoney(t.liabilities) + " total debt"
	if t.assets > 0 {
		s += ", " + FormatPercent(t.liabilities/t.assets*100) + " of assets"
	}
	if top[0].Rate > 0 {
		s += fmt.Sprintf("; highest rate %s at %s", top[0].Name, FormatPercent(top[0].Rate))
	}
	return s
}

func renderIncome(items []records.Item) string {
	if len(items) == 0 {
		return "Income: no income records on file.\n"
	}
	var b strings.Builder
	b.WriteString("Income (annual)\n")
	var total float64
	for _, it := range sortedItems(items) {
		total += it.Amount
		fmt.Fprintf(&b, "- %s%s: %s%s\n", it.Name, kindSuffix(it.Kind), FormatMoney(it.Amount), noteSuffix(it.Note))
	}
	fmt.Fprintf(&b, "Total annual income: %s (%s per month)\n", FormatMoney(total), FormatMoney(total/12))
	return b.String()
}

func renderExpenses(items []records.Item) string {
	if len(items) == 0 {
		return "Expenses: no expense records on file.\n"
	}
	var b strings.Builder
	b.WriteString("Expenses (monthly)\n")
	var total float64
	for _, it := range sortedItems(items) {
		total += it.Amount
		fmt.Fprintf(&b, "- %s%s: %s%s\n", it.Name, kindSuffix(it.Kind), FormatMoney(it.Amount), noteSuffix(it.Note))
	}
	fmt.Fprintf(&b, "Total monthly expenses: %s (%s per year)\n", FormatMoney(total), FormatMoney(total*12))
	return b.String()
}

func renderAssets(items []records.Item) string {
	if len(items) == 0 {
		return "Assets: no asset records on file.\n"
	}
	var b strings.Builder
	b.WriteString("Assets\n")
	var total float64
	for _, it := range sortedItems(items) {
		total += it.Amount
		var tags []string
		if it.Kind != "" {
			tags = append(tags, it.Kind)
		}
		if it.Account != "" {
			tags = append(tags, it.Account)
		}
		tag := ""
		if len(tags) > 0 {
			tag = " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintf(&b, "- %s%s: %s%s\n", it.Name, tag, FormatMoney(it.Amount), noteSuffix(it.Note))
	}
	fmt.Fprintf(&b, "Total assets: %s\n", FormatMoney(total))
	fmt.Fprintf(&b, "Allocation: %s\n", allocation(items, total))
	return b.String()
}

func renderLiabilities(items []records.Item) string {
	if len(items) == 0 {
		return "Liabilities: no outstanding debt.\n"
	}
	var b strings.Builder
	b.WriteString("Liabilities\n")
	var total, payments float64
	for _, it := range sortedItems(items) {
		total += it.Amount
		payments += it.Payment
		fmt.Fprintf(&b, "- %s: %s balance", it.Name, FormatMoney(it.Amount))
		if it.Rate > 0 {
			fmt.Fprintf(&b, " at %s APR", FormatPercent(it.Rate))
		}
		if it.Payment > 0 {
			fmt.Fprintf(&b, ", %s/month", FormatMoney(it.Payment))
		}
		b.WriteString(noteSuffix(it.Note))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total debt: %s; monthly payments %s\n", FormatMoney(total), FormatMoney(payments))
	return b.String()
}

func renderGoals(items []records.Item) string {
	if len(items) == 0 {
		return "Goals: no goals on file.\n"
	}
	var b strings.Builder
	b.WriteString("Financial goals\n")
	for _, it := range sortedItems(items) {
		fmt.Fprintf(&b, "- %s: %s saved", it.Name, FormatMoney(it.Amount))
		if it.Target > 0 {
			fmt.Fprintf(&b, " of %s target (%s funded)", FormatMoney(it.Target), FormatPercent(it.Amount/it.Target*100))
		}
		if it.Year > 0 {
			fmt.Fprintf(&b, " by %d", it.Year)
		}
		b.WriteString(noteSuffix(it.Note))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTax(p *records.Profile) string {
	var b strings.Builder
	b.WriteString("Tax profile\n")
	if p.Identity.FilingStatus != "" {
		fmt.Fprintf(&b, "Filing status: %s\n", p.Identity.FilingStatus)
	}
	if p.Identity.State != "" {
		fmt.Fprintf(&b, "State of residence: %s\n", p.Identity.State)
	}
	if len(p.Tax) == 0 {
		b.WriteString("No tax records on file.\n")
		return b.String()
	}
	for _, it := range sortedItems(p.Tax) {
		fmt.Fprintf(&b, "- %s", it.Name)
		var vals []string
		if it.Rate > 0 {
			vals = append(vals, FormatPercent(it.Rate))
		}
		if it.Amount != 0 {
			vals = append(vals, FormatMoney(it.Amount))
		}
		if len(vals) > 0 {
			b.WriteString(": " + strings.Join(vals, ", "))
		}
		b.WriteString(noteSuffix(it.Note))
		b.WriteString("\n")
	}
	return b.String()
}

func renderList(title string, items []records.Item) string {
	if len(items) == 0 {
		return title + ": no records on file.\n"
	}
	var b strings.Builder
	b.WriteString(title + "\n")
	for _, it := range sortedItems(items) {
		fmt.Fprintf(&b, "- %s%s", it.Name, kindSuffix(it.Kind))
		if it.Amount != 0 {
			b.WriteString(": " + FormatMoney(it.Amount))
		}
		b.WriteString(noteSuffix(it.Note))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedItems(items []records.Item) []records.Item {
	out := append([]records.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Amount < out[j].Amount
	})
	return out
}

func kindSuffix(kind string) string {
	if kind == "" {
		return ""
	}
	return " (" + kind + ")"
}

func noteSuffix(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return ""
	}
	return " - " + note
}

// FormatMoney renders whole dollars with thousands separators: $2,565,545.
func FormatMoney(v float64) string {
	n := int64(math.Round(v))
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String()
}

func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
