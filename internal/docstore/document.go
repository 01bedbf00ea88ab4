package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is one of the fixed financial topics a document can cover.
type Category string

const (
	CategorySummary     Category = "financial_summary"
	CategoryIncome      Category = "income"
	CategoryExpenses    Category = "expenses"
	CategoryAssets      Category = "assets"
	CategoryLiabilities Category = "liabilities"
	CategoryGoals       Category = "goals"
	CategoryTax         Category = "tax"
	CategoryBenefits    Category = "benefits"
	CategoryEstate      Category = "estate"
	CategoryChatMemory  Category = "chat_memory"
)

// Categories lists every category in priority order. Retrieval tie-breaks
// and Query ordering both follow this slice.
var Categories = []Category{
	CategorySummary,
	CategoryIncome,
	CategoryExpenses,
	CategoryAssets,
	CategoryLiabilities,
	CategoryGoals,
	CategoryTax,
	CategoryBenefits,
	CategoryEstate,
	CategoryChatMemory,
}

var priority = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

// Priority returns the tie-break rank of c (lower wins). Unknown categories
// sort after all known ones.
func Priority(c Category) int {
	if p, ok := priority[c]; ok {
		return p
	}
	return len(Categories)
}

func (c Category) Valid() bool {
	_, ok := priority[c]
	return ok
}

var (
	ErrNotFound        = errors.New("document not found")
	ErrInvalidCategory = errors.New("invalid category")
)

type Metadata struct {
	SourceTable string    `json:"source_table"`
	LastUpdated time.Time `json:"last_updated"`
	ContentHash string    `json:"content_hash"`
}

// Document is the cached rendering of one user's data for one category.
type Document struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	Category Category `json:"category"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Store persists documents keyed by (user, category).
//
// Put computes the content hash itself. When the stored hash matches and
// force is false the call is a no-op and reports changed=false. Otherwise the
// whole document is replaced.
type Store interface {
	Put(ctx context.Context, doc Document, force bool) (bool, error)
	Get(ctx context.Context, id string) (Document, error)
	Query(ctx context.Context, userID string, categories ...Category) ([]Document, error)
	Close() error
}

// DocID derives the document id for a user/category pair.
func DocID(userID string, c Category) string {
	return fmt.Sprintf("user_%s_%s", userID, c)
}

// ParseDocID splits an id produced by DocID back into its parts.
func ParseDocID(id string) (string, Category, bool) {
	rest, ok := strings.CutPrefix(id, "user_")
	if !ok {
		return "", "", false
	}
	for _, c := range Categories {
		if userID, ok := strings.CutSuffix(rest, "_"+string(c)); ok && userID != "" {
			return userID, c, true
		}
	}
	return "", "", false
}

// ContentHash is the per-document digest used for change detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// prepare validates doc and fills its derived fields.
func prepare(doc Document, now time.Time) (Document, error) {
	if doc.UserID == "" {
		return Document{}, fmt.Errorf("document user id is empty")
	}
	if !doc.Category.Valid() {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidCategory, doc.Category)
	}
	doc.ID = DocID(doc.UserID, doc.Category)
	doc.Metadata.ContentHash = ContentHash(doc.Content)
	if doc.Metadata.LastUpdated.IsZero() {
		doc.Metadata.LastUpdated = now
	}
	doc.Metadata.LastUpdated = doc.Metadata.LastUpdated.UTC()
	return doc, nil
}

func categoryFilter(categories []Category) map[Category]bool {
	if len(categories) == 0 {
		return nil
	}
	m := make(map[Category]bool, len(categories))
	for _, c := range categories {
		m[c] = true
	}
	return m
}
