// Package records is the read-only boundary to the relational source of
// truth that holds a client's financial data.
package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrUnknownUser = errors.New("unknown user")

// Identity holds the facts that describe the client themself.
type Identity struct {
	Name          string `yaml:"name" json:"name"`
	Age           int    `yaml:"age" json:"age"`
	RetirementAge int    `yaml:"retirement_age" json:"retirement_age"`
	RiskTolerance string `yaml:"risk_tolerance" json:"risk_tolerance"`
	FilingStatus  string `yaml:"filing_status" json:"filing_status"`
	State         string `yaml:"state" json:"state"`
}

// Item is one canonical line of financial data. How Amount is read depends
// on the section it lives in: annual for income, monthly for expenses,
// market value for assets, outstanding balance for liabilities, saved so far
// for goals.
type Item struct {
	Name    string  `yaml:"name" json:"name"`
	Kind    string  `yaml:"kind" json:"kind"`       // asset class for assets
	Account string  `yaml:"account" json:"account"` // account type for assets: 401k, ira, taxable...
	Amount  float64 `yaml:"amount" json:"amount"`
	Rate    float64 `yaml:"rate" json:"rate"`       // percent: APR, contribution or bracket
	Payment float64 `yaml:"payment" json:"payment"` // monthly payment for liabilities
	Target  float64 `yaml:"target" json:"target"`   // goal target amount
	Year    int     `yaml:"year" json:"year"`       // goal target year
	Note    string  `yaml:"note" json:"note"`
}

// Profile is the full canonical record set for one user.
type Profile struct {
	UserID      string    `yaml:"user_id" json:"user_id"`
	Identity    Identity  `yaml:"identity" json:"identity"`
	Income      []Item    `yaml:"income" json:"income"`
	Expenses    []Item    `yaml:"expenses" json:"expenses"`
	Assets      []Item    `yaml:"assets" json:"assets"`
	Liabilities []Item    `yaml:"liabilities" json:"liabilities"`
	Goals       []Item    `yaml:"goals" json:"goals"`
	Tax         []Item    `yaml:"tax" json:"tax"`
	Benefits    []Item    `yaml:"benefits" json:"benefits"`
	Estate      []Item    `yaml:"estate" json:"estate"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// Source gives read access to canonical records.
type Source interface {
	ListUsers(ctx context.Context) ([]string, error)
	Load(ctx context.Context, userID string) (*Profile, error)
}

// Invalidation tells the sync side that a user's records changed.
type Invalidation struct {
	UserID       string `json:"user_id"`
	ForceRebuild bool   `json:"force_rebuild"`
}

// MemorySource is an in-process Source, used for fixtures and tests.
type MemorySource struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewMemorySource(profiles ...Profile) *MemorySource {
	s := &MemorySource{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *MemorySource) Upsert(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *MemorySource) ListUsers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemorySource) Load(ctx context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrUnknownUser
	}
	return &p, nil
}
