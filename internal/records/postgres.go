package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Section names stored in financial_items.section.
const (
	SectionIncome      = "income"
	SectionExpenses    = "expenses"
	SectionAssets      = "assets"
	SectionLiabilities = "liabilities"
	SectionGoals       = "goals"
	SectionTax         = "tax"
	SectionBenefits    = "benefits"
	SectionEstate      = "estate"
)

type profileModel struct {
	UserID        string `gorm:"column:user_id;primaryKey"`
	Name          string `gorm:"column:name"`
	Age           int    `gorm:"column:age"`
	RetirementAge int    `gorm:"column:retirement_age"`
	RiskTolerance string `gorm:"column:risk_tolerance"`
	FilingStatus  string `gorm:"column:filing_status"`
	State         string `gorm:"column:state"`
	UpdatedAt     time.Time
}

func (profileModel) TableName() string { return "client_profiles" }

type itemModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	UserID    string  `gorm:"column:user_id;index"`
	Section   string  `gorm:"column:section"`
	Name      string  `gorm:"column:name"`
	Kind      string  `gorm:"column:kind"`
	Account   string  `gorm:"column:account"`
	Amount    float64 `gorm:"column:amount"`
	Rate      float64 `gorm:"column:rate"`
	Payment   float64 `gorm:"column:payment"`
	Target    float64 `gorm:"column:target"`
	Year      int     `gorm:"column:target_year"`
	Note      string  `gorm:"column:note"`
	UpdatedAt time.Time
}

func (itemModel) TableName() string { return "financial_items" }

// PostgresSource reads canonical records from the application's relational
// database. The schema belongs to the CRUD side; this type only reads it.
type PostgresSource struct {
	db *gorm.DB
}

// ConnectPostgres opens and pings a gorm connection pool.
func ConnectPostgres(ctx context.Context, databaseURL string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func NewPostgresSource(db *gorm.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) ListUsers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&profileModel{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return ids, nil
}

func (s *PostgresSource) Load(ctx context.Context, userID string) (*Profile, error) {
	var pm profileModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	var rows []itemModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("section, name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load items %s: %w", userID, err)
	}
	return profileFromRows(pm, rows), nil
}

func profileFromRows(pm profileModel, rows []itemModel) *Profile {
	p := &Profile{
		UserID: pm.UserID,
		Identity: Identity{
			Name:          pm.Name,
			Age:           pm.Age,
			RetirementAge: pm.RetirementAge,
			RiskTolerance: pm.RiskTolerance,
			FilingStatus:  pm.FilingStatus,
			State:         pm.State,
		},
		UpdatedAt: pm.UpdatedAt,
	}
	for _, r := range rows {
		it := Item{Name: r.Name, Kind: r.Kind, Account: r.Account, Amount: r.Amount, Rate: r.Rate, Payment: r.Payment, Target: r.Target, Year: r.Year, Note: r.Note}
		if r.UpdatedAt.After(p.UpdatedAt) {
			p.UpdatedAt = r.UpdatedAt
		}
		switch r.Section {
		case SectionIncome:
			p.Income = append(p.Income, it)
		case SectionExpenses:
			p.Expenses = append(p.Expenses, it)
		case SectionAssets:
			p.Assets = append(p.Assets, it)
		case SectionLiabilities:
			p.Liabilities = append(p.Liabilities, it)
		case SectionGoals:
			p.Goals = append(p.Goals, it)
		case SectionTax:
			p.Tax = append(p.Tax, it)
		case SectionBenefits:
			p.Benefits = append(p.Benefits, it)
		case SectionEstate:
			p.Estate = append(p.Estate, it)
		}
	}
	return p
}
