package records

import "time"

// SampleProfile returns a complete demo client whose net worth is
// $2,565,545. It backs fixtures and the demo data directory.
func SampleProfile(userID string) Profile {
	return Profile{
		UserID: userID,
		Identity: Identity{
			Name:          "Alex Morgan",
			Age:           52,
			RetirementAge: 65,
			RiskTolerance: "moderate",
			FilingStatus:  "married filing jointly",
			State:         "CA",
		},
		Income: []Item{
			{Name: "Salary", Kind: "w2", Amount: 240000},
			{Name: "Rental income", Kind: "rental", Amount: 36000},
		},
		Expenses: []Item{
			{Name: "Housing", Amount: 2400, Note: "property tax and upkeep"},
			{Name: "Living", Amount: 6800},
			{Name: "Insurance", Amount: 900},
		},
		Assets: []Item{
			{Name: "401k", Kind: "equities", Account: "401k", Amount: 1450000},
			{Name: "Brokerage", Kind: "equities", Account: "taxable", Amount: 820000},
			{Name: "Roth IRA", Kind: "bonds", Account: "roth_ira", Amount: 310000},
			{Name: "Primary residence", Kind: "real_estate", Amount: 950000},
			{Name: "Cash savings", Kind: "cash", Amount: 85545},
		},
		Liabilities: []Item{
			{Name: "Mortgage", Amount: 1020000, Rate: 3.25, Payment: 5200},
			{Name: "Auto loan", Amount: 30000, Rate: 6.9, Payment: 650},
		},
		Goals: []Item{
			{Name: "Retirement", Amount: 1760000, Target: 4000000, Year: 2039},
			{Name: "College fund", Amount: 120000, Target: 300000, Year: 2032},
		},
		Tax: []Item{
			{Name: "Federal marginal bracket", Rate: 24},
			{Name: "State marginal bracket", Rate: 9.3},
			{Name: "Capital loss carryforward", Amount: 12000},
		},
		Benefits: []Item{
			{Name: "Employer 401k match", Kind: "retirement", Note: "dollar for dollar up to 6 percent of salary"},
			{Name: "Term life insurance", Kind: "insurance", Amount: 1500000},
		},
		Estate: []Item{
			{Name: "Revocable living trust", Note: "last reviewed 2024"},
			{Name: "Beneficiary designations", Note: "current on all retirement accounts"},
		},
		UpdatedAt: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}
