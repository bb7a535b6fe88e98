package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinPortfolioNameLength        = 5
	MinPortfolioDescriptionLength = 10
)

// DateLayout is the calendar-date form accepted for acquisition dates.
const DateLayout = "2006-01-02"

// CreatePortfolioRequest is the body of POST /portfolios
type CreatePortfolioRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Symbols     []string `json:"symbols"`
}

// Validate returns one message per failed rule.
func (r *CreatePortfolioRequest) Validate() []string {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)

	var problems []string
	problems = append(problems, validateName(r.Name)...)
	problems = append(problems, validateDescription(r.Description)...)
	return problems
}

// UpdatePortfolioRequest is the body of PATCH /portfolios/:id. Absent fields
// are left unchanged.
type UpdatePortfolioRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r *UpdatePortfolioRequest) Validate() []string {
	var problems []string
	if r.Name != nil {
		n := strings.TrimSpace(*r.Name)
		r.Name = &n
		problems = append(problems, validateName(n)...)
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
		problems = append(problems, validateDescription(d)...)
	}
	if r.Name == nil && r.Description == nil {
		problems = append(problems, "name or description is required")
	}
	return problems
}

func validateName(name string) []string {
	switch {
	case name == "":
		return []string{"name is required"}
	case len([]rune(name)) < MinPortfolioNameLength:
		return []string{fmt.Sprintf("name must be at least %d characters", MinPortfolioNameLength)}
	}
	return nil
}

func validateDescription(desc string) []string {
	switch {
	case desc == "":
		return []string{"description is required"}
	case len([]rune(desc)) < MinPortfolioDescriptionLength:
		return []string{fmt.Sprintf("description must be at least %d characters", MinPortfolioDescriptionLength)}
	}
	return nil
}

type AddAssetRequest struct {
	Symbol string `json:"symbol"`
}

type ResolveAssetRequest struct {
	Symbol string `json:"symbol"`
}

// AddLotRequest is one element of the POST /portfolios/:id/lots body. The
// body may also be a JSON array of these.
type AddLotRequest struct {
	AssetID      string          `json:"asset_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	AcquiredDate string          `json:"acquired_date"`
}

// Input converts the request into a LotInput, parsing the acquisition date.
func (r AddLotRequest) Input() (LotInput, error) {
	date, err := ParseDate(r.AcquiredDate)
	if err != nil {
		return LotInput{}, err
	}
	return LotInput{
		AssetID:      strings.TrimSpace(r.AssetID),
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		AcquiredDate: date,
	}, nil
}

// UpdateLotRequest is the body of PATCH /lots/:id.
type UpdateLotRequest struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	AcquiredDate *string          `json:"acquired_date"`
}

func (r UpdateLotRequest) Update() (LotUpdate, error) {
	upd := LotUpdate{Quantity: r.Quantity, UnitPrice: r.UnitPrice}
	if r.AcquiredDate != nil {
		date, err := ParseDate(*r.AcquiredDate)
		if err != nil {
			return LotUpdate{}, err
		}
		upd.AcquiredDate = &date
	}
	return upd, nil
}

// ParseDate accepts either a calendar date or an RFC 3339 timestamp and
// returns midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("acquired_date is required")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("acquired_date must be YYYY-MM-DD")
		}
	}
	return TruncateDate(t), nil
}

// TruncateDate drops the time of day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// LotInput carries the fields of a new lot.
type LotInput struct {
	AssetID      string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	AcquiredDate time.Time
}

// LotUpdate carries the fields an update may supply; nil means not supplied.
type LotUpdate struct {
	Quantity     *decimal.Decimal
	UnitPrice    *decimal.Decimal
	AcquiredDate *time.Time
}
