package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Grant is the canonical record every data source normalizes into.
// JSON field names are a contract with the web front end and must not drift.
type Grant struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source"` // e.g. "grants.gov", "grants.gov.xml"

	Agency     string `json:"agency"`
	AgencyCode string `json:"agency_code"`

	OpportunityNumber string `json:"opportunity_number"`
	Category          string `json:"category"`
	Status            string `json:"status"`

	AwardFloor        *float64 `json:"award_floor"`
	AwardCeiling      *float64 `json:"award_ceiling"`
	TotalFunding      *float64 `json:"total_funding"`
	ExpectedAwards    *int     `json:"expected_awards"`
	FundingInstrument string   `json:"funding_instrument"` // Grant, Cooperative Agreement, ...
	CostSharing       bool     `json:"cost_sharing"`

	PostedDate  *Date `json:"posted_date"`
	CloseDate   *Date `json:"close_date"`
	LastUpdated *Date `json:"last_updated"`

	Description     string `json:"description"`
	Eligibility     string `json:"eligibility"`
	EligibilityCode string `json:"eligibility_code"`

	ContactEmail string `json:"contact_email"`
	URL          string `json:"url"`
	CFDANumber   string `json:"cfda_number"`

	// Source-specific extras with no fixed schema. The web export does not
	// surface these automatically.
	Metadata map[string]any `json:"metadata"`
}

// Validate returns a list of human-readable defects. An empty list means the
// record is valid; callers decide which defects are fatal.
func (g *Grant) Validate() []string {
	var errs []string

	if g.ID == "" {
		errs = append(errs, "grant id is required")
	}
	if g.Title == "" {
		errs = append(errs, "grant title is required")
	}
	if g.Source == "" {
		errs = append(errs, "grant source is required")
	}
	if g.Agency == "" {
		errs = append(errs, "grant agency is required")
	}

	if g.AwardFloor != nil && g.AwardCeiling != nil && *g.AwardFloor > *g.AwardCeiling {
		errs = append(errs, "award floor cannot be greater than award ceiling")
	}

	if g.PostedDate != nil && g.CloseDate != nil && g.PostedDate.After(*g.CloseDate) {
		errs = append(errs, "posted date cannot be after close date")
	}

	return errs
}

// IsOpen reports whether the grant is currently open for applications:
// status is "open" (case-insensitive) and the close date, when present,
// is strictly in the future.
func (g *Grant) IsOpen() bool {
	if !strings.EqualFold(g.Status, "open") {
		return false
	}
	if g.CloseDate == nil {
		return true
	}
	return g.CloseDate.After(Today())
}

// DaysUntilClose returns the signed day count from today to the close date.
// The second return value is false when no close date is set.
func (g *Grant) DaysUntilClose() (int, bool) {
	if g.CloseDate == nil {
		return 0, false
	}
	return g.CloseDate.DaysSince(Today()), true
}

// ToMap converts the grant to a flat key-value representation with dates as
// ISO-8601 strings. Round-tripping through FromMap is lossless.
func (g *Grant) ToMap() (map[string]any, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshaling grant %q: %w", g.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("flattening grant %q: %w", g.ID, err)
	}
	return m, nil
}

// FromMap reconstructs a Grant from its flat representation. Unparseable
// dates degrade to absent rather than failing.
func FromMap(m map[string]any) (Grant, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Grant{}, fmt.Errorf("encoding grant map: %w", err)
	}
	var g Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return Grant{}, fmt.Errorf("decoding grant map: %w", err)
	}
	g.scrubZeroDates()
	return g, nil
}

// scrubZeroDates converts dates that failed lenient parsing (left at their
// zero value) back into absent values.
func (g *Grant) scrubZeroDates() {
	if g.PostedDate != nil && g.PostedDate.IsZero() {
		g.PostedDate = nil
	}
	if g.CloseDate != nil && g.CloseDate.IsZero() {
		g.CloseDate = nil
	}
	if g.LastUpdated != nil && g.LastUpdated.IsZero() {
		g.LastUpdated = nil
	}
}
