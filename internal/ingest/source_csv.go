package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"strings"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// categoryNames maps opportunity category codes from the grants.gov extract
// to readable names.
var categoryNames = map[string]string{
	"D": "Discretionary",
	"M": "Mandatory",
	"C": "Continuation",
	"E": "Earmark",
	"O": "Other",
}

// instrumentNames maps funding instrument type codes to readable names.
var instrumentNames = map[string]string{
	"G":  "Grant",
	"CA": "Cooperative Agreement",
	"PC": "Procurement Contract",
	"O":  "Other",
}

func mapCategory(code string) string {
	if name, ok := categoryNames[strings.TrimSpace(code)]; ok {
		return name
	}
	return "General"
}

func mapInstrument(code string) string {
	if name, ok := instrumentNames[strings.TrimSpace(code)]; ok {
		return name
	}
	return "Grant"
}

// GrantsGovCSVSource reads the grants.gov CSV export with header-keyed
// field access.
type GrantsGovCSVSource struct {
	FileConfig
}

func NewGrantsGovCSVSource(config map[string]any) *GrantsGovCSVSource {
	return &GrantsGovCSVSource{FileConfig{Config: config}}
}

func (s *GrantsGovCSVSource) Name() string { return "grants.gov" }

func (s *GrantsGovCSVSource) ValidateConfig() []string {
	errs := s.FileConfig.ValidateConfig()
	if path := s.Path(); path != "" && !strings.HasSuffix(path, ".csv") {
		errs = append(errs, "grants.gov source requires a CSV file")
	}
	return errs
}

func (s *GrantsGovCSVSource) Fetch(ctx context.Context, opts FetchOptions) iter.Seq2[models.Grant, error] {
	return func(yield func(models.Grant, error) bool) {
		f, err := os.Open(s.Path())
		if err != nil {
			yield(models.Grant{}, fatalf("reading CSV file: %w", err))
			return
		}
		defer f.Close()

		log.Printf("[grants.gov] loading grants from CSV: %s", s.Path())

		reader := csv.NewReader(f)
		reader.LazyQuotes = true

		header, err := reader.Read()
		if err != nil {
			yield(models.Grant{}, fatalf("reading CSV header: %w", err))
			return
		}
		columns := make(map[string]int, len(header))
		for i, name := range header {
			columns[strings.TrimSpace(name)] = i
		}

		today := models.Today()
		yielded := 0

		for rowNum := 1; ; rowNum++ {
			if ctx.Err() != nil {
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					// Bad row: report it and keep reading.
					if !yield(models.Grant{}, fmt.Errorf("error processing row %d: %w", rowNum, err)) {
						return
					}
					continue
				}
				yield(models.Grant{}, fatalf("reading CSV file: %w", err))
				return
			}

			field := func(name string) string {
				i, ok := columns[name]
				if !ok || i >= len(record) {
					return ""
				}
				return cleanText(record[i])
			}

			grant := s.parseRow(field, today)

			if opts.FutureOnly && grant.CloseDate != nil && !grant.CloseDate.After(today) {
				continue
			}

			if !yield(grant, nil) {
				return
			}
			yielded++
			if opts.MaxRecords > 0 && yielded >= opts.MaxRecords {
				break
			}
		}

		log.Printf("[grants.gov] fetched %d grants", yielded)
	}
}

func (s *GrantsGovCSVSource) parseRow(field func(string) string, today models.Date) models.Grant {
	postedDate := parseExtractDate(field("post_date"))
	closeDate := parseExtractDate(field("close_date"))
	lastUpdated := parseExtractDate(field("last_updated_date"))

	// Forecasted when the posting date is still in the future.
	status := "Open"
	if postedDate != nil && postedDate.After(today) {
		status = "Forecasted"
	}

	title := field("opportunity_title")
	if title == "" {
		title = "Untitled Grant"
	}
	agency := field("agency_name")
	if agency == "" {
		agency = "Unknown Agency"
	}

	description := truncate(field("description"), 500)

	return models.Grant{
		ID:                field("opportunity_id"),
		Title:             title,
		Source:            s.Name(),
		Agency:            agency,
		AgencyCode:        field("agency_code"),
		OpportunityNumber: field("opportunity_number"),
		Category:          mapCategory(field("opportunity_category")),
		Status:            status,
		AwardFloor:        models.ParseMoney(field("award_floor")),
		AwardCeiling:      models.ParseMoney(field("award_ceiling")),
		TotalFunding:      models.ParseMoney(field("estimated_total_program_funding")),
		ExpectedAwards:    models.ParseCount(field("expected_number_of_awards")),
		FundingInstrument: mapInstrument(field("funding_instrument_type")),
		CostSharing:       strings.EqualFold(field("cost_sharing_requirement"), "YES"),
		PostedDate:        postedDate,
		CloseDate:         closeDate,
		LastUpdated:       lastUpdated,
		Description:       description,
		Eligibility:       field("additional_eligibility_info"),
		EligibilityCode:   field("eligible_applicants"),
		ContactEmail:      field("grantor_contact_email"),
		URL:               field("additional_info_url"),
		CFDANumber:        field("cfda_numbers"),
		Metadata: map[string]any{
			"category_of_funding_activity": field("category_of_funding_activity"),
			"version":                      field("version"),
			"grantor_contact_text":         field("grantor_contact_text"),
		},
	}
}

// parseExtractDate handles the fixed-width numeric encodings the extracts
// use (7-digit MDDYYYY or 8-digit MMDDYYYY) and falls back to the standard
// textual formats. Anything implausible yields absent.
func parseExtractDate(s string) *models.Date {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return nil
	}

	if isDigits(s) {
		var month, day, year int
		switch len(s) {
		case 7: // MDDYYYY: single-digit month
			month = atoi(s[0:1])
			day = atoi(s[1:3])
			year = atoi(s[3:7])
		case 8: // MMDDYYYY
			month = atoi(s[0:2])
			day = atoi(s[2:4])
			year = atoi(s[4:8])
		default:
			return nil
		}
		if month < 1 || month > 12 || day < 1 || day > 31 || year < 2020 || year > 2030 {
			return nil
		}
		d := models.NewDate(year, timeMonth(month), day)
		return &d
	}

	return models.ParseDatePtr(s)
}
