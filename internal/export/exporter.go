// Package export writes collected grants to JSON artifacts: full dumps,
// the web application feed, per-source files and aggregate statistics.
package export

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// Exporter writes JSON files under a fixed output directory. Timestamped
// filenames make successive runs non-destructive.
type Exporter struct {
	OutputDir string
}

func NewExporter(outputDir string) *Exporter {
	return &Exporter{OutputDir: outputDir}
}

// ExportGrants writes the full grant dump. An empty filename picks a
// timestamped default (grants_data_YYYYMMDD_HHMMSS.json). Returns the path
// of the written file.
func (e *Exporter) ExportGrants(grants []models.Grant, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("grants_data_%s.json", timestamp())
	}
	path := filepath.Join(e.OutputDir, filename)
	if err := e.ExportFile(grants, path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportFile writes grants to an explicit path, creating parent directories.
func (e *Exporter) ExportFile(grants []models.Grant, path string) error {
	log.Printf("[export] exporting %d grants to %s", len(grants), path)
	return writeJSON(path, grants)
}

// ExportWebFormat writes the fixed field subset the web front end consumes.
// The key set is a contract: adding or renaming keys breaks the site.
func (e *Exporter) ExportWebFormat(grants []models.Grant, path string) error {
	web := make([]webGrant, 0, len(grants))
	for i := range grants {
		web = append(web, toWebGrant(&grants[i]))
	}
	log.Printf("[export] exporting %d grants for web to %s", len(web), path)
	return writeJSON(path, web)
}

// ExportBySource groups grants by their source tag. With separateFiles each
// source gets its own timestamped file; otherwise one grouped file is
// written. Returns the paths of all written files.
func (e *Exporter) ExportBySource(grants []models.Grant, separateFiles bool) ([]string, error) {
	bySource := make(map[string][]models.Grant)
	for _, g := range grants {
		bySource[g.Source] = append(bySource[g.Source], g)
	}

	ts := timestamp()

	if separateFiles {
		sources := make([]string, 0, len(bySource))
		for source := range bySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		var paths []string
		for _, source := range sources {
			safe := strings.NewReplacer(".", "_", "/", "_").Replace(source)
			path, err := e.ExportGrants(bySource[source], fmt.Sprintf("grants_%s_%s.json", safe, ts))
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
		return paths, nil
	}

	path := filepath.Join(e.OutputDir, fmt.Sprintf("grants_by_source_%s.json", ts))
	log.Printf("[export] exporting %d grants grouped by source to %s", len(grants), path)
	if err := writeJSON(path, bySource); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ExportStatistics writes the aggregate report for a collection. An empty
// filename picks a timestamped default. Returns the path of the written file.
func (e *Exporter) ExportStatistics(grants []models.Grant, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("grants_statistics_%s.json", timestamp())
	}
	path := filepath.Join(e.OutputDir, filename)

	stats := CalculateStatistics(grants)
	log.Printf("[export] exporting statistics to %s", path)
	if err := writeJSON(path, stats); err != nil {
		return "", err
	}
	return path, nil
}

// webGrant is the web feed record. Field order here is the order in the
// emitted JSON.
type webGrant struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Agency            string         `json:"agency"`
	Description       string         `json:"description"`
	Source            string         `json:"source"`
	Category          string         `json:"category"`
	Status            string         `json:"status"`
	AwardFloor        *float64       `json:"award_floor"`
	AwardCeiling      *float64       `json:"award_ceiling"`
	PostedDate        *models.Date   `json:"posted_date"`
	CloseDate         *models.Date   `json:"close_date"`
	URL               string         `json:"url"`
	Eligibility       string         `json:"eligibility"`
	CFDANumber        string         `json:"cfda_number"`
	FundingInstrument string         `json:"funding_instrument"`
	ExpectedAwards    *int           `json:"expected_awards"`
	CostSharing       bool           `json:"cost_sharing"`
	TotalFunding      *float64       `json:"total_funding"`
	OpportunityNumber string         `json:"opportunity_number"`
	AgencyCode        string         `json:"agency_code"`
	ContactEmail      string         `json:"contact_email"`
	EligibilityCode   string         `json:"eligibility_code"`
	Metadata          map[string]any `json:"metadata"`
}

func toWebGrant(g *models.Grant) webGrant {
	return webGrant{
		ID:                g.ID,
		Title:             g.Title,
		Agency:            g.Agency,
		Description:       g.Description,
		Source:            g.Source,
		Category:          g.Category,
		Status:            g.Status,
		AwardFloor:        g.AwardFloor,
		AwardCeiling:      g.AwardCeiling,
		PostedDate:        g.PostedDate,
		CloseDate:         g.CloseDate,
		URL:               g.URL,
		Eligibility:       g.Eligibility,
		CFDANumber:        g.CFDANumber,
		FundingInstrument: g.FundingInstrument,
		ExpectedAwards:    g.ExpectedAwards,
		CostSharing:       g.CostSharing,
		TotalFunding:      g.TotalFunding,
		OpportunityNumber: g.OpportunityNumber,
		AgencyCode:        g.AgencyCode,
		ContactEmail:      g.ContactEmail,
		EligibilityCode:   g.EligibilityCode,
		Metadata:          g.Metadata,
	}
}

func timestamp() string {
	return time.Now().Format("20060102_150405")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
