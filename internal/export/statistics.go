package export

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// Statistics is the aggregate report over a grant collection.
type Statistics struct {
	Summary             Summary       `json:"summary"`
	BySource            RankedCounts  `json:"by_source"`
	ByAgency            RankedCounts  `json:"by_agency"`
	ByCategory          RankedCounts  `json:"by_category"`
	ByStatus            RankedCounts  `json:"by_status"`
	ByFundingInstrument RankedCounts  `json:"by_funding_instrument"`
	FundingRanges       FundingRanges `json:"funding_ranges"`
	GeneratedAt         time.Time     `json:"generated_at"`
	RunID               string        `json:"run_id"`
}

type Summary struct {
	TotalGrants           int     `json:"total_grants"`
	OpenGrants            int     `json:"open_grants"`
	TotalEstimatedFunding float64 `json:"total_estimated_funding"`
	UniqueAgencies        int     `json:"unique_agencies"`
	UniqueSources         int     `json:"unique_sources"`
}

// FundingRanges is a histogram over award ceilings.
type FundingRanges struct {
	Under100K   int `json:"under_100k"`
	From100K    int `json:"100k_500k"`
	From500K    int `json:"500k_1m"`
	From1M      int `json:"1m_5m"`
	From5M      int `json:"5m_10m"`
	Over10M     int `json:"over_10m"`
	Unspecified int `json:"unspecified"`
}

// RankedCounts is a name-to-count mapping that serializes as a JSON object
// ordered by descending count (name ascending on ties), optionally truncated
// to the top Limit entries. Plain maps would marshal alphabetically.
type RankedCounts struct {
	Counts map[string]int
	Limit  int // 0 means all
}

func (r RankedCounts) MarshalJSON() ([]byte, error) {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(r.Counts))
	for name, count := range r.Counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if r.Limit > 0 && len(entries) > r.Limit {
		entries = entries[:r.Limit]
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(e.count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// topAgencies bounds the by_agency section; federal extracts carry hundreds
// of agencies and the report only needs the biggest.
const topAgencies = 20

// CalculateStatistics aggregates a collection into the report structure.
// Estimated funding per grant prefers the stated total, then award ceiling
// times expected awards, then the ceiling alone.
func CalculateStatistics(grants []models.Grant) Statistics {
	bySource := make(map[string]int)
	byAgency := make(map[string]int)
	byCategory := make(map[string]int)
	byStatus := make(map[string]int)
	byInstrument := make(map[string]int)

	var ranges FundingRanges
	totalFunding := 0.0
	openGrants := 0

	for i := range grants {
		g := &grants[i]

		bySource[g.Source]++
		byAgency[g.Agency]++
		byCategory[g.Category]++
		byStatus[g.Status]++
		byInstrument[g.FundingInstrument]++

		switch {
		case g.TotalFunding != nil && *g.TotalFunding > 0:
			totalFunding += *g.TotalFunding
		case g.AwardCeiling != nil && *g.AwardCeiling > 0 && g.ExpectedAwards != nil && *g.ExpectedAwards > 0:
			totalFunding += *g.AwardCeiling * float64(*g.ExpectedAwards)
		case g.AwardCeiling != nil && *g.AwardCeiling > 0:
			totalFunding += *g.AwardCeiling
		}

		if g.IsOpen() {
			openGrants++
		}

		switch ceiling := g.AwardCeiling; {
		case ceiling == nil || *ceiling <= 0:
			ranges.Unspecified++
		case *ceiling < 100_000:
			ranges.Under100K++
		case *ceiling < 500_000:
			ranges.From100K++
		case *ceiling < 1_000_000:
			ranges.From500K++
		case *ceiling < 5_000_000:
			ranges.From1M++
		case *ceiling < 10_000_000:
			ranges.From5M++
		default:
			ranges.Over10M++
		}
	}

	return Statistics{
		Summary: Summary{
			TotalGrants:           len(grants),
			OpenGrants:            openGrants,
			TotalEstimatedFunding: totalFunding,
			UniqueAgencies:        len(byAgency),
			UniqueSources:         len(bySource),
		},
		BySource:            RankedCounts{Counts: bySource},
		ByAgency:            RankedCounts{Counts: byAgency, Limit: topAgencies},
		ByCategory:          RankedCounts{Counts: byCategory},
		ByStatus:            RankedCounts{Counts: byStatus},
		ByFundingInstrument: RankedCounts{Counts: byInstrument},
		FundingRanges:       ranges,
		GeneratedAt:         time.Now(),
		RunID:               uuid.NewString(),
	}
}
