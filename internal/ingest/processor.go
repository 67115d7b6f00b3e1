package ingest

import (
	"log"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 1000
)

// Processor post-processes collected grants before export: dropping broken
// records, stripping markup, bounding field sizes, deduplicating, sorting.
type Processor struct {
	sanitizer *bluemonday.Policy
}

func NewProcessor() *Processor {
	return &Processor{sanitizer: bluemonday.StrictPolicy()}
}

// Clean drops records missing a required field and normalizes the rest.
// Titles lose embedded markup and are cut plain at 200 bytes, descriptions
// are sanitized and bounded at 1000 with an ellipsis marker, negative
// amounts become absent.
func (p *Processor) Clean(grants []models.Grant) []models.Grant {
	cleaned := make([]models.Grant, 0, len(grants))
	dropped := 0

	for _, g := range grants {
		if missingRequired(g) {
			dropped++
			continue
		}

		g.Title = truncate(strings.TrimSpace(htmlToText(g.Title)), maxTitleLen)
		g.Description = truncateText(strings.TrimSpace(p.sanitizer.Sanitize(g.Description)), maxDescriptionLen)

		g.AwardFloor = dropNegative(g.AwardFloor)
		g.AwardCeiling = dropNegative(g.AwardCeiling)
		g.TotalFunding = dropNegative(g.TotalFunding)

		cleaned = append(cleaned, g)
	}

	if dropped > 0 {
		log.Printf("[processor] dropped %d invalid grants during cleaning", dropped)
	}
	return cleaned
}

func missingRequired(g models.Grant) bool {
	for _, defect := range g.Validate() {
		if strings.Contains(defect, "required") {
			return true
		}
	}
	return false
}

func dropNegative(v *float64) *float64 {
	if v != nil && *v < 0 {
		return nil
	}
	return v
}

// htmlToText strips tags from a fragment, keeping the visible text. Plain
// strings pass through unchanged.
func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return cleanText(doc.Text())
}

// Deduplicate removes repeated grants, keeping the first occurrence.
// Identity is source + id + case-folded title: the same opportunity arriving
// from two sources is two records.
func (p *Processor) Deduplicate(grants []models.Grant) []models.Grant {
	seen := make(map[string]struct{}, len(grants))
	unique := make([]models.Grant, 0, len(grants))

	for _, g := range grants {
		key := g.Source + ":" + g.ID + ":" + strings.ToLower(g.Title)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, g)
	}

	if removed := len(grants) - len(unique); removed > 0 {
		log.Printf("[processor] removed %d duplicate grants", removed)
	}
	return unique
}

// Sentinels push grants without a date to the end of either ordering.
var (
	farFuture = models.NewDate(9999, 12, 31)
	farPast   = models.NewDate(1900, 1, 1)
)

// Sort orders grants by the named key: "close_date" ascending (undated
// last), "posted_date" descending (undated last), "title" and "agency"
// case-insensitive ascending. An unknown key logs a warning and leaves the
// input order untouched. Sorting is stable and in place.
func (p *Processor) Sort(grants []models.Grant, key string) []models.Grant {
	var less func(a, b models.Grant) bool

	switch key {
	case "close_date":
		less = func(a, b models.Grant) bool {
			return dateOr(a.CloseDate, farFuture).Before(dateOr(b.CloseDate, farFuture))
		}
	case "posted_date":
		less = func(a, b models.Grant) bool {
			return dateOr(b.PostedDate, farPast).Before(dateOr(a.PostedDate, farPast))
		}
	case "title":
		less = func(a, b models.Grant) bool {
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		}
	case "agency":
		less = func(a, b models.Grant) bool {
			return strings.ToLower(a.Agency) < strings.ToLower(b.Agency)
		}
	default:
		log.Printf("[processor] unknown sort key: %s", key)
		return grants
	}

	sort.SliceStable(grants, func(i, j int) bool { return less(grants[i], grants[j]) })
	return grants
}

func dateOr(d *models.Date, fallback models.Date) models.Date {
	if d == nil {
		return fallback
	}
	return *d
}
