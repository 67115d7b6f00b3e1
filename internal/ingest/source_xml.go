package ingest

import (
	"context"
	"iter"
	"log"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// GrantsGovXMLSource reads a grants.gov XML database extract from a local
// file. Upstream schemas drift (namespaced OpportunitySynopsisDetail_1_0
// documents, older OpportunityDetail layouts, renamed tags), so field
// mapping is a best-effort search across the known tag-name variants
// instead of a fixed schema.
type GrantsGovXMLSource struct {
	FileConfig
}

func NewGrantsGovXMLSource(config map[string]any) *GrantsGovXMLSource {
	return &GrantsGovXMLSource{FileConfig{Config: config}}
}

func (s *GrantsGovXMLSource) Name() string { return "grants.gov.xml" }

func (s *GrantsGovXMLSource) ValidateConfig() []string {
	errs := s.FileConfig.ValidateConfig()
	if path := s.Path(); path != "" && !strings.HasSuffix(path, ".xml") {
		errs = append(errs, "grants.gov XML source requires an XML file")
	}
	return errs
}

func (s *GrantsGovXMLSource) Fetch(ctx context.Context, opts FetchOptions) iter.Seq2[models.Grant, error] {
	return func(yield func(models.Grant, error) bool) {
		f, err := os.Open(s.Path())
		if err != nil {
			yield(models.Grant{}, fatalf("reading XML file: %w", err))
			return
		}
		defer f.Close()

		log.Printf("[grants.gov.xml] loading grants from XML: %s", s.Path())

		doc, err := xmlquery.Parse(f)
		if err != nil {
			yield(models.Grant{}, fatalf("parsing XML file %s: %w", s.Path(), err))
			return
		}

		yieldOpportunities(ctx, doc, s.Name(), opts, yield)
	}
}

// yieldOpportunities walks every opportunity element in a parsed document
// and yields the grants that map successfully. Shared by the file-backed
// and the remote-extract sources.
func yieldOpportunities(ctx context.Context, doc *xmlquery.Node, source string, opts FetchOptions, yield func(models.Grant, error) bool) {
	opportunities := xmlquery.Find(doc,
		"//*[local-name()='OpportunitySynopsisDetail_1_0' or local-name()='OpportunityDetail' or local-name()='Opportunity']")
	log.Printf("[%s] found %d opportunities in XML", source, len(opportunities))

	today := models.Today()
	yielded := 0

	for _, node := range opportunities {
		if ctx.Err() != nil {
			return
		}

		grant, ok := parseOpportunity(node, source)
		if !ok {
			// Missing identifier or title: skip this element, keep the rest.
			log.Printf("[%s] skipping opportunity element without id/title", source)
			continue
		}

		if opts.FutureOnly && grant.CloseDate != nil && !grant.CloseDate.After(today) {
			continue
		}

		if !yield(grant, nil) {
			return
		}
		yielded++
		if opts.MaxRecords > 0 && yielded >= opts.MaxRecords {
			return
		}
	}
}

// parseOpportunity maps one opportunity element to the canonical record.
// Returns ok=false when the element has no usable identifier or title.
func parseOpportunity(node *xmlquery.Node, source string) (models.Grant, bool) {
	id := findText(node, "OpportunityID", "OpportunityNumber", "ID")
	title := findText(node, "OpportunityTitle", "Title")
	if id == "" || title == "" {
		return models.Grant{}, false
	}

	agency := findText(node, "AgencyName", "Agency")
	if agency == "" {
		agency = "Unknown Agency"
	}

	status := findText(node, "Status", "OpportunityStatus")
	if status == "" {
		status = "Open"
	}

	description := truncate(findText(node, "Description", "Synopsis"), 500)

	costSharing := findText(node, "CostSharingOrMatchingRequirement", "CostSharingRequired")

	grant := models.Grant{
		ID:                id,
		Title:             title,
		Source:            source,
		Agency:            agency,
		AgencyCode:        findText(node, "AgencyCode"),
		OpportunityNumber: findText(node, "OpportunityNumber"),
		Category:          mapCategory(findText(node, "OpportunityCategory", "Category")),
		Status:            status,
		AwardFloor:        models.ParseMoney(findText(node, "AwardFloor", "MinAward")),
		AwardCeiling:      models.ParseMoney(findText(node, "AwardCeiling", "MaxAward")),
		TotalFunding:      models.ParseMoney(findText(node, "EstimatedTotalProgramFunding", "TotalFunding")),
		ExpectedAwards:    models.ParseCount(findText(node, "ExpectedNumberOfAwards")),
		FundingInstrument: mapInstrument(findText(node, "FundingInstrumentType", "InstrumentType")),
		CostSharing:       strings.EqualFold(costSharing, "YES") || models.ParseFlag(costSharing),
		PostedDate:        parseXMLDate(findText(node, "PostDate", "PostedDate")),
		CloseDate:         parseXMLDate(findText(node, "CloseDate", "ApplicationDueDate")),
		LastUpdated:       parseXMLDate(findText(node, "LastUpdatedDate", "LastUpdateDate")),
		Description:       description,
		Eligibility:       findText(node, "AdditionalInformationOnEligibility", "AdditionalEligibilityInfo"),
		EligibilityCode:   findText(node, "EligibleApplicants"),
		ContactEmail:      findText(node, "GrantorContactEmail"),
		URL:               findText(node, "AdditionalInformationURL"),
		CFDANumber:        findText(node, "CFDANumbers", "CFDANumber", "CFDA"),
		Metadata: map[string]any{
			"version":              findText(node, "Version"),
			"category_explanation": findText(node, "CategoryExplanation"),
			"grantor_contact_text": findText(node, "GrantorContactText"),
		},
	}

	// The extract's archive date has no canonical field; keep it reachable.
	if archive := parseXMLDate(findText(node, "ArchiveDate")); archive != nil {
		grant.Metadata["archive_date"] = archive.String()
	}

	return grant, true
}

// findText returns the first non-empty text among the tag-name variants,
// matching by local name so namespaced documents work unchanged.
func findText(node *xmlquery.Node, tags ...string) string {
	for _, tag := range tags {
		if el := xmlquery.FindOne(node, ".//*[local-name()='"+tag+"']"); el != nil {
			if text := cleanText(el.InnerText()); text != "" {
				return text
			}
		}
	}
	return ""
}

// parseXMLDate handles the 8-digit MMDDYYYY encoding the XML extracts use,
// with a textual fallback. Absent on failure.
func parseXMLDate(s string) *models.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isDigits(s) && len(s) == 8 {
		month := atoi(s[0:2])
		day := atoi(s[2:4])
		year := atoi(s[4:8])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return nil
		}
		d := models.NewDate(year, timeMonth(month), day)
		return &d
	}
	return models.ParseDatePtr(s)
}
