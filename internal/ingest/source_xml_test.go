package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeXML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.xml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const namespacedExtract = `<?xml version="1.0" encoding="UTF-8"?>
<Grants xmlns="http://apply.grants.gov/system/OpportunityDetail-V1.0">
  <OpportunitySynopsisDetail_1_0>
    <OpportunityID>360000</OpportunityID>
    <OpportunityTitle>Coastal Resilience Program</OpportunityTitle>
    <OpportunityNumber>NOAA-CR-2026</OpportunityNumber>
    <AgencyName>NOAA</AgencyName>
    <AgencyCode>DOC-NOAA</AgencyCode>
    <OpportunityCategory>D</OpportunityCategory>
    <FundingInstrumentType>CA</FundingInstrumentType>
    <AwardFloor>100000</AwardFloor>
    <AwardCeiling>750000</AwardCeiling>
    <EstimatedTotalProgramFunding>5000000</EstimatedTotalProgramFunding>
    <ExpectedNumberOfAwards>8</ExpectedNumberOfAwards>
    <CostSharingOrMatchingRequirement>Yes</CostSharingOrMatchingRequirement>
    <PostDate>01102026</PostDate>
    <CloseDate>09302026</CloseDate>
    <LastUpdatedDate>02012026</LastUpdatedDate>
    <ArchiveDate>10302026</ArchiveDate>
    <Description>Restoring coastal habitats</Description>
    <EligibleApplicants>99</EligibleApplicants>
    <GrantorContactEmail>cr@noaa.gov</GrantorContactEmail>
    <AdditionalInformationURL>https://example.org/noaa</AdditionalInformationURL>
    <CFDANumbers>11.473</CFDANumbers>
    <Version>Synopsis 2</Version>
  </OpportunitySynopsisDetail_1_0>
  <OpportunitySynopsisDetail_1_0>
    <OpportunityTitle>Orphan Record Without ID</OpportunityTitle>
  </OpportunitySynopsisDetail_1_0>
  <OpportunitySynopsisDetail_1_0>
    <OpportunityID>360001</OpportunityID>
    <OpportunityTitle>Fisheries Innovation</OpportunityTitle>
    <AgencyName>NOAA</AgencyName>
    <CloseDate>08152026</CloseDate>
  </OpportunitySynopsisDetail_1_0>
</Grants>
`

func TestXMLSourceParsesNamespacedExtract(t *testing.T) {
	src := NewGrantsGovXMLSource(map[string]any{"file_path": writeXML(t, namespacedExtract)})

	grants, errs := collect(t, src, FetchOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants (element without id skipped), got %d", len(grants))
	}

	g := grants[0]
	if g.ID != "360000" || g.Title != "Coastal Resilience Program" {
		t.Errorf("identity fields wrong: %+v", g)
	}
	if g.Source != "grants.gov.xml" {
		t.Errorf("expected source grants.gov.xml, got %s", g.Source)
	}
	if g.Agency != "NOAA" || g.AgencyCode != "DOC-NOAA" {
		t.Errorf("agency fields wrong: %+v", g)
	}
	if g.Category != "Discretionary" || g.FundingInstrument != "Cooperative Agreement" {
		t.Errorf("code mapping wrong: category=%s instrument=%s", g.Category, g.FundingInstrument)
	}
	if g.AwardCeiling == nil || *g.AwardCeiling != 750_000 {
		t.Errorf("award ceiling wrong: %v", g.AwardCeiling)
	}
	if g.TotalFunding == nil || *g.TotalFunding != 5_000_000 {
		t.Errorf("total funding wrong: %v", g.TotalFunding)
	}
	if g.ExpectedAwards == nil || *g.ExpectedAwards != 8 {
		t.Errorf("expected awards wrong: %v", g.ExpectedAwards)
	}
	if !g.CostSharing {
		t.Error("cost sharing Yes should be true")
	}
	if g.PostedDate == nil || g.PostedDate.String() != "2026-01-10" {
		t.Errorf("posted date wrong: %v", g.PostedDate)
	}
	if g.CloseDate == nil || g.CloseDate.String() != "2026-09-30" {
		t.Errorf("close date wrong: %v", g.CloseDate)
	}
	if g.Metadata["archive_date"] != "2026-10-30" {
		t.Errorf("archive date should land in metadata: %v", g.Metadata["archive_date"])
	}
	if g.Status != "Open" {
		t.Errorf("no status tag should default to Open, got %s", g.Status)
	}

	if grants[1].ID != "360001" {
		t.Errorf("sibling after skipped element should parse: %+v", grants[1])
	}
}

const legacyExtract = `<?xml version="1.0"?>
<Opportunities>
  <OpportunityDetail>
    <ID>OPP-77</ID>
    <Title>STEM Teacher Fellowships</Title>
    <Agency>Department of Education</Agency>
    <Synopsis>Fellowships for STEM educators</Synopsis>
    <MinAward>10000</MinAward>
    <MaxAward>40000</MaxAward>
    <PostedDate>2026-02-01</PostedDate>
    <ApplicationDueDate>2026-11-15</ApplicationDueDate>
  </OpportunityDetail>
</Opportunities>
`

func TestXMLSourceLegacyTagVariants(t *testing.T) {
	src := NewGrantsGovXMLSource(map[string]any{"file_path": writeXML(t, legacyExtract)})

	grants, errs := collect(t, src, FetchOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}

	g := grants[0]
	if g.ID != "OPP-77" || g.Title != "STEM Teacher Fellowships" {
		t.Errorf("variant id/title tags should map: %+v", g)
	}
	if g.Agency != "Department of Education" {
		t.Errorf("Agency variant should map: %s", g.Agency)
	}
	if g.Description != "Fellowships for STEM educators" {
		t.Errorf("Synopsis variant should map: %q", g.Description)
	}
	if g.AwardFloor == nil || *g.AwardFloor != 10_000 {
		t.Errorf("MinAward variant should map: %v", g.AwardFloor)
	}
	if g.AwardCeiling == nil || *g.AwardCeiling != 40_000 {
		t.Errorf("MaxAward variant should map: %v", g.AwardCeiling)
	}
	if g.PostedDate == nil || g.PostedDate.String() != "2026-02-01" {
		t.Errorf("textual posted date should parse: %v", g.PostedDate)
	}
	if g.CloseDate == nil || g.CloseDate.String() != "2026-11-15" {
		t.Errorf("ApplicationDueDate variant should map: %v", g.CloseDate)
	}
}

func TestXMLSourceMaxRecords(t *testing.T) {
	src := NewGrantsGovXMLSource(map[string]any{"file_path": writeXML(t, namespacedExtract)})
	grants, _ := collect(t, src, FetchOptions{MaxRecords: 1})
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
}

func TestXMLSourceValidateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.csv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewGrantsGovXMLSource(map[string]any{"file_path": path})
	defects := src.ValidateConfig()
	if len(defects) != 1 || defects[0] != "grants.gov XML source requires an XML file" {
		t.Fatalf("expected extension defect, got %v", defects)
	}
}

func TestParseXMLDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09302026", "2026-09-30"},
		{"2026-09-30", "2026-09-30"},
		{"13302026", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := parseXMLDate(tt.in)
		switch {
		case tt.want == "" && got != nil:
			t.Errorf("parseXMLDate(%q) = %s, expected absent", tt.in, got)
		case tt.want != "" && (got == nil || got.String() != tt.want):
			t.Errorf("parseXMLDate(%q) = %v, expected %s", tt.in, got, tt.want)
		}
	}
}
