package ingest

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// fakeSource scripts a Fetch sequence for pipeline tests.
type fakeSource struct {
	name    string
	grants  []models.Grant
	errs    []error // interleaved after the grants
	defects []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) ValidateConfig() []string { return f.defects }

func (f *fakeSource) Fetch(ctx context.Context, opts FetchOptions) iter.Seq2[models.Grant, error] {
	return func(yield func(models.Grant, error) bool) {
		for _, g := range f.grants {
			if !yield(g, nil) {
				return
			}
		}
		for _, err := range f.errs {
			if !yield(models.Grant{}, err) {
				return
			}
		}
	}
}

func registryWith(t *testing.T, sources ...*fakeSource) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, src := range sources {
		src := src
		if err := r.Register(func(map[string]any) DataSource { return src }); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func TestProcessGrantsCountsOutcomes(t *testing.T) {
	src := &fakeSource{
		name:   "fake",
		grants: []models.Grant{grant("G-1", "A"), grant("G-2", "B")},
		errs:   []error{errors.New("bad row")},
	}

	result := ProcessGrants(context.Background(), src, FetchOptions{})
	if result.TotalProcessed != 3 {
		t.Errorf("expected 3 processed, got %d", result.TotalProcessed)
	}
	if result.Successful != 2 || result.Failed != 1 {
		t.Errorf("expected 2 successful / 1 failed, got %d / %d", result.Successful, result.Failed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "bad row") {
		t.Errorf("per-item error should be recorded: %v", result.Errors)
	}
	if rate := result.SuccessRate(); rate < 66 || rate > 67 {
		t.Errorf("expected ~66.7%% success rate, got %.1f", rate)
	}
}

func TestProcessGrantsFatalStopsSource(t *testing.T) {
	src := &fakeSource{
		name:   "fake",
		grants: []models.Grant{grant("G-1", "A")},
		errs:   []error{fatalf("connection lost"), errors.New("never seen")},
	}

	result := ProcessGrants(context.Background(), src, FetchOptions{})
	if result.Successful != 1 {
		t.Errorf("items before the fatal error should count: %d", result.Successful)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "fatal error processing fake") {
		t.Errorf("expected single fatal error, got %v", result.Errors)
	}
}

func TestProcessGrantsConfigDefectsShortCircuit(t *testing.T) {
	src := &fakeSource{
		name:    "fake",
		grants:  []models.Grant{grant("G-1", "A")},
		defects: []string{"file_path is required for file-based sources"},
	}

	result := ProcessGrants(context.Background(), src, FetchOptions{})
	if result.TotalProcessed != 0 {
		t.Errorf("invalid config should fetch nothing, processed %d", result.TotalProcessed)
	}
	if len(result.Errors) != 1 || result.Errors[0] != src.defects[0] {
		t.Errorf("config defects should surface as errors: %v", result.Errors)
	}
}

func TestProcessGrantsValidationWarnings(t *testing.T) {
	g := grant("G-1", "A")
	g.AwardFloor = fptr(10)
	g.AwardCeiling = fptr(5)
	src := &fakeSource{name: "fake", grants: []models.Grant{g}}

	result := ProcessGrants(context.Background(), src, FetchOptions{})
	if result.Successful != 1 {
		t.Errorf("defective but parseable grants still count: %d", result.Successful)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "award floor") {
		t.Errorf("expected validation warning, got %v", result.Warnings)
	}
}

func TestPipelineUnknownSourceIsIsolated(t *testing.T) {
	good := &fakeSource{name: "fake", grants: []models.Grant{grant("G-1", "A")}}
	p := NewPipeline(registryWith(t, good), []models.SourceConfig{
		{Name: "nonexistent", Enabled: true},
		{Name: "fake", Enabled: true},
	}, FetchOptions{})

	results := p.ProcessAllSources(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(results[0].Errors) != 1 || !strings.Contains(results[0].Errors[0], "unknown source: nonexistent") {
		t.Errorf("expected synthetic failure for unknown source: %v", results[0].Errors)
	}
	if results[1].Successful != 1 {
		t.Errorf("healthy source should still run: %+v", results[1])
	}
}

func TestPipelineSkipsDisabledSources(t *testing.T) {
	src := &fakeSource{name: "fake", grants: []models.Grant{grant("G-1", "A")}}
	p := NewPipeline(registryWith(t, src), []models.SourceConfig{
		{Name: "fake", Enabled: false},
	}, FetchOptions{})

	if results := p.ProcessAllSources(context.Background()); len(results) != 0 {
		t.Fatalf("disabled sources must not run, got %d results", len(results))
	}
	if grants := p.CollectAllGrants(context.Background()); len(grants) != 0 {
		t.Fatalf("disabled sources must not contribute grants, got %d", len(grants))
	}
}

func TestCollectAllGrantsSkipsFailures(t *testing.T) {
	flaky := &fakeSource{
		name:   "flaky",
		grants: []models.Grant{grant("G-1", "A")},
		errs:   []error{errors.New("bad row")},
	}
	p := NewPipeline(registryWith(t, flaky), []models.SourceConfig{
		{Name: "flaky", Enabled: true},
	}, FetchOptions{})

	grants := p.CollectAllGrants(context.Background())
	if len(grants) != 1 || grants[0].ID != "G-1" {
		t.Fatalf("expected the healthy grant only, got %v", grants)
	}
}

func TestValidateSources(t *testing.T) {
	broken := &fakeSource{name: "broken", defects: []string{"base_url is required for web scraping sources"}}
	p := NewPipeline(registryWith(t, broken), []models.SourceConfig{
		{Name: "broken", Enabled: true},
		{Name: "missing", Enabled: true},
	}, FetchOptions{})

	report := p.ValidateSources()
	if len(report["broken"]) != 1 {
		t.Errorf("expected config defect for broken: %v", report["broken"])
	}
	if len(report["missing"]) != 1 || !strings.Contains(report["missing"][0], "unknown source type") {
		t.Errorf("expected unknown-source defect: %v", report["missing"])
	}
}

func TestStatisticsAggregation(t *testing.T) {
	results := []models.ProcessingResult{
		{Source: "a", TotalProcessed: 10, Successful: 8, Failed: 2, ProcessingTime: 1.5},
		{Source: "b", TotalProcessed: 5, Successful: 5, ProcessingTime: 0.5},
	}
	stats := Statistics(results)
	if stats["total_records"] != 15 {
		t.Errorf("total_records: %v", stats["total_records"])
	}
	if stats["successful_records"] != 13 || stats["failed_records"] != 2 {
		t.Errorf("success/failure totals wrong: %v", stats)
	}
	rate, ok := stats["success_rate"].(float64)
	if !ok || rate < 86 || rate > 87 {
		t.Errorf("expected ~86.7%% success rate, got %v", stats["success_rate"])
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := DefaultRegistry()
	names := r.List()
	want := []string{"grants.gov", "grants.gov.extract", "grants.gov.xml"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	if _, ok := r.Create("GRANTS.GOV", map[string]any{}); !ok {
		t.Error("lookup should be case-insensitive")
	}
	if _, ok := r.Create("unknown", nil); ok {
		t.Error("unknown names should not resolve")
	}
}
