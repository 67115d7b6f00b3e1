package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// Pipeline orchestrates a single batch run over the configured sources.
// Processing is single-threaded and synchronous by design.
type Pipeline struct {
	Registry *Registry
	Sources  []models.SourceConfig
	Options  FetchOptions
}

func NewPipeline(registry *Registry, sources []models.SourceConfig, opts FetchOptions) *Pipeline {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Pipeline{Registry: registry, Sources: sources, Options: opts}
}

func (p *Pipeline) enabledSources() []models.SourceConfig {
	var enabled []models.SourceConfig
	for _, sc := range p.Sources {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}
	return enabled
}

// ProcessAllSources runs ProcessGrants for every enabled source and collects
// the per-source reports. Errors stay isolated per source: an unresolvable
// name yields a synthetic all-failed result, and the remaining sources run.
func (p *Pipeline) ProcessAllSources(ctx context.Context) []models.ProcessingResult {
	enabled := p.enabledSources()
	log.Printf("[pipeline] processing %d enabled sources", len(enabled))

	results := make([]models.ProcessingResult, 0, len(enabled))
	for _, sc := range enabled {
		src, ok := p.Registry.Create(sc.Name, sc.Config)
		if !ok {
			log.Printf("[pipeline] unknown source: %s", sc.Name)
			results = append(results, models.ProcessingResult{
				Source: sc.Name,
				Errors: []string{fmt.Sprintf("pipeline error: unknown source: %s", sc.Name)},
			})
			continue
		}
		results = append(results, ProcessGrants(ctx, src, p.Options))
	}

	logSummary(results)
	return results
}

// CollectAllGrants flattens every enabled source's raw fetch sequence into
// one collection for cleaning and export. This path deliberately bypasses
// the soft/hard failure bookkeeping of ProcessAllSources: source-level
// errors are logged and that source contributes nothing, per-item errors
// are logged and skipped.
func (p *Pipeline) CollectAllGrants(ctx context.Context) []models.Grant {
	var grants []models.Grant

	for _, sc := range p.enabledSources() {
		src, ok := p.Registry.Create(sc.Name, sc.Config)
		if !ok {
			log.Printf("[pipeline] unknown source: %s", sc.Name)
			continue
		}
		log.Printf("[pipeline] fetching grants from %s", sc.Name)

		for grant, err := range src.Fetch(ctx, p.Options) {
			if err != nil {
				var fatal *FatalError
				if errors.As(err, &fatal) {
					log.Printf("[pipeline] error fetching from %s: %v", sc.Name, fatal.Err)
					break
				}
				log.Printf("[pipeline] skipping record from %s: %v", sc.Name, err)
				continue
			}
			grants = append(grants, grant)
		}
	}

	log.Printf("[pipeline] collected %d grants from all sources", len(grants))
	return grants
}

// ValidateSources returns configuration defects per enabled source without
// fetching anything.
func (p *Pipeline) ValidateSources() map[string][]string {
	out := make(map[string][]string)
	for _, sc := range p.enabledSources() {
		src, ok := p.Registry.Create(sc.Name, sc.Config)
		if !ok {
			out[sc.Name] = []string{fmt.Sprintf("unknown source type: %s", sc.Name)}
			continue
		}
		out[sc.Name] = src.ValidateConfig()
	}
	return out
}

// Statistics aggregates a finished run's results for logging and the CLI.
func Statistics(results []models.ProcessingResult) map[string]any {
	totalProcessed, totalSuccessful, totalFailed := 0, 0, 0
	totalTime := 0.0
	bySource := make(map[string]any, len(results))

	for _, r := range results {
		totalProcessed += r.TotalProcessed
		totalSuccessful += r.Successful
		totalFailed += r.Failed
		totalTime += r.ProcessingTime
		bySource[r.Source] = map[string]any{
			"processed":       r.TotalProcessed,
			"successful":      r.Successful,
			"failed":          r.Failed,
			"success_rate":    r.SuccessRate(),
			"processing_time": r.ProcessingTime,
			"errors":          len(r.Errors),
			"warnings":        len(r.Warnings),
		}
	}

	successRate := 0.0
	if totalProcessed > 0 {
		successRate = float64(totalSuccessful) / float64(totalProcessed) * 100
	}

	return map[string]any{
		"sources_processed":     len(results),
		"total_records":         totalProcessed,
		"successful_records":    totalSuccessful,
		"failed_records":        totalFailed,
		"success_rate":          successRate,
		"total_processing_time": totalTime,
		"by_source":             bySource,
	}
}

func logSummary(results []models.ProcessingResult) {
	stats := Statistics(results)
	log.Printf("[pipeline] summary: %d sources, %d records, %d successful, %d failed, %.1f%% success, %.2fs",
		stats["sources_processed"], stats["total_records"], stats["successful_records"],
		stats["failed_records"], stats["success_rate"], stats["total_processing_time"])
}
