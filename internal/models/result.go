package models

// ProcessingResult summarizes one source-processing run. It is created by
// the processing template, never mutated afterwards, and aggregated
// read-only by the statistics step.
type ProcessingResult struct {
	Source         string   `json:"source"`
	TotalProcessed int      `json:"total_processed"`
	Successful     int      `json:"successful"`
	Failed         int      `json:"failed"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	// ProcessingTime is elapsed wall time in seconds.
	ProcessingTime float64 `json:"processing_time"`
}

// SuccessRate returns the percentage of successfully processed records.
func (r ProcessingResult) SuccessRate() float64 {
	if r.TotalProcessed == 0 {
		return 0
	}
	return float64(r.Successful) / float64(r.TotalProcessed) * 100
}

// SourceConfig is the declarative descriptor a pipeline run is driven by.
// The Config mapping is passed verbatim to the source adapter.
type SourceConfig struct {
	Name            string         `json:"name" yaml:"name"`
	Enabled         bool           `json:"enabled" yaml:"enabled"`
	UpdateFrequency string         `json:"update_frequency" yaml:"update_frequency"` // informational only
	Config          map[string]any `json:"config" yaml:"config"`
}
