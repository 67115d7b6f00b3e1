package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// ProcessGrants runs one source end to end and reports on it. The failure
// model is two-tier: a per-item error counts against that item and the
// source keeps going; a *FatalError aborts the source with a single
// top-level error. One malformed record never takes down a healthy source.
func ProcessGrants(ctx context.Context, src DataSource, opts FetchOptions) models.ProcessingResult {
	start := time.Now()
	result := models.ProcessingResult{Source: src.Name()}

	if defects := src.ValidateConfig(); len(defects) > 0 {
		result.Errors = append(result.Errors, defects...)
		result.ProcessingTime = time.Since(start).Seconds()
		return result
	}

	log.Printf("[%s] starting to process grants", src.Name())

	for grant, err := range src.Fetch(ctx, opts) {
		if err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				msg := fmt.Sprintf("fatal error processing %s: %v", src.Name(), fatal.Err)
				result.Errors = append(result.Errors, msg)
				log.Printf("[%s] %v", src.Name(), fatal.Err)
				break
			}
			result.TotalProcessed++
			result.Failed++
			id := grant.ID
			if id == "" {
				id = "unknown"
			}
			msg := fmt.Sprintf("failed to process grant %s: %v", id, err)
			result.Errors = append(result.Errors, msg)
			log.Printf("[%s] %s", src.Name(), msg)
			continue
		}

		result.TotalProcessed++
		for _, defect := range grant.Validate() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("grant %s: %s", grant.ID, defect))
		}
		result.Successful++

		if result.TotalProcessed%1000 == 0 {
			log.Printf("[%s] processed %d grants...", src.Name(), result.TotalProcessed)
		}
	}

	result.ProcessingTime = time.Since(start).Seconds()
	log.Printf("[%s] completed: %d processed, %d successful, %d failed in %.2fs",
		src.Name(), result.TotalProcessed, result.Successful, result.Failed, result.ProcessingTime)

	return result
}
