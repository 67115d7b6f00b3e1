// Command grants-pipeline runs the grant ingestion pipeline: fetch from the
// configured sources, clean and deduplicate, then export JSON artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/shilohtd/grants-pipeline/internal/config"
	"github.com/shilohtd/grants-pipeline/internal/export"
	"github.com/shilohtd/grants-pipeline/internal/ingest"
	"github.com/shilohtd/grants-pipeline/internal/models"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "configuration file (YAML or JSON)")
	initConfig := flag.String("init-config", "", "write an example configuration to the given path and exit")
	validate := flag.Bool("validate", false, "validate configuration and source settings, then exit")
	listSources := flag.Bool("list-sources", false, "list available and configured sources, then exit")
	sourceOnly := flag.String("source", "", "process only the named configured source")
	maxRecords := flag.Int("max-records", -1, "cap records per source (-1 uses the configured value)")
	futureOnly := flag.Bool("future-only", true, "skip grants whose close date has passed")
	sortKey := flag.String("sort", "", "sort key: close_date, posted_date, title, agency (default from config)")
	outputFile := flag.String("output", "", "write the full dump to this exact path instead of a timestamped file")
	webDir := flag.String("web", "", "web output directory (default from config)")
	stats := flag.Bool("stats", false, "also export aggregate statistics")
	keepFiles := flag.Bool("keep-files", false, "keep downloaded archives after processing")
	flag.Parse()

	if *initConfig != "" {
		if err := config.Save(config.Example(), *initConfig); err != nil {
			log.Printf("error creating example config: %v", err)
			return 1
		}
		fmt.Printf("Example configuration created at: %s\n", *initConfig)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("error loading config: %v", err)
		return 1
	}

	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("error opening log file: %v", err)
			return 1
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	registry := ingest.DefaultRegistry()

	if *listSources {
		fmt.Println("Available data sources:")
		for _, name := range registry.List() {
			fmt.Printf("  - %s\n", name)
		}
		if len(cfg.Sources) > 0 {
			fmt.Println("\nConfigured sources:")
			for _, src := range cfg.Sources {
				status := "disabled"
				if src.Enabled {
					status = "enabled"
				}
				fmt.Printf("  - %s (%s)\n", src.Name, status)
			}
		}
		return 0
	}

	if defects := cfg.Validate(); len(defects) > 0 {
		log.Println("configuration validation failed:")
		for _, d := range defects {
			log.Printf("  - %s", d)
		}
		return 1
	}

	sources := cfg.Sources
	if *sourceOnly != "" {
		src, ok := cfg.SourceConfig(*sourceOnly)
		if !ok {
			log.Printf("source not configured: %s", *sourceOnly)
			return 1
		}
		src.Enabled = true
		sources = []models.SourceConfig{src}
	}

	if *keepFiles {
		for i := range sources {
			if sources[i].Config == nil {
				sources[i].Config = make(map[string]any)
			}
			sources[i].Config["keep_downloaded_files"] = true
		}
	}

	opts := ingest.FetchOptions{
		MaxRecords: cfg.Pipeline.MaxRecordsPerSource,
		FutureOnly: cfg.Pipeline.FutureOnly,
	}
	if *maxRecords >= 0 {
		opts.MaxRecords = *maxRecords
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "future-only" {
			opts.FutureOnly = *futureOnly
		}
	})

	pipeline := ingest.NewPipeline(registry, sources, opts)

	if *validate {
		ok := true
		for name, defects := range pipeline.ValidateSources() {
			if len(defects) == 0 {
				fmt.Printf("%s: ok\n", name)
				continue
			}
			ok = false
			fmt.Printf("%s:\n", name)
			for _, d := range defects {
				fmt.Printf("  - %s\n", d)
			}
		}
		if !ok {
			return 1
		}
		fmt.Println("Configuration is valid")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := pipeline.ProcessAllSources(ctx)
	renderResults(results)

	grants := pipeline.CollectAllGrants(ctx)
	if len(grants) == 0 {
		log.Println("no grants collected from sources")
		return 0
	}

	processor := ingest.NewProcessor()
	if cfg.Pipeline.EnableDeduplication {
		grants = processor.Deduplicate(grants)
	}
	grants = processor.Clean(grants)

	key := cfg.Pipeline.DefaultSort
	if *sortKey != "" {
		key = *sortKey
	}
	grants = processor.Sort(grants, key)

	exporter := export.NewExporter(cfg.Output.OutputDir)

	if *outputFile != "" {
		if err := exporter.ExportFile(grants, *outputFile); err != nil {
			log.Printf("export failed: %v", err)
			return 1
		}
	} else {
		path, err := exporter.ExportGrants(grants, "")
		if err != nil {
			log.Printf("export failed: %v", err)
			return 1
		}
		log.Printf("grants exported to: %s", path)
	}

	if dir := firstNonEmpty(*webDir, cfg.Output.WebOutputDir); dir != "" {
		webFile := filepath.Join(dir, "grants_data.json")
		if err := exporter.ExportWebFormat(grants, webFile); err != nil {
			log.Printf("web export failed: %v", err)
			return 1
		}
		log.Printf("web format exported to: %s", webFile)
	}

	if *stats {
		path, err := exporter.ExportStatistics(grants, "")
		if err != nil {
			log.Printf("statistics export failed: %v", err)
			return 1
		}
		log.Printf("statistics exported to: %s", path)
	}

	log.Printf("pipeline completed: %d grants", len(grants))
	return 0
}

func renderResults(results []models.ProcessingResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Processed", "Successful", "Failed", "Success %", "Time", "Errors", "Warnings"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Source, r.TotalProcessed, r.Successful, r.Failed,
			fmt.Sprintf("%.1f", r.SuccessRate()),
			fmt.Sprintf("%.2fs", r.ProcessingTime),
			len(r.Errors), len(r.Warnings),
		})
	}
	t.Render()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
