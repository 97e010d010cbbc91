package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/enrich"
)

// Enricher produces suggestions for one metadata snapshot.
type Enricher interface {
	Suggest(ctx context.Context, snapshot map[string]string) []enrich.Suggestion
}

// EnrichJob enriches the snapshot stored in one JSON file.
type EnrichJob struct {
	Path     string
	Enricher Enricher
}

// Execute reads the snapshot and runs the advisor over it.
func (j *EnrichJob) Execute(ctx context.Context) Result {
	snapshot, err := ReadSnapshot(j.Path)
	if err != nil {
		return &EnrichResult{Path: j.Path, Error: err}
	}
	return &EnrichResult{
		Path:        j.Path,
		Snapshot:    snapshot,
		Suggestions: j.Enricher.Suggest(ctx, snapshot),
	}
}

// EnrichResult is the outcome of enriching one file.
type EnrichResult struct {
	Path        string
	Snapshot    map[string]string
	Suggestions []enrich.Suggestion
	Error       error
}

// GetError returns the job's error, if any.
func (r *EnrichResult) GetError() error {
	return r.Error
}

// BatchProcessor enriches many snapshot files concurrently.
type BatchProcessor struct {
	enricher    Enricher
	concurrency int
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(enricher Enricher, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		enricher:    enricher,
		concurrency: concurrency,
	}
}

// ProcessFiles enriches every file and returns one result per file, in
// completion order.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, paths []string) []*EnrichResult {
	if len(paths) == 0 {
		return []*EnrichResult{}
	}

	pool := NewPool(b.concurrency)
	pool.Start()

	for _, path := range paths {
		pool.Submit(&EnrichJob{Path: path, Enricher: b.enricher})
	}

	results := pool.Wait()

	enrichResults := make([]*EnrichResult, len(results))
	for i, result := range results {
		enrichResults[i] = result.(*EnrichResult)
	}
	return enrichResults
}

// ReadSnapshot parses a flat field->value JSON object from disk.
func ReadSnapshot(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot map[string]string
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snapshot, nil
}
