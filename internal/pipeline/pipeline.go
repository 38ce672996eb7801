// Package pipeline orchestrates one harvest run: search, per-notice document
// retrieval and extraction, and the final spreadsheet write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/ted"
)

// ErrNoResults signals that the query matched nothing. Callers present it to
// the user instead of writing an empty workbook.
var ErrNoResults = errors.New("no notices matched the query")

// Searcher finds raw notices for a query.
type Searcher interface {
	Search(ctx context.Context, query ted.SearchQuery) ([]ted.RawNotice, error)
}

// DocumentFetcher retrieves the XML document behind one notice.
type DocumentFetcher interface {
	Fetch(ctx context.Context, pubno string, notice ted.RawNotice) ([]byte, error)
}

// Extractor turns document bytes into an output row.
type Extractor interface {
	Extract(doc []byte) (ted.Row, error)
}

// TableWriter renders the final rows to a file.
type TableWriter interface {
	Write(path string, rows []ted.Row) error
}

// Snapshotter persists the raw search results for the duration of the run.
type Snapshotter interface {
	Save(runID string, notices []ted.RawNotice) (string, error)
	Remove(runID string) error
}

// RunRecorder stores the run summary after completion.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary ted.RunSummary) error
}

// Config holds runtime knobs for a runner.
type Config struct {
	// DetailHost is used to backfill notice links the document itself lacks.
	DetailHost string
	// NoticeDelay is the pause between document fetches.
	NoticeDelay time.Duration
	// Concurrency bounds how many notices are processed at once.
	Concurrency int
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Search    Searcher
	Fetch     DocumentFetcher
	Extract   Extractor
	Write     TableWriter
	Snapshots Snapshotter
	Runs      RunRecorder
}

// Runner executes harvest runs.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewRunner builds a runner. A Concurrency below one is treated as serial.
func NewRunner(cfg Config, deps Deps, logger *zap.Logger) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// Run performs one full harvest and writes the workbook to outPath. A notice
// that cannot be fetched or parsed is recorded as a skip and never fails the
// batch; only the search phase and the final write are fatal.
func (r *Runner) Run(ctx context.Context, query ted.SearchQuery, outPath string) (ted.RunSummary, error) {
	summary := ted.RunSummary{
		RunID:     uuid.NewString(),
		Query:     query.Expression(),
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With(zap.String("run_id", summary.RunID))

	notices, err := r.deps.Search.Search(ctx, query)
	if err != nil {
		metrics.ObserveRun("failed")
		return summary, fmt.Errorf("search notices: %w", err)
	}
	summary.Matched = len(notices)
	if len(notices) == 0 {
		metrics.ObserveRun("empty")
		summary.FinishedAt = time.Now().UTC()
		return summary, ErrNoResults
	}
	logger.Info("search complete", zap.Int("matched", len(notices)))

	if r.deps.Snapshots != nil {
		if path, err := r.deps.Snapshots.Save(summary.RunID, notices); err != nil {
			logger.Warn("snapshot save failed", zap.Error(err))
		} else {
			logger.Debug("snapshot saved", zap.String("path", path))
		}
	}

	results := r.processAll(ctx, notices)

	var rows []ted.Row
	for _, res := range results {
		if res.Skipped() {
			summary.Skips = append(summary.Skips, ted.Skip{
				PublicationNumber: res.PublicationNumber,
				Reason:            res.Err.Error(),
			})
			metrics.ObserveNotice("skipped")
			logger.Warn("notice skipped",
				zap.String("publication_number", res.PublicationNumber),
				zap.Error(res.Err))
			continue
		}
		metrics.ObserveNotice("ok")
		rows = append(rows, res.Row)
	}

	if err := r.deps.Write.Write(outPath, rows); err != nil {
		metrics.ObserveRun("failed")
		return summary, fmt.Errorf("write output table: %w", err)
	}
	summary.Rows = len(rows)
	summary.OutputPath = outPath
	summary.FinishedAt = time.Now().UTC()

	if r.deps.Snapshots != nil {
		if err := r.deps.Snapshots.Remove(summary.RunID); err != nil {
			logger.Warn("snapshot cleanup failed", zap.Error(err))
		}
	}
	if r.deps.Runs != nil {
		if err := r.deps.Runs.RecordRun(ctx, summary); err != nil {
			logger.Warn("run record not stored", zap.Error(err))
		}
	}

	metrics.ObserveRun("ok")
	logger.Info("run complete",
		zap.Int("rows", summary.Rows),
		zap.Int("skipped", len(summary.Skips)),
		zap.String("output", outPath))
	return summary, nil
}

// processAll works through the notices, preserving input order in the
// results regardless of concurrency.
func (r *Runner) processAll(ctx context.Context, notices []ted.RawNotice) []ted.NoticeResult {
	results := make([]ted.NoticeResult, len(notices))
	if r.cfg.Concurrency == 1 {
		for i, notice := range notices {
			results[i] = r.processOne(ctx, notice)
			if i < len(notices)-1 {
				r.pause(ctx)
			}
		}
		return results
	}

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, notice := range notices {
		wg.Add(1)
		go func(i int, notice ted.RawNotice) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = r.processOne(ctx, notice)
			r.pause(ctx)
		}(i, notice)
	}
	wg.Wait()
	return results
}

// processOne runs the fetch and extract phases for a single notice.
func (r *Runner) processOne(ctx context.Context, notice ted.RawNotice) ted.NoticeResult {
	pubno := notice.PublicationNumber()
	if pubno == "" {
		return ted.NoticeResult{Err: errors.New("notice has no publication number")}
	}
	res := ted.NoticeResult{PublicationNumber: pubno}

	doc, err := r.deps.Fetch.Fetch(ctx, pubno, notice)
	if err != nil {
		res.Err = fmt.Errorf("fetch document: %w", err)
		return res
	}
	row, err := r.deps.Extract.Extract(doc)
	if err != nil {
		res.Err = fmt.Errorf("extract fields: %w", err)
		return res
	}

	row[ted.FieldPublicationNumber] = pubno
	if row[ted.FieldTedLink] == "" {
		row[ted.FieldTedLink] = fmt.Sprintf("%s/en/notice/-/detail/%s", r.cfg.DetailHost, pubno)
	}
	res.Row = row
	return res
}

// pause sleeps the configured notice delay, returning early on cancellation.
func (r *Runner) pause(ctx context.Context) {
	if r.cfg.NoticeDelay <= 0 {
		return
	}
	metrics.ObserveRateLimitDelay(r.cfg.NoticeDelay)
	t := time.NewTimer(r.cfg.NoticeDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
