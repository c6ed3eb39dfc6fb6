// Package services runs the ADT-1 pipeline: extract, prompt three times, write three outputs.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/adt1extractor/internal/config"
	"github.com/Lllllllleong/adt1extractor/internal/extract"
	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/Lllllllleong/adt1extractor/internal/gcp"
	"github.com/Lllllllleong/adt1extractor/internal/llm"
	"github.com/Lllllllleong/adt1extractor/internal/models"
	"github.com/Lllllllleong/adt1extractor/internal/output"
	"golang.org/x/sync/errgroup"
)

// Extractor turns a local PDF into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Document, error)
}

// Ledger records the outcome of each run.
type Ledger interface {
	Start(ctx context.Context, rec models.RunRecord) (string, error)
	Finish(ctx context.Context, id, status string, pageCount int, errDetails string) error
}

// Fetcher copies a Cloud Storage object to a local path.
type Fetcher func(ctx context.Context, bucket, object, destPath string) error

// BucketWriter returns a writer for objects under prefix in bucket.
type BucketWriter func(bucket, prefix string) output.Writer

// Pipeline holds the dependencies of one run.
type Pipeline struct {
	config       config.Config
	templates    llm.Templates
	extractor    Extractor
	completer    llm.Completer
	writer       output.Writer
	bucketWriter BucketWriter
	ledger       Ledger
	fetch        Fetcher
	execID       string
}

// Job is one input handed to a long-lived Pipeline. Empty fields keep the
// Pipeline's own settings.
type Job struct {
	Input        string
	OutputBucket string
	OutputPrefix string
	ExecutionID  string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLedger records each run in l.
func WithLedger(l Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithFetcher enables gs:// inputs.
func WithFetcher(f Fetcher) Option {
	return func(p *Pipeline) { p.fetch = f }
}

// WithBucketWriter enables per-job output buckets.
func WithBucketWriter(w BucketWriter) Option {
	return func(p *Pipeline) { p.bucketWriter = w }
}

// WithExecutionID tags ledger records with the ID of the triggering event.
func WithExecutionID(id string) Option {
	return func(p *Pipeline) { p.execID = id }
}

// NewPipeline wires the given components. It does not validate cfg; Build does.
func NewPipeline(cfg config.Config, templates llm.Templates, ex Extractor, c llm.Completer, w output.Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:    cfg,
		templates: templates,
		extractor: ex,
		completer: c,
		writer:    w,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type task struct {
	template string
	file     string
	text     string
	finish   func(raw string) (string, error)
}

// Run extracts the input once and runs the fields, summary and insights
// prompts over the same text. Each output is written right after its call
// succeeds; on failure, outputs already written stay in place.
func (p *Pipeline) Run(ctx context.Context) (*models.RunOutputs, error) {
	logCtx := slog.With("input", p.config.Input, "provider", p.config.Provider, "model", p.config.Model)
	logCtx.Info("Starting ADT-1 extraction.")

	localPath, cleanup, err := p.resolveInput(ctx)
	if err != nil {
		logCtx.Error("Failed to resolve input", "error", err)
		return nil, err
	}
	defer cleanup()

	runID := p.startRun(ctx, logCtx, localPath)
	res, err := p.run(ctx, logCtx, localPath)
	p.finishRun(ctx, logCtx, runID, res, err)
	if err != nil {
		return nil, err
	}

	logCtx.Info("ADT-1 extraction complete.", "pageCount", res.PageCount, "destinations", res.Destinations)
	return res, nil
}

// RunJob runs job with p's clients and templates. p itself is not changed, so
// concurrent jobs may share it.
func (p *Pipeline) RunJob(ctx context.Context, job Job) (*models.RunOutputs, error) {
	run := *p
	if job.Input != "" {
		run.config.Input = job.Input
	}
	if job.ExecutionID != "" {
		run.execID = job.ExecutionID
	}
	if job.OutputBucket != "" {
		if p.bucketWriter == nil {
			return nil, fmt.Errorf("%w: bucket output needs a storage client", failure.ErrConfiguration)
		}
		run.config.OutputBucket = job.OutputBucket
		run.config.OutputPrefix = job.OutputPrefix
		run.writer = p.bucketWriter(job.OutputBucket, job.OutputPrefix)
	}
	return run.Run(ctx)
}

func (p *Pipeline) run(ctx context.Context, logCtx *slog.Logger, localPath string) (*models.RunOutputs, error) {
	doc, err := p.extractor.Extract(ctx, localPath)
	if err != nil {
		logCtx.Error("Text extraction failed", "error", err)
		return nil, err
	}
	if doc.Text == "" {
		logCtx.Warn("No text extracted from PDF. The document may be scanned images only.")
	}

	tasks, err := p.tasks(doc.Text)
	if err != nil {
		return nil, err
	}

	res := &models.RunOutputs{PageCount: doc.PageCount}
	dests := make([]string, len(tasks))
	if p.config.Parallel {
		err = p.runParallel(ctx, logCtx, tasks, dests)
	} else {
		err = p.runSequential(ctx, logCtx, tasks, dests)
	}
	for _, d := range dests {
		if d != "" {
			res.Destinations = append(res.Destinations, d)
		}
	}
	if err != nil {
		return res, err
	}
	res.Status = "success"
	return res, nil
}

func (p *Pipeline) tasks(text string) ([]task, error) {
	lookup := func(name string) (llm.Template, error) {
		t, ok := p.templates[name]
		if !ok {
			return llm.Template{}, fmt.Errorf("%w: no %q prompt template", failure.ErrConfiguration, name)
		}
		return t, nil
	}
	for _, name := range []string{llm.Fields, llm.Summary, llm.Insights} {
		if _, err := lookup(name); err != nil {
			return nil, err
		}
	}

	fieldsFinish := func(raw string) (string, error) { return raw, nil }
	if p.config.Strict {
		fieldsFinish = func(raw string) (string, error) {
			pretty, _, err := NormalizeFields(raw)
			return pretty, err
		}
	}
	trim := func(raw string) (string, error) { return strings.TrimSpace(raw), nil }

	return []task{
		{template: llm.Fields, file: p.config.FieldsFile, text: text, finish: fieldsFinish},
		{template: llm.Summary, file: p.config.SummaryFile, text: text, finish: trim},
		{template: llm.Insights, file: p.config.InsightsFile, text: truncateRunes(text, p.config.MaxInsightChars), finish: trim},
	}, nil
}

func (p *Pipeline) runSequential(ctx context.Context, logCtx *slog.Logger, tasks []task, dests []string) error {
	for i, t := range tasks {
		dest, err := p.runTask(ctx, logCtx, t)
		if err != nil {
			return err
		}
		dests[i] = dest
	}
	return nil
}

func (p *Pipeline) runParallel(ctx context.Context, logCtx *slog.Logger, tasks []task, dests []string) error {
	eg, gctx := errgroup.WithContext(ctx)
	for i, t := range tasks {
		eg.Go(func() error {
			dest, err := p.runTask(gctx, logCtx, t)
			if err != nil {
				return err
			}
			dests[i] = dest
			return nil
		})
	}
	return eg.Wait()
}

// runTask renders one prompt, calls the model and writes the finished response.
func (p *Pipeline) runTask(ctx context.Context, logCtx *slog.Logger, t task) (string, error) {
	taskLog := logCtx.With("prompt", t.template, "file", t.file)
	prompt := p.templates[t.template].Render(t.text)

	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		taskLog.Error("Model call failed", "error", err)
		return "", err
	}
	if llm.LooksLikeRefusal(raw) {
		taskLog.Warn("Model response looks like a refusal. Saving it as returned.")
	}

	payload, err := t.finish(raw)
	if err != nil {
		taskLog.Error("Model response rejected", "error", err, "response", raw)
		return "", err
	}

	dest, err := p.writer.Write(ctx, t.file, payload)
	if err != nil {
		taskLog.Error("Failed to write output", "error", err)
		return "", err
	}
	taskLog.Info("Output saved.", "destination", dest, "bytes", len(payload))
	return dest, nil
}

func (p *Pipeline) resolveInput(ctx context.Context) (string, func(), error) {
	noop := func() {}
	if !gcp.IsGCSURI(p.config.Input) {
		return p.config.Input, noop, nil
	}
	if p.fetch == nil {
		return "", noop, fmt.Errorf("%w: gs:// input needs a storage client", failure.ErrConfiguration)
	}
	bucket, object, err := gcp.ParseGCSURI(p.config.Input)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %v", failure.ErrFileAccess, err)
	}

	tempDir, err := os.MkdirTemp("", "adt1-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w: %v", failure.ErrFileAccess, err)
	}
	cleanup := func() { os.RemoveAll(tempDir) }

	dest := filepath.Join(tempDir, path.Base(object))
	if err := p.fetch(ctx, bucket, object, dest); err != nil {
		cleanup()
		return "", noop, err
	}
	return dest, cleanup, nil
}

func (p *Pipeline) startRun(ctx context.Context, logCtx *slog.Logger, localPath string) string {
	if p.ledger == nil {
		return ""
	}
	rec := models.RunRecord{
		OriginalFilename: p.config.Input,
		Provider:         p.config.Provider,
		Model:            p.config.Model,
		ExecutionID:      p.execID,
	}
	if hash, err := calculateFileHash(localPath); err == nil {
		rec.FileHash = hash
	}
	id, err := p.ledger.Start(ctx, rec)
	if err != nil {
		logCtx.Warn("Could not record run start", "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) finishRun(ctx context.Context, logCtx *slog.Logger, id string, res *models.RunOutputs, runErr error) {
	if p.ledger == nil || id == "" {
		return
	}
	status, details, pageCount := models.StatusSucceeded, "", 0
	if res != nil {
		pageCount = res.PageCount
	}
	if runErr != nil {
		status, details = models.StatusFailed, runErr.Error()
	}
	if err := p.ledger.Finish(ctx, id, status, pageCount, details); err != nil {
		logCtx.Error("CRITICAL: Failed to update run record", "runId", id, "updateError", err)
	}
}

// truncateRunes keeps the first max runes of s; max <= 0 keeps everything.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
