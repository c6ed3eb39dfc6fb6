package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/adt1extractor/internal/config"
	"github.com/Lllllllleong/adt1extractor/internal/extract"
	"github.com/Lllllllleong/adt1extractor/internal/gcp"
	"github.com/Lllllllleong/adt1extractor/internal/llm"
	"github.com/Lllllllleong/adt1extractor/internal/output"
)

// Build validates cfg and constructs a Pipeline with real clients. Validation
// runs first, so a missing credential fails here without any network traffic.
// The returned close function releases every client that was created.
// opts are applied after the built-in ones.
func Build(ctx context.Context, cfg config.Config, extra ...Option) (*Pipeline, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	templates, err := llm.LoadTemplates(cfg.PromptsFile)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Pipeline, func() error, error) {
		_ = closeAll()
		return nil, nil, err
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if c, ok := completer.(interface{ Close() error }); ok {
		closers = append(closers, c.Close)
	}

	var opts []Option
	var writer output.Writer = output.FileWriter{Dir: cfg.OutputDir}

	if cfg.UseStorage || gcp.IsGCSURI(cfg.Input) || cfg.OutputBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return fail(fmt.Errorf("failed to create storage client: %w", err))
		}
		closers = append(closers, storageClient.Close)

		opts = append(opts, WithFetcher(func(ctx context.Context, bucket, object, destPath string) error {
			return gcp.DownloadObject(ctx, storageClient, bucket, object, destPath)
		}))
		opts = append(opts, WithBucketWriter(func(bucket, prefix string) output.Writer {
			return output.NewGCSWriter(storageClient, bucket, prefix)
		}))
		if cfg.OutputBucket != "" {
			writer = output.NewGCSWriter(storageClient, cfg.OutputBucket, cfg.OutputPrefix)
		}
	}

	if cfg.FirestoreCollection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return fail(err)
		}
		ledger := gcp.NewRunLedger(firestoreClient, cfg.FirestoreCollection)
		closers = append(closers, ledger.Close)
		opts = append(opts, WithLedger(ledger))
	}

	opts = append(opts, extra...)
	slog.Debug("Pipeline initialized.", "provider", cfg.Provider, "model", cfg.Model, "strict", cfg.Strict, "parallel", cfg.Parallel)
	return NewPipeline(cfg, templates, extract.New(), completer, writer, opts...), closeAll, nil
}

func newCompleter(ctx context.Context, cfg config.Config) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		return gcp.NewVertexCompleter(ctx, gcp.VertexConfig{
			ProjectID:       cfg.ProjectID,
			Region:          cfg.Region,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			CredentialsFile: cfg.CredentialsFile,
		})
	default:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	}
}
