package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/adt1extractor/internal/config"
	"github.com/Lllllllleong/adt1extractor/internal/models"
	"github.com/Lllllllleong/adt1extractor/internal/services"
)

var (
	baseConfig config.Config
	pipeline   *services.Pipeline
	initErr    error
	once       sync.Once
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ExtractADT1", extractADT1)
}

// main is required by the Go Functions Framework.
func main() {}

// extractADT1 runs the pipeline for every PDF uploaded to the watched bucket.
// Clients are created on the first event and reused for the instance's lifetime.
func extractADT1(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		v := viper.New()
		config.SetDefaults(v)
		v.SetDefault("log_format", "json")
		baseConfig = config.FromViper(v)
		baseConfig.UseStorage = true
		slog.SetDefault(baseConfig.Logger(os.Stdout))

		pipeline, _, initErr = services.Build(context.Background(), baseConfig)
	})
	if initErr != nil {
		slog.Error("Critical error during pipeline initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	job, ok := eventJob(baseConfig, gcsEvent)
	if !ok {
		slog.Info("Skipping non-PDF object.", "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)
		return nil
	}
	job.ExecutionID = e.ID()

	// The error is already logged with context inside Run.
	_, err := pipeline.RunJob(ctx, job)
	return err
}

// eventJob points a job at the uploaded object. Outputs go to OutputBucket (or
// the upload bucket) under the object's name without extension.
func eventJob(base config.Config, event models.GCSEvent) (services.Job, bool) {
	if !strings.EqualFold(path.Ext(event.Name), ".pdf") {
		return services.Job{}, false
	}
	job := services.Job{
		Input:        fmt.Sprintf("gs://%s/%s", event.Bucket, event.Name),
		OutputBucket: base.OutputBucket,
		OutputPrefix: strings.TrimSuffix(event.Name, path.Ext(event.Name)),
	}
	if job.OutputBucket == "" {
		job.OutputBucket = event.Bucket
	}
	if base.OutputPrefix != "" {
		job.OutputPrefix = base.OutputPrefix + "/" + job.OutputPrefix
	}
	return job, true
}
