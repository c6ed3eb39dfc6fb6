// Package config resolves run settings from defaults, an optional YAML file,
// a .env file and environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"
	geminiModel   = "gemini-2.0-flash"
)

// Config holds everything one run needs. It is built once in main and passed down.
type Config struct {
	Input        string
	OutputDir    string
	FieldsFile   string
	SummaryFile  string
	InsightsFile string

	// OutputBucket, when set, sends outputs to gs://OutputBucket/OutputPrefix/ instead of OutputDir.
	OutputBucket string
	OutputPrefix string
	// UseStorage creates a Cloud Storage client even when Input and
	// OutputBucket are local, for pipelines that are handed gs:// jobs later.
	UseStorage bool

	Provider        string
	Model           string
	BaseURL         string
	APIKey          string
	Temperature     float32
	ProjectID       string
	Region          string
	CredentialsFile string

	PromptsFile     string
	Strict          bool
	Parallel        bool
	MaxInsightChars int

	FirestoreCollection string

	LogLevel  string
	LogFormat string
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input", "ADT1.pdf")
	v.SetDefault("output_dir", ".")
	v.SetDefault("fields_file", "output.json")
	v.SetDefault("summary_file", "summary.txt")
	v.SetDefault("insights_file", "insights.txt")
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("region", "us-central1")
	v.SetDefault("max_insight_chars", 30000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("ADT1")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Names shared with the rest of the Google tooling.
	_ = v.BindEnv("api_key", "ADT1_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("project_id", "ADT1_PROJECT_ID", "PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("region", "ADT1_REGION", "VERTEX_AI_REGION")
	_ = v.BindEnv("output_bucket", "ADT1_OUTPUT_BUCKET", "OUTPUT_BUCKET")
	_ = v.BindEnv("firestore_collection", "ADT1_FIRESTORE_COLLECTION", "FIRESTORE_COLLECTION")
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w: %v", path, failure.ErrConfiguration, err)
	}
	return nil
}

// FromViper reads a Config out of v and fills provider-dependent defaults.
func FromViper(v *viper.Viper) Config {
	cfg := Config{
		Input:               v.GetString("input"),
		OutputDir:           v.GetString("output_dir"),
		FieldsFile:          v.GetString("fields_file"),
		SummaryFile:         v.GetString("summary_file"),
		InsightsFile:        v.GetString("insights_file"),
		OutputBucket:        v.GetString("output_bucket"),
		OutputPrefix:        strings.Trim(v.GetString("output_prefix"), "/"),
		Provider:            strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Model:               v.GetString("model"),
		BaseURL:             v.GetString("base_url"),
		APIKey:              strings.TrimSpace(v.GetString("api_key")),
		Temperature:         float32(v.GetFloat64("temperature")),
		ProjectID:           v.GetString("project_id"),
		Region:              v.GetString("region"),
		CredentialsFile:     v.GetString("credentials_file"),
		PromptsFile:         v.GetString("prompts_file"),
		Strict:              v.GetBool("strict"),
		Parallel:            v.GetBool("parallel"),
		MaxInsightChars:     v.GetInt("max_insight_chars"),
		FirestoreCollection: v.GetString("firestore_collection"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = openAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = openAIModel
		}
	default:
		if cfg.Model == "" {
			cfg.Model = geminiModel
		}
	}
	return cfg
}

// Validate checks the settings that would otherwise fail only once a remote
// call is attempted. Every error wraps failure.ErrConfiguration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("%w: input path is empty", failure.ErrConfiguration)
	}
	for key, name := range map[string]string{"fields_file": c.FieldsFile, "summary_file": c.SummaryFile, "insights_file": c.InsightsFile} {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: %s is empty", failure.ErrConfiguration, key)
		}
	}
	if c.FieldsFile == c.SummaryFile || c.FieldsFile == c.InsightsFile || c.SummaryFile == c.InsightsFile {
		return fmt.Errorf("%w: output file names must be distinct", failure.ErrConfiguration)
	}
	if c.MaxInsightChars < 0 {
		return fmt.Errorf("%w: max_insight_chars must not be negative", failure.ErrConfiguration)
	}

	switch c.Provider {
	case ProviderGemini, ProviderOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("%w: API key missing; set GOOGLE_API_KEY (or ADT1_API_KEY)", failure.ErrConfiguration)
		}
	case ProviderVertex:
		if c.ProjectID == "" || c.Region == "" {
			return fmt.Errorf("%w: vertex provider needs PROJECT_ID and VERTEX_AI_REGION", failure.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q (want %s, %s or %s)", failure.ErrConfiguration, c.Provider, ProviderGemini, ProviderOpenAI, ProviderVertex)
	}

	if c.FirestoreCollection != "" && c.ProjectID == "" {
		return fmt.Errorf("%w: firestore_collection needs PROJECT_ID", failure.ErrConfiguration)
	}
	return nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
