// Package main is the adt1-extractor CLI. With no arguments it reads ADT1.pdf
// from the working directory and writes output.json, summary.txt and insights.txt
// next to it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/adt1extractor/internal/config"
	"github.com/Lllllllleong/adt1extractor/internal/services"
)

// version is set at build time via ldflags.
var version = "dev"

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "adt1-extractor",
	Short: "Extract fields, a summary and insights from a Form ADT-1 PDF",
	Long: `adt1-extractor reads the text of a Form ADT-1 (auditor appointment) PDF and
asks a language model three questions about it: the structured fields, a short
plain-language summary, and notable details the fields miss. The answers are
written to output.json, summary.txt and insights.txt.

The API key is read from GOOGLE_API_KEY, either in the environment or in a .env
file in the working directory.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
		return initConfig(cmd)
	},
	RunE: runExtract,
}

func init() {
	config.SetDefaults(v)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./adt1-extractor.yaml or ~/.config/adt1-extractor/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")

	f := rootCmd.Flags()
	f.StringP("input", "i", "ADT1.pdf", "PDF to read; gs://bucket/object is also accepted")
	f.StringP("output-dir", "o", ".", "directory for output.json, summary.txt and insights.txt")
	f.String("output-bucket", "", "write outputs to this Cloud Storage bucket instead of output-dir")
	f.String("output-prefix", "", "object prefix inside output-bucket")
	f.String("provider", config.ProviderGemini, "model backend: gemini, openai or vertex")
	f.String("model", "", "model name (default depends on provider)")
	f.String("base-url", "", "OpenAI-compatible endpoint override")
	f.String("prompts", "", "YAML file overriding the built-in prompts")
	f.Bool("strict", false, "require the fields response to be valid ADT-1 JSON")
	f.Bool("parallel", false, "send the three prompts concurrently")
	f.String("firestore-collection", "", "record each run in this Firestore collection")

	bindings := map[string]string{
		"log_level":            "log-level",
		"log_format":           "log-format",
		"input":                "input",
		"output_dir":           "output-dir",
		"output_bucket":        "output-bucket",
		"output_prefix":        "output-prefix",
		"provider":             "provider",
		"model":                "model",
		"base_url":             "base-url",
		"prompts_file":         "prompts",
		"strict":               "strict",
		"parallel":             "parallel",
		"firestore_collection": "firestore-collection",
	}
	for key, name := range bindings {
		flag := f.Lookup(name)
		if flag == nil {
			flag = pf.Lookup(name)
		}
		_ = v.BindPFlag(key, flag)
	}

	rootCmd.AddCommand(versionCmd)
}

func initConfig(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("adt1-extractor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "adt1-extractor"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := config.FromViper(v)
	slog.SetDefault(cfg.Logger(os.Stderr))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, closeFn, err := services.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			slog.Warn("Failed to close clients", "error", err)
		}
	}()

	res, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	for _, dest := range res.Destinations {
		fmt.Fprintln(cmd.OutOrStdout(), "Saved", dest)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of adt1-extractor",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "adt1-extractor %s\n", version)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("adt1-extractor failed", "error", err)
		os.Exit(1)
	}
}
