package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indexer.TextField != DefaultTextField || cfg.Indexer.LengthField != DefaultLengthField {
		t.Errorf("fields = %q/%q, want defaults", cfg.Indexer.TextField, cfg.Indexer.LengthField)
	}
	if diff := cmp.Diff([]string{"stem"}, cfg.Indexer.Normalizers); diff != "" {
		t.Errorf("normalizers (-want +got):\n%s", diff)
	}
	if cfg.Indexer.EmptyDocuments != "record" {
		t.Errorf("emptyDocuments = %q, want record", cfg.Indexer.EmptyDocuments)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
indexer:
  textField: body
  lengthField: tokens
  normalizers: [lowercase, stem]
  emptyDocuments: reject
  buildTimeout: 2m
segmentation:
  workers: 4
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SP_LOGGING_LEVEL", "debug")
	t.Setenv("SP_SEGMENTATION_MAX_PAIRS", "1000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := IndexerConfig{
		TextField:      "body",
		LengthField:    "tokens",
		Normalizers:    []string{"lowercase", "stem"},
		EmptyDocuments: "reject",
		BuildTimeout:   2 * time.Minute,
		ProgressDots:   true,
	}
	if diff := cmp.Diff(want, cfg.Indexer); diff != "" {
		t.Errorf("indexer config (-want +got):\n%s", diff)
	}
	if cfg.Segmentation.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Segmentation.Workers)
	}
	if cfg.Segmentation.MaxPairs != 1000 {
		t.Errorf("maxPairs = %d, want 1000", cfg.Segmentation.MaxPairs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty text field", func(c *Config) { c.Indexer.TextField = " " }},
		{"empty length field", func(c *Config) { c.Indexer.LengthField = "" }},
		{"same field names", func(c *Config) { c.Indexer.LengthField = c.Indexer.TextField }},
		{"bad empty policy", func(c *Config) { c.Indexer.EmptyDocuments = "skip" }},
		{"no workers", func(c *Config) { c.Segmentation.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
