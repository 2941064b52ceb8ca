// Package config loads csvingest settings.
//
// Precedence, lowest to highest: Default(), the YAML file, variables from
// .env files, CSVINGEST_* environment variables, then command-line flags
// (applied by the cli package).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"csvingest/internal/datasource/charset"
	"csvingest/internal/ingest"
	"csvingest/internal/probe"
	"csvingest/internal/storage"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// FileName is the config file looked up when --config is not given.
const FileName = "csvingest.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CSVINGEST_"

type Config struct {
	InputDir string `yaml:"input_dir"`
	DBPath   string `yaml:"db_path"`
	Store    string `yaml:"store"`

	SampleSize        int      `yaml:"sample_size"`
	BatchSize         int      `yaml:"batch_size"`
	EncodingFallbacks []string `yaml:"encoding_fallbacks"`
	// Delimiter is "auto", ",", ";", "|" or "\t" (also spelled "tab").
	Delimiter     string `yaml:"delimiter"`
	TableConflict string `yaml:"table_conflict"`
	Workers       int    `yaml:"workers"`

	PreserveLeadingZeros bool `yaml:"preserve_leading_zeros"`
	StripHTML            bool `yaml:"strip_html"`
	MaxWarnings          int  `yaml:"max_warnings"`

	// IndexRules replaces the built-in rules when set.
	IndexRules []probe.IndexRule `yaml:"index_rules,omitempty"`

	Metrics MetricsConfig `yaml:"metrics"`
	S3      S3Config      `yaml:"s3"`
	Serve   ServeConfig   `yaml:"serve"`
}

type MetricsConfig struct {
	Backend    string   `yaml:"backend"` // none | datadog
	Job        string   `yaml:"job"`
	Tags       []string `yaml:"tags,omitempty"`
	FlushEvery string   `yaml:"flush_every"`
}

type S3Config struct {
	Region       string `yaml:"region,omitempty"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty"`
}

type ServeConfig struct {
	Addr     string `yaml:"addr"`
	PageSize int    `yaml:"page_size"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		InputDir:             "data",
		DBPath:               "csvingest.db",
		Store:                "sqlite",
		SampleSize:           probe.DefaultSampleSize,
		BatchSize:            500,
		EncodingFallbacks:    append([]string(nil), charset.DefaultFallbacks...),
		Delimiter:            "auto",
		TableConflict:        string(ingest.PolicyRename),
		Workers:              1,
		PreserveLeadingZeros: true,
		MaxWarnings:          100,
		Metrics: MetricsConfig{
			Backend:    "none",
			Job:        "csvingest",
			FlushEvery: "60s",
		},
		Serve: ServeConfig{
			Addr:     ":8080",
			PageSize: 50,
		},
	}
}

// Load reads the YAML file at path on top of Default(). Unknown keys are
// rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve builds the effective configuration from defaults, the file at path,
// envFiles and the environment. A missing config file is an error only when
// required is set. Missing env files are skipped; with no envFiles, ".env"
// is tried.
func Resolve(path string, required bool, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := Load(path)
	switch {
	case errors.Is(err, ErrConfigNotFound) && !required:
		cfg = Default()
	case err != nil:
		return nil, err
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from CSVINGEST_* variables found through lookup
// (usually os.LookupEnv). List values are comma-separated.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	str("INPUT_DIR", &cfg.InputDir)
	str("DB_PATH", &cfg.DBPath)
	str("STORE", &cfg.Store)
	num("SAMPLE_SIZE", &cfg.SampleSize)
	num("BATCH_SIZE", &cfg.BatchSize)
	list("ENCODING_FALLBACKS", &cfg.EncodingFallbacks)
	str("DELIMITER", &cfg.Delimiter)
	str("TABLE_CONFLICT", &cfg.TableConflict)
	num("WORKERS", &cfg.Workers)
	flag("PRESERVE_LEADING_ZEROS", &cfg.PreserveLeadingZeros)
	flag("STRIP_HTML", &cfg.StripHTML)
	num("MAX_WARNINGS", &cfg.MaxWarnings)

	str("METRICS_BACKEND", &cfg.Metrics.Backend)
	str("METRICS_JOB", &cfg.Metrics.Job)
	list("METRICS_TAGS", &cfg.Metrics.Tags)
	str("METRICS_FLUSH_EVERY", &cfg.Metrics.FlushEvery)

	str("S3_REGION", &cfg.S3.Region)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	flag("S3_USE_PATH_STYLE", &cfg.S3.UsePathStyle)

	str("SERVE_ADDR", &cfg.Serve.Addr)
	num("SERVE_PAGE_SIZE", &cfg.Serve.PageSize)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StorageConfig returns the store selection.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{Kind: strings.ToLower(strings.TrimSpace(c.Store)), DSN: c.DBPath}
}

// DelimiterRune maps Delimiter to the rune the CSV reader takes. Zero means
// sniff.
func (c *Config) DelimiterRune() (rune, error) {
	switch d := c.Delimiter; strings.ToLower(d) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case ",", ";", "|":
		return rune(d[0]), nil
	default:
		return 0, fmt.Errorf("unsupported delimiter %q (want auto, ',', ';', '|' or tab)", d)
	}
}

// FlushInterval parses Metrics.FlushEvery. Empty means zero, which the
// metrics backend replaces with its own default.
func (c *Config) FlushInterval() (time.Duration, error) {
	if strings.TrimSpace(c.Metrics.FlushEvery) == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Metrics.FlushEvery)
}

// IngestOptions converts the load settings for ingest.Runner.
func (c *Config) IngestOptions() (ingest.Options, error) {
	comma, err := c.DelimiterRune()
	if err != nil {
		return ingest.Options{}, err
	}
	policy, err := ingest.ParsePolicy(c.TableConflict)
	if err != nil {
		return ingest.Options{}, err
	}

	opt := ingest.DefaultOptions()
	opt.SampleSize = c.SampleSize
	opt.BatchSize = c.BatchSize
	opt.EncodingFallbacks = append([]string(nil), c.EncodingFallbacks...)
	opt.Delimiter = comma
	opt.Conflict = policy
	opt.Workers = c.Workers
	opt.PreserveLeadingZeros = c.PreserveLeadingZeros
	opt.StripHTML = c.StripHTML
	opt.MaxWarnings = c.MaxWarnings
	if len(c.IndexRules) > 0 {
		opt.IndexRules = append([]probe.IndexRule(nil), c.IndexRules...)
	}
	return opt, nil
}
