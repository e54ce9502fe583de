// Package config loads seqpack settings from an optional YAML file and
// SEQPACK_* environment variables, on top of defaults for every key.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SEQPACK_ROOTS_WORK or SEQPACK_PUBLISH_ENABLED.
const EnvPrefix = "SEQPACK"

var ErrInvalid = errors.New("config: invalid configuration")

type Roots struct {
	Raw      string `mapstructure:"raw"`
	Work     string `mapstructure:"work"`
	Transfer string `mapstructure:"transfer"`
}

// Names are the fixed file and directory names inside a run.
type Names struct {
	SampleSheet      string `mapstructure:"sample_sheet"`
	UpstreamMarker   string `mapstructure:"upstream_marker"`
	CompletionMarker string `mapstructure:"completion_marker"`
	LogDir           string `mapstructure:"log_dir"`
	QCDir            string `mapstructure:"qc_dir"`
	AggregateQCDir   string `mapstructure:"aggregate_qc_dir"`
	TempDir          string `mapstructure:"temp_dir"`
}

type Tools struct {
	Bcl2fastq string `mapstructure:"bcl2fastq"`
	FastQC    string `mapstructure:"fastqc"`
	MultiQC   string `mapstructure:"multiqc"`
}

type Publish struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Config holds every setting of one seqpack process.
type Config struct {
	Roots Roots `mapstructure:"roots"`
	Names Names `mapstructure:"names"`
	Tools Tools `mapstructure:"tools"`

	ControlMarkers []string `mapstructure:"control_markers"`
	TestFixtures   []string `mapstructure:"test_fixtures"`
	InstrumentTags []string `mapstructure:"instrument_tags"`
	QCSuffix       string   `mapstructure:"qc_suffix"`

	// Threads is the CPU count handed to the tools; 0 means all CPUs.
	Threads         int    `mapstructure:"threads"`
	ChecksumWorkers int    `mapstructure:"checksum_workers"`
	SidecarMaxBytes int64  `mapstructure:"sidecar_max_bytes"`
	NofileLimit     uint64 `mapstructure:"nofile_limit"`
	ProgressEvery   int    `mapstructure:"progress_every"`

	LogLevel        string `mapstructure:"log_level"`
	MetricsTextfile string `mapstructure:"metrics_textfile"`

	Publish Publish `mapstructure:"publish"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("roots.raw", "")
	v.SetDefault("roots.work", "")
	v.SetDefault("roots.transfer", "")

	v.SetDefault("names.sample_sheet", "SampleSheet.csv")
	v.SetDefault("names.upstream_marker", "RTAComplete.txt")
	v.SetDefault("names.completion_marker", "seqpack.complete")
	v.SetDefault("names.log_dir", "logs")
	v.SetDefault("names.qc_dir", "QC")
	v.SetDefault("names.aggregate_qc_dir", "multiqc")
	v.SetDefault("names.temp_dir", "Temp")

	v.SetDefault("tools.bcl2fastq", "bcl2fastq")
	v.SetDefault("tools.fastqc", "fastqc")
	v.SetDefault("tools.multiqc", "multiqc")

	v.SetDefault("control_markers", []string{"Negativ"})
	v.SetDefault("test_fixtures", []string{"Test"})
	v.SetDefault("instrument_tags", []string{})
	v.SetDefault("qc_suffix", "QC")

	v.SetDefault("threads", 0)
	v.SetDefault("checksum_workers", 0)
	v.SetDefault("sidecar_max_bytes", 4096)
	v.SetDefault("nofile_limit", 65536)
	v.SetDefault("progress_every", 500)

	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_textfile", "")

	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.endpoint", "")
	v.SetDefault("publish.access_key", "")
	v.SetDefault("publish.secret_key", "")
	v.SetDefault("publish.region", "")
	v.SetDefault("publish.use_ssl", true)
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "runs")
}

// Load reads path (if non-empty) and the environment into a Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequireRoots reports a missing data root. Only full runs need them.
func (c *Config) RequireRoots() error {
	switch {
	case c.Roots.Raw == "":
		return fmt.Errorf("%w: roots.raw is required (env: %s_ROOTS_RAW)", ErrInvalid, EnvPrefix)
	case c.Roots.Work == "":
		return fmt.Errorf("%w: roots.work is required (env: %s_ROOTS_WORK)", ErrInvalid, EnvPrefix)
	case c.Roots.Transfer == "":
		return fmt.Errorf("%w: roots.transfer is required (env: %s_ROOTS_TRANSFER)", ErrInvalid, EnvPrefix)
	}
	return nil
}

// Validate reports the first malformed setting.
func (c *Config) Validate() error {
	switch {
	case c.Threads < 0, c.ChecksumWorkers < 0:
		return fmt.Errorf("%w: threads and checksum_workers must be >= 0", ErrInvalid)
	case c.SidecarMaxBytes <= 0:
		return fmt.Errorf("%w: sidecar_max_bytes must be > 0", ErrInvalid)
	}
	for _, n := range []struct{ key, val string }{
		{"names.sample_sheet", c.Names.SampleSheet},
		{"names.upstream_marker", c.Names.UpstreamMarker},
		{"names.completion_marker", c.Names.CompletionMarker},
		{"names.log_dir", c.Names.LogDir},
		{"names.qc_dir", c.Names.QCDir},
		{"names.aggregate_qc_dir", c.Names.AggregateQCDir},
	} {
		if strings.TrimSpace(n.val) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalid, n.key)
		}
	}
	if c.Publish.Enabled && (c.Publish.Endpoint == "" || c.Publish.Bucket == "") {
		return fmt.Errorf("%w: publish.endpoint and publish.bucket are required when publishing", ErrInvalid)
	}
	return nil
}
