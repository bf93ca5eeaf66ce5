package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"niftiwork/internal/engine"
	"niftiwork/internal/instance"
	"niftiwork/internal/resolve"
)

const (
	defaultPort              = 8080
	defaultDataDir           = "data"
	defaultMaxConcurrentRuns = 2
	defaultBundleName        = resolve.DefaultBundle
	defaultConvertedFileName = resolve.DefaultFileName
)

// Config describes runtime configuration for the service and the converter module.
type Config struct {
	Port              int    `yaml:"port"`
	DataDir           string `yaml:"data_dir"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`

	Engine                engine.Engine `yaml:"engine"`
	AllowMultiInput       bool          `yaml:"allow_multi_input"`
	Targets               []string      `yaml:"targets"`
	BundleName            string        `yaml:"bundle_name"`
	ConvertedFileName     string        `yaml:"converted_file_name"`
	OverwriteExistingFile bool          `yaml:"overwrite_existing_file"`

	Verbose        bool   `yaml:"verbose"`
	Debug          bool   `yaml:"debug"`
	PlastimatchBin string `yaml:"plastimatch_bin"`
	Dcm2niixBin    string `yaml:"dcm2niix_bin"`
}

func defaultTargets() []string { return []string{"dicom:mod=ct", "nrrd:mod=ct"} }

// Default returns the settings used when no config file is present.
func Default() Config {
	return Config{
		Port:              defaultPort,
		DataDir:           defaultDataDir,
		MaxConcurrentRuns: defaultMaxConcurrentRuns,
		Engine:            engine.Plastimatch,
		Targets:           defaultTargets(),
		BundleName:        defaultBundleName,
		ConvertedFileName: defaultConvertedFileName,
		PlastimatchBin:    "plastimatch",
		Dcm2niixBin:       "dcm2niix",
	}
}

// Load reads YAML config from the provided path. If the file does not exist
// or is empty, defaults are returned with no error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(fileData, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Normalize fills blanks with defaults and canonicalizes names.
func (c *Config) Normalize() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	c.Engine = engine.Engine(strings.ToLower(strings.TrimSpace(string(c.Engine))))
	if c.Engine == "" {
		c.Engine = engine.Plastimatch
	}
	c.Targets = normalizeTargets(c.Targets)
	c.BundleName = strings.TrimSpace(c.BundleName)
	if c.BundleName == "" {
		c.BundleName = defaultBundleName
	}
	if strings.TrimSpace(c.ConvertedFileName) == "" {
		c.ConvertedFileName = defaultConvertedFileName
	}
	if c.PlastimatchBin == "" {
		c.PlastimatchBin = "plastimatch"
	}
	if c.Dcm2niixBin == "" {
		c.Dcm2niixBin = "dcm2niix"
	}
}

// Validate rejects settings the converter cannot run with.
func (c Config) Validate() error {
	// validate concurrency explicitly: values < 1 are not allowed
	if c.MaxConcurrentRuns < 1 {
		return fmt.Errorf("invalid max_concurrent_runs: %d (must be >= 1)", c.MaxConcurrentRuns)
	}
	if _, err := engine.ParseEngine(string(c.Engine)); err != nil {
		return fmt.Errorf("invalid engine: %w", err)
	}
	if _, err := c.Selectors(); err != nil {
		return fmt.Errorf("invalid targets: %w", err)
	}
	if strings.ContainsAny(c.BundleName, `/\`) || c.BundleName == "." || c.BundleName == ".." {
		return fmt.Errorf("invalid bundle_name: %q", c.BundleName)
	}
	if err := resolve.ValidateTemplate(c.ConvertedFileName); err != nil {
		return fmt.Errorf("invalid converted_file_name: %w", err)
	}
	return nil
}

// Selectors parses the configured targets in order.
func (c Config) Selectors() ([]instance.TargetSelector, error) {
	return instance.ParseSelectors(c.Targets) //nolint:wrapcheck
}

// Verbosity maps verbose/debug onto the adapter verbosity level.
func (c Config) Verbosity() engine.Verbosity { return engine.VerbosityFrom(c.Verbose, c.Debug) }

func normalizeTargets(in []string) []string {
	if len(in) == 0 {
		return defaultTargets()
	}
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, target := range in {
		t := strings.TrimSpace(target)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		normalized = append(normalized, t)
	}
	if len(normalized) == 0 {
		return defaultTargets()
	}
	return normalized
}
