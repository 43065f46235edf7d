package config

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/targets"
)

const (
	// DefaultFile is the config file looked up in the project root
	DefaultFile = "vuelib.toml"
	// EnvPrefix is prepended to the environment name of every field (VUELIB_OUTPUT, VUELIB_STYLE_COMMAND, ...)
	EnvPrefix = "VUELIB"
	// BuildTypeEnv selects the style variant without a prefix, as the package.json scripts set it
	BuildTypeEnv = "BUILD_TYPE"
)

// Config describes all configuration options
type Config struct {
	Source    string   `default:"components" toml:"source" usage:"Component source directory"`
	Output    string   `default:"lib" toml:"output" usage:"Build output directory"`
	Exclude   []string `default:"demo,test" toml:"exclude" usage:"Patterns for paths that are not copied to the output"`
	Entry     string   `default:"index.js" toml:"entry" usage:"Root entry script that is not copied to the output"`
	Clean     bool     `default:"true" toml:"clean" usage:"Remove the output directory before copying"`
	Jobs      int      `default:"0" toml:"jobs" usage:"Maximum number of files processed at once (0 = twice the CPU count)"`
	FailFast  bool     `default:"true" toml:"fail_fast" usage:"Stop compiling components after the first failure"`
	BuildType string   `default:"default" toml:"build_type" usage:"Style variant (default or special)"`

	Precompress bool   `default:"false" toml:"precompress" usage:"Write brotli compressed copies of the built files"`
	Report      string `toml:"report" usage:"Write a YAML build report to this path"`

	Style struct {
		Command          string `default:"stylus" toml:"command" usage:"Stylus command line"`
		Util             string `default:"components/assets/_style/util.styl" toml:"util"`
		Variables        string `default:"components/assets/_style/var.styl" toml:"variables"`
		SpecialVariables string `default:"components/assets/_style/var.special.styl" toml:"special_variables"`
		Vendor           string `default:"node_modules/nib/lib/nib/vendor" toml:"vendor"`
		Gradients        string `default:"node_modules/nib/lib/nib/gradients" toml:"gradients"`
		Global           string `default:"assets/_style/global.styl" toml:"global" usage:"Global stylesheet, relative to the output directory"`
		GlobalOut        string `default:"assets/_style/global.css" toml:"global_out" usage:"Compiled global stylesheet, relative to the output directory"`
		GlobalImport     string `default:"../assets/_style/global.css" toml:"global_import" usage:"Import path of the global stylesheet inside compiled components"`
	} `toml:"style"`

	Targets struct {
		IOS    string `default:"11" toml:"ios"`
		Chrome string `default:"51" toml:"chrome" usage:"Android WebView baseline as Chrome version"`
	} `toml:"targets"`

	Log struct {
		Level string `default:"info" toml:"level"`
		JSON  bool   `default:"false" toml:"json" usage:"Output JSON lines instead of pretty console messages"`
	} `toml:"log"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Flags are handled by cobra so aconfig only reads defaults, the passed files and the environment.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: EnvPrefix,
		SkipFlags: true,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Read loads defaults, the passed files and the environment without validating the result.
// BUILD_TYPE overrides build_type from the files and from VUELIB_BUILD_TYPE.
func Read(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if buildType := os.Getenv(BuildTypeEnv); buildType != "" {
		cfg.BuildType = buildType
	}

	return cfg, nil
}

// Load is a shortcut for Read() followed by Validate()
func Load(files ...string) (*Config, error) {
	cfg, err := Read(files...)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if cfg.Source == "" {
		return eris.New("source must not be empty")
	}

	if cfg.Output == "" {
		return eris.New("output must not be empty")
	}

	if err := checkDirs(cfg.Source, cfg.Output); err != nil {
		return err
	}

	if cfg.Jobs < 0 {
		return eris.Errorf("Invalid value for jobs: %d", cfg.Jobs)
	}

	if _, err := styles.ParseVariant(cfg.BuildType); err != nil {
		return eris.Wrap(err, "Invalid value for build_type")
	}

	if _, err := cfg.ExcludePatterns(); err != nil {
		return err
	}

	if err := cfg.Profile().Validate(); err != nil {
		return eris.Wrap(err, "Invalid targets")
	}

	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf("Invalid value for log.level: %s", cfg.Log.Level)
	}

	return nil
}

// checkDirs rejects overlapping trees: the copy would walk into its own output, and
// cleaning the output would delete the sources.
func checkDirs(source, output string) error {
	absSource, err := filepath.Abs(source)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", source)
	}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		return eris.Wrapf(err, "Failed to resolve %s", output)
	}

	if absSource == absOutput {
		return eris.Errorf("source and output both point to %s", source)
	}

	if isWithin(absSource, absOutput) {
		return eris.Errorf("output %s must not be inside source %s", output, source)
	}

	if isWithin(absOutput, absSource) {
		return eris.Errorf("source %s must not be inside output %s", source, output)
	}

	return nil
}

func isWithin(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// Workers returns the effective concurrency bound
func (cfg *Config) Workers() int {
	if cfg.Jobs > 0 {
		return cfg.Jobs
	}

	return runtime.NumCPU() * 2
}

// Variant returns the style variant selected by build_type. Validate() must have been called before.
func (cfg *Config) Variant() styles.Variant {
	variant, _ := styles.ParseVariant(cfg.BuildType)
	return variant
}

// Profile returns the configured browser baselines
func (cfg *Config) Profile() targets.Profile {
	return targets.Profile{
		IOS:    cfg.Targets.IOS,
		Chrome: cfg.Targets.Chrome,
	}
}

// Imports returns the shared Stylus files injected before every render
func (cfg *Config) Imports() styles.Imports {
	return styles.Imports{
		Util:             cfg.Style.Util,
		Variables:        cfg.Style.Variables,
		SpecialVariables: cfg.Style.SpecialVariables,
		Vendor:           cfg.Style.Vendor,
		Gradients:        cfg.Style.Gradients,
	}
}

// ExcludePatterns compiles the exclude list
func (cfg *Config) ExcludePatterns() ([]*regexp.Regexp, error) {
	result := make([]*regexp.Regexp, 0, len(cfg.Exclude))
	for _, item := range cfg.Exclude {
		re, err := regexp.Compile(item)
		if err != nil {
			return nil, eris.Wrapf(err, "Invalid exclude pattern %s", item)
		}

		result = append(result, re)
	}

	return result, nil
}
