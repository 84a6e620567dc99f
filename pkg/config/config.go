// Package config resolves src2org settings from defaults, an optional YAML
// file, and the environment (including a .env file). Command-line flags are
// applied last by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig     = "SRC2ORG_CONFIG"
	EnvOutput     = "SRC2ORG_OUTPUT"
	EnvTitle      = "SRC2ORG_TITLE"
	EnvVerbose    = "SRC2ORG_VERBOSE"
	EnvWatch      = "SRC2ORG_WATCH"
	EnvIgnoreFile = "SRC2ORG_IGNORE_FILE"
)

const (
	DefaultOutput   = "a.org"
	DefaultDebounce = 300 * time.Millisecond
)

// Config holds every recognized option.
type Config struct {
	Output     string            `yaml:"output"`
	Title      string            `yaml:"title"`
	Verbose    bool              `yaml:"verbose"`
	Watch      bool              `yaml:"watch"`
	Debounce   time.Duration     `yaml:"debounce"`
	IgnoreFile string            `yaml:"ignore_file"`
	Ignore     []string          `yaml:"ignore"`
	Languages  map[string]string `yaml:"languages"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Output:   DefaultOutput,
		Debounce: DefaultDebounce,
	}
}

// LookupFunc reads one variable; os.LookupEnv has this shape.
type LookupFunc func(key string) (string, bool)

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// EnvLookup returns a LookupFunc over the process environment that falls back
// to values from the given dotenv files. Missing dotenv files are ignored.
func EnvLookup(dotenvFiles ...string) (LookupFunc, error) {
	fileValues := map[string]string{}
	for _, file := range dotenvFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range values {
			if _, ok := fileValues[k]; !ok {
				fileValues[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileValues[key]
		return v, ok
	}, nil
}

// ConfigPath returns the config file named by the environment, if any.
func ConfigPath(lookup LookupFunc) string {
	v, _ := lookup(EnvConfig)
	return strings.TrimSpace(v)
}

// ApplyEnv overlays SRC2ORG_* variables onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if v := get(lookup, EnvOutput); v != "" {
		cfg.Output = v
	}
	if v := get(lookup, EnvTitle); v != "" {
		cfg.Title = v
	}
	if v := get(lookup, EnvIgnoreFile); v != "" {
		cfg.IgnoreFile = v
	}
	for key, dst := range map[string]*bool{EnvVerbose: &cfg.Verbose, EnvWatch: &cfg.Watch} {
		v := get(lookup, key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = b
	}
	return nil
}

func get(lookup LookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return errors.New("output file name is empty")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	return nil
}
