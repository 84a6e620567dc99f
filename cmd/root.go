// Package cmd defines the src2org command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"src2org/pkg/classify"
	"src2org/pkg/config"
	"src2org/pkg/convert"
	"src2org/pkg/ignore"
	"src2org/pkg/logging"
	"src2org/pkg/version"
	"src2org/pkg/watch"
)

// NewRootCommand returns the src2org command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "src2org [flags] PATH",
		Short: "Convert a source tree into a single org-mode document",
		Long: `src2org walks a file or directory and writes one org-mode outline.
Every directory becomes a heading and every supported file becomes a source
block with a :tangle target, so the tree can be tangled back out of the document.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		Version:      version.Get().String(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), args[0], cfg)
		},
	}

	fl := rootCmd.Flags()
	fl.StringP("config", "c", "", "YAML config file (env "+config.EnvConfig+")")
	fl.StringP("output", "o", config.DefaultOutput, "Output file name")
	fl.StringP("title", "t", "", "Org file title (default: base name of PATH)")
	fl.BoolP("verbose", "v", false, "Enable debug logging")
	fl.BoolP("watch", "w", false, "Regenerate the output whenever PATH changes")
	fl.String("ignore-file", "", "Ignore file (default: PATH/"+ignore.DefaultFileName+" when present)")
	fl.StringArray("ignore", nil, "Ignore pattern, gitignore syntax (repeatable)")

	return rootCmd
}

// resolveConfig layers defaults, the config file, the environment and the flags
// the user actually set.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	fl := cmd.Flags()

	lookup, err := config.EnvLookup(".env")
	if err != nil {
		return cfg, err
	}

	configFile, err := fl.GetString("config")
	if err != nil {
		return cfg, fmt.Errorf("error reading flags: %w", err)
	}
	if configFile == "" {
		configFile = config.ConfigPath(lookup)
	}
	if configFile != "" {
		if err := config.LoadFile(configFile, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}

	strs := map[string]*string{"output": &cfg.Output, "title": &cfg.Title, "ignore-file": &cfg.IgnoreFile}
	for name, dst := range strs {
		if !fl.Changed(name) {
			continue
		}
		if *dst, err = fl.GetString(name); err != nil {
			return cfg, fmt.Errorf("error reading flags: %w", err)
		}
	}
	bools := map[string]*bool{"verbose": &cfg.Verbose, "watch": &cfg.Watch}
	for name, dst := range bools {
		if !fl.Changed(name) {
			continue
		}
		if *dst, err = fl.GetBool(name); err != nil {
			return cfg, fmt.Errorf("error reading flags: %w", err)
		}
	}
	patterns, err := fl.GetStringArray("ignore")
	if err != nil {
		return cfg, fmt.Errorf("error reading flags: %w", err)
	}
	cfg.Ignore = append(cfg.Ignore, patterns...)

	return cfg, cfg.Validate()
}

func run(ctx context.Context, path string, cfg config.Config) error {
	info := version.Get()
	logger, err := logging.New(cfg.Verbose, version.AppName, info.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	matcher, err := loadIgnore(path, cfg, logger)
	if err != nil {
		return err
	}

	langs := make(map[string]classify.Lang, len(cfg.Languages))
	for ext, lang := range cfg.Languages {
		langs[ext] = classify.Lang(lang)
	}
	conv := convert.New(logger, convert.Options{
		Classifier: classify.New(langs),
		Ignore:     matcher,
	})

	stats, err := conv.ConvertToFile(path, cfg.Output, cfg.Title)
	if err != nil {
		return err
	}
	logger.Info("Wrote org document",
		zap.String("output", cfg.Output),
		zap.Int("directories", stats.Dirs),
		zap.Int("files", stats.Files),
		zap.Int("skippedDirectories", stats.SkippedDirs),
		zap.Int("skippedFiles", stats.SkippedFiles))

	if !cfg.Watch {
		return nil
	}
	w, err := watch.New(path, func() error {
		_, err := conv.ConvertToFile(path, cfg.Output, cfg.Title)
		return err
	}, logger, watch.Options{
		Debounce: cfg.Debounce,
		Ignore:   matcher,
		Exclude:  []string{cfg.Output},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// loadIgnore builds the matcher from the ignore file and inline patterns. The
// default ignore file is only consulted for directory roots.
func loadIgnore(path string, cfg config.Config, logger *zap.Logger) (*ignore.Matcher, error) {
	file := cfg.IgnoreFile
	if file == "" {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			file = filepath.Join(path, ignore.DefaultFileName)
		}
	} else if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("ignore file: %w", err)
	}

	matcher, err := ignore.Load(logger, file)
	if err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}
	matcher.CompileLines(cfg.Ignore...)
	logger.Debug("Ignore patterns loaded",
		zap.String("ignoreFile", file),
		zap.Int("patternCount", matcher.Len()))
	return matcher, nil
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
