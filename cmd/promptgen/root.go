package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nai-prompt-bot/internal/compose"
	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/pool"
	"nai-prompt-bot/internal/preset"
)

type rootOptions struct {
	format    string
	varsFile  string
	poolsFile string
	maxDepth  int
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "promptgen",
		Short: "Expand randomized prompt presets offline",
		Long: `promptgen expands randomized prompt presets from YAML or JSON files.

Given the same preset, generation context and seed, every run prints the
same prompt and the same decision trace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case "text", "json", "yaml":
				return nil
			}
			return fmt.Errorf("unknown output format %q (text, json, yaml)", opts.format)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.format, "output", "o", "text", "output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&opts.varsFile, "vars", "", "global variable namespace file")
	cmd.PersistentFlags().StringVar(&opts.poolsFile, "pools", "", "YAML file mapping pool IDs to tag lists")
	cmd.PersistentFlags().IntVar(&opts.maxDepth, "max-depth", engine.DefaultMaxVariableDepth, "maximum variable nesting depth")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine decisions to stderr")

	cmd.AddCommand(newExpandCmd(opts), newComposeCmd(opts), newValidateCmd(opts))
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// engine builds an engine from the namespace and pool files, if given.
func (o *rootOptions) engine(cmd *cobra.Command) (*engine.Engine, error) {
	engOpts := engine.Options{
		MaxVariableDepth: o.maxDepth,
		Logger:           o.logger(cmd),
	}

	if o.varsFile != "" {
		ns, err := preset.LoadNamespace(o.varsFile)
		if err != nil {
			return nil, fmt.Errorf("vars: %w", err)
		}
		engOpts.Namespace = ns
	}

	if o.poolsFile != "" {
		data, err := os.ReadFile(o.poolsFile)
		if err != nil {
			return nil, fmt.Errorf("pools: %w", err)
		}
		var pools map[string][]string
		if err := yaml.Unmarshal(data, &pools); err != nil {
			return nil, fmt.Errorf("pools %s: %w", o.poolsFile, err)
		}
		engOpts.Pools = pool.NewCache(pool.NewStatic(pools), pool.CacheOptions{Logger: engOpts.Logger})
	}

	return engine.New(engOpts), nil
}

func (o *rootOptions) composer(cmd *cobra.Command) (*compose.Composer, error) {
	eng, err := o.engine(cmd)
	if err != nil {
		return nil, err
	}
	return compose.New(compose.Options{Engine: eng, Logger: o.logger(cmd)}), nil
}
