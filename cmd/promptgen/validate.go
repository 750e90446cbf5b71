package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

var errInvalidFiles = errors.New("some presets are invalid")

func newValidateCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-dir>...",
		Short: "Check preset files and list their variables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := presetFiles(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range files {
				p, err := preset.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n  %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "ok   %s (%s)\n", path, p.ID)
				if vars := presetVariables(p); len(vars) > 0 {
					fmt.Fprintf(out, "  variables: %v\n", vars)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidFiles, failed, len(files))
			}
			return nil
		},
	}
}

func presetFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && preset.IsPresetFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// presetVariables lists the variables referenced by tag texts of p.
func presetVariables(p *preset.Preset) []string {
	var texts []string
	var walk func(g *preset.TagGroup)
	walk = func(g *preset.TagGroup) {
		for _, c := range g.Children {
			switch {
			case c.Tag != nil:
				texts = append(texts, c.Tag.Text)
			case c.Group != nil:
				walk(c.Group)
			}
		}
	}
	for i := range p.Categories {
		for j := range p.Categories[i].Groups {
			walk(&p.Categories[i].Groups[j])
		}
	}

	return engine.Variables(strings.Join(texts, "\n"))
}
