package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"nai-prompt-bot/internal/engine"
	"nai-prompt-bot/internal/preset"
)

type expandOptions struct {
	seed   uint64
	count  int
	gender string
	scope  string
	trace  bool
}

func newExpandCmd(root *rootOptions) *cobra.Command {
	opts := &expandOptions{}

	cmd := &cobra.Command{
		Use:   "expand <preset-file>",
		Short: "Expand a preset into a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := preset.LoadFile(args[0])
			if err != nil {
				return err
			}
			eng, err := root.engine(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				opts.seed = rand.Uint64()
			}
			if opts.count < 1 {
				return fmt.Errorf("count must be at least 1")
			}

			gc := engine.Context{
				TargetGender:   preset.Gender(opts.gender),
				RequestedScope: preset.Scope(opts.scope),
			}

			results := make([]engine.Result, 0, opts.count)
			for i := 0; i < opts.count; i++ {
				res, err := eng.Expand(cmd.Context(), p, gc, opts.seed+uint64(i))
				if err != nil {
					return err
				}
				results = append(results, res)
			}

			if root.format == "text" {
				return writeResultsText(cmd.OutOrStdout(), results, opts.trace)
			}
			if opts.count == 1 {
				return writeStructured(cmd.OutOrStdout(), root.format, results[0])
			}
			return writeStructured(cmd.OutOrStdout(), root.format, results)
		},
	}

	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed (random when omitted)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "number of prompts, on consecutive seeds")
	cmd.Flags().StringVar(&opts.gender, "gender", "", "target gender: female, male or other")
	cmd.Flags().StringVar(&opts.scope, "scope", "all", "requested scope: all, character or scene")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "print the decision trace in text output")
	return cmd
}

func newComposeCmd(root *rootOptions) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "compose <preset-file>",
		Short: "Compose a multi-character prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := preset.LoadFile(args[0])
			if err != nil {
				return err
			}
			c, err := root.composer(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				seed = rand.Uint64()
			}

			comp, err := c.Compose(cmd.Context(), p, seed)
			if err != nil {
				return err
			}
			if root.format == "text" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), comp.Prompt())
				return err
			}
			return writeStructured(cmd.OutOrStdout(), root.format, comp)
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed (random when omitted)")
	return cmd
}
