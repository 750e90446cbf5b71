package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"nai-prompt-bot/internal/engine"
)

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeResultsText(w io.Writer, results []engine.Result, withTrace bool) error {
	for _, res := range results {
		if withTrace {
			fmt.Fprintf(w, "# seed %d\n", res.Seed)
		}
		if _, err := fmt.Fprintln(w, res.Text); err != nil {
			return err
		}
		if !withTrace {
			continue
		}
		for _, e := range res.Trace {
			fmt.Fprintf(w, "  %-9s %-24s %s", e.Kind, e.NodeID, e.Decision)
			if len(e.Chosen) > 0 {
				fmt.Fprintf(w, " %v", e.Chosen)
			}
			if e.Detail != "" {
				fmt.Fprintf(w, " (%s)", e.Detail)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
