// Command gridwire inspects binary documents written by the gridwire
// marshaller, the same role the teacher's cmd/glint tool plays for its own
// format: point it at a document on stdin and it prints a tree.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kungfusheep/gridwire"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "gridwire",
		Short: "Inspect gridwire binary documents",
		Long: `gridwire is a command-line utility for inspecting gridwire binary documents.

Usage:
  gridwire < document.gw          # inspect document (default)
  gridwire inspect < document.gw  # same, explicit
  gridwire schema < document.gw   # show only the top-level type header
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(os.Stdin, os.Stdout)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Print a human-readable tree of a document read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(os.Stdin, os.Stdout)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the top-level type id/name/checksum of a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(os.Stdin, os.Stdout)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInspect(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	tree, err := gridwire.Inspect(data)
	if tree != "" {
		fmt.Fprint(out, tree)
	}
	if err != nil {
		return fmt.Errorf("inspecting document: %w", err)
	}
	return nil
}

func runSchema(in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	tree, err := gridwire.Inspect(data)
	if err != nil && tree == "" {
		return fmt.Errorf("inspecting document: %w", err)
	}
	// The top-level line is always the document's own type header; deeper
	// lines describe nested values (container elements, map entries), which
	// `schema` intentionally omits.
	for i, line := range splitFirstLine(tree) {
		if i > 0 {
			break
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func splitFirstLine(s string) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return []string{s[:i]}
		}
	}
	return []string{s}
}
