package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrzor/wirestamp/internal/correlation"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [file...]",
		Short: "Print the correlation key found in each file (or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				return printKey(out, "-", data)
			}

			for _, path := range args {
				data, err := os.ReadFile(path) //nolint:gosec // Reading user-named files is the purpose of this command
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				if err := printKey(out, path, data); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printKey(w io.Writer, name string, data []byte) error {
	key, ok := correlation.Extract(data)
	if !ok {
		_, err := fmt.Fprintf(w, "%s: no correlation key\n", name)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: identity=%q direction=%q operation=%q\n",
		name, key.Identity, key.Direction, key.Operation)
	return err
}
