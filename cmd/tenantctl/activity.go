package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ratekl/api/internal/activity"
)

func newActivityCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Export or restore the last-seen activity snapshot",
	}
	cmd.AddCommand(newActivityExportCmd(state), newActivityImportCmd(state))
	return cmd
}

func newActivityExportCmd(state *cliState) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the snapshot as JSON to stdout or a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			snapshot, err := client.ExportActivity(ctx, token)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default stdout)")
	return cmd
}

func newActivityImportCmd(state *cliState) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the server snapshot with one read from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if in != "" {
				f, err := os.Open(in)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var snapshot activity.Snapshot
			if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			client, token, err := state.authed()
			if err != nil {
				return err
			}
			ctx, cancel := state.context(cmd)
			defer cancel()
			if err := client.ImportActivity(ctx, token, snapshot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activity imported: %d domains\n", len(snapshot))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Input file (default stdin)")
	return cmd
}
