package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/portable"
)

func newExportCommand(a *app) *cobra.Command {
	var (
		output string
		zones  []string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write zones, entities and relations as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			res, err := portable.Export(ctx, c, bw, portable.ExportOptions{Zones: zones})
			if err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			a.logger.Info("export complete", "zones", res.Zones, "entities", res.Entities, "relations", res.Relations)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	cmd.Flags().StringSliceVarP(&zones, "zone", "z", nil, "zone to export, repeatable (default every zone)")
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	var (
		target    string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Load a JSON lines export into the graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			r := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}
			res, err := portable.Import(ctx, c, r, portable.ImportOptions{TargetZone: target, BatchSize: batchSize})
			if err != nil {
				return err
			}
			for _, f := range res.Failures {
				a.logger.Warn("record rejected", "line", f.Line, "type", f.Type, "name", f.Name, "reason", f.Reason)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&target, "target-zone", "", "import every record into this zone")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "entities per bulk request")
	return cmd
}
