package cli

import (
	"github.com/spf13/cobra"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/transfer"
)

type transferFlags struct {
	from, to      string
	overwrite     bool
	skipRelations bool
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "source zone (default zone when empty)")
	cmd.Flags().StringVar(&f.to, "to", "", "target zone")
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "replace entities that already exist in the target")
	cmd.Flags().BoolVar(&f.skipRelations, "skip-relations", false, "do not carry relations over")
	_ = cmd.MarkFlagRequired("to")
}

func (f *transferFlags) options() transfer.CopyOptions {
	return transfer.CopyOptions{Overwrite: f.overwrite, SkipRelations: f.skipRelations}
}

func newCopyCommand(a *app) *cobra.Command {
	var f transferFlags
	cmd := &cobra.Command{
		Use:   "copy <entity>...",
		Short: "Copy entities and their relations to another zone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			res, err := transfer.New(c, a.logger).CopyEntitiesBetweenZones(ctx, args, f.from, f.to, f.options())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd)
	return cmd
}

func newMoveCommand(a *app) *cobra.Command {
	var f transferFlags
	cmd := &cobra.Command{
		Use:   "move <entity>...",
		Short: "Move entities and their relations to another zone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			res, err := transfer.New(c, a.logger).MoveEntitiesBetweenZones(ctx, args, f.from, f.to, f.options())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd)
	return cmd
}

func newMergeCommand(a *app) *cobra.Command {
	var (
		into          string
		strategy      string
		deleteSources bool
	)
	cmd := &cobra.Command{
		Use:   "merge <source-zone>...",
		Short: "Merge whole zones into a target zone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := transfer.ParseConflictPolicy(strategy)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			res, err := transfer.New(c, a.logger).MergeZones(ctx, args, into, transfer.MergeOptions{
				DeleteSourceZones:  deleteSources,
				OverwriteConflicts: policy,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "target zone")
	cmd.Flags().StringVar(&strategy, "strategy", string(transfer.ConflictSkip), "name conflicts: skip, overwrite or rename")
	cmd.Flags().BoolVar(&deleteSources, "delete-sources", false, "delete each source zone after it merged")
	_ = cmd.MarkFlagRequired("into")
	return cmd
}
