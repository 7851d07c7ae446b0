package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/models"
)

func newZonesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage memory zones",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every zone with its metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			list, err := c.Zones().ListMemoryZones(ctx, "cli")
			if err != nil {
				return err
			}
			if list == nil {
				list = []models.ZoneMetadata{}
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}

	var description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			meta, err := c.Zones().AddMemoryZone(ctx, args[0], description, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), meta)
		},
	}
	add.Flags().StringVarP(&description, "description", "d", "", "what the zone is for")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a zone with its entities and relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			out, err := c.Zones().DeleteMemoryZone(ctx, args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.OK() {
				return fmt.Errorf("delete zone %q: %s", args[0], out.Failed[0].Reason)
			}
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats [name]",
		Short: "Show entity and relation counts of a zone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, closeGraph, err := a.openGraph(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			zone := models.DefaultZone
			if len(args) == 1 {
				zone = args[0]
			}
			st, err := c.Zones().ZoneStats(ctx, zone)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.AddCommand(list, add, del, stats)
	return cmd
}
