package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wedding-sync/internal/models"
)

func newCampaignsCommand(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List the event's campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			return c.print(ev.Campaigns, func(w io.Writer) { printCampaigns(w, ev.Campaigns) })
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the default campaigns if the event has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			if err := c.engine.EnsureCampaigns(cmd.Context(), ev.ID); err != nil {
				return err
			}
			ev, err = c.engine.Event(ev.ID)
			if err != nil {
				return err
			}
			return c.print(ev.Campaigns, func(w io.Writer) { printCampaigns(w, ev.Campaigns) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "send <campaign-id>",
		Short: "Send a campaign to every guest with a phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			res, err := c.engine.SendCampaign(cmd.Context(), ev.ID, args[0])
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "Sent %d, failed %d\n", res.Sent, res.Failed)
			})
		},
	})
	return cmd
}

func printCampaigns(w io.Writer, campaigns []models.Campaign) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSENT")
	for _, cp := range campaigns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", cp.ID, cp.Name, cp.Status, cp.SentCount)
	}
	tw.Flush()
}
