package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wedding-sync/internal/models"
	"wedding-sync/internal/seating"
)

func newDrainCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Apply queued provider updates and refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.engine.DrainPendingUpdates(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) { printDrain(w, res) })
		},
	}
}

func newSyncCommand(c *console) *cobra.Command {
	var onlyToday bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Re-apply provider updates and refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.engine.SyncUpdates(cmd.Context(), onlyToday)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) { printDrain(w, res) })
		},
	}

	cmd.Flags().BoolVar(&onlyToday, "only-today", false, "only updates received today")
	return cmd
}

func newPendingCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show how many provider updates are queued",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.engine.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(models.PendingCount{Count: n}, func(w io.Writer) {
				fmt.Fprintf(w, "%d pending updates\n", n)
			})
		},
	}
}

func newTablesCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables and who sits at them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			return c.print(ev.Tables, func(w io.Writer) { printTables(w, ev) })
		},
	}
}

func newWatchCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the backend and print changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			changes, unsubscribe := c.engine.Subscribe()
			defer unsubscribe()

			stop, err := c.engine.Watch(cmd.Context(), ev.ID)
			if err != nil {
				return err
			}
			defer stop()

			fmt.Fprintf(c.errOut, "Watching %s, press Ctrl+C to stop\n", ev.ID)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case change, ok := <-changes:
					if !ok {
						return nil
					}
					updated, err := c.engine.Event(change.EventID)
					if err != nil {
						continue
					}
					if err := c.print(change, func(w io.Writer) { printSummary(w, updated) }); err != nil {
						return err
					}
				}
			}
		},
	}
}

func printDrain(w io.Writer, res models.DrainResult) {
	fmt.Fprintf(w, "Processed %d, failed %d, %d still pending\n", res.Processed, res.Failed, res.Remaining)
}

func printTables(w io.Writer, ev models.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tID\tSEATED\tCAPACITY")
	for _, t := range ev.Tables {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", t.Number, t.ID, seating.SeatsTaken(ev, t), t.Capacity)
	}
	tw.Flush()
}

func printSummary(w io.Writer, ev models.Event) {
	counts := make(map[models.RSVPStatus]int)
	for _, g := range ev.Guests {
		counts[g.RSVPStatus] += g.GuestCount
	}
	fmt.Fprintf(w, "[%s] %s: %d confirmed, %d declined, %d maybe, %d pending\n",
		formatTime(ev.UpdatedAt), ev.ID,
		counts[models.RSVPConfirmed], counts[models.RSVPDeclined], counts[models.RSVPMaybe], counts[models.RSVPPending])
}
