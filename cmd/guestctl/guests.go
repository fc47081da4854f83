package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wedding-sync/internal/models"
	"wedding-sync/internal/rsvptext"
)

func newEventsCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events := c.engine.Events()
			current, _ := c.engine.Current()
			return c.print(events, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "\tID\tDATE\tCOUPLE\tGUESTS\tTABLES\tUPDATED")
				for _, ev := range events {
					mark := ""
					if ev.ID == current.ID {
						mark = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s & %s\t%d\t%d\t%s\n",
						mark, ev.ID, ev.Date, ev.BrideName, ev.GroomName,
						len(ev.Guests), len(ev.Tables), formatTime(ev.UpdatedAt))
				}
				tw.Flush()
			})
		},
	}
}

func newGuestsCommand(c *console) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "guests",
		Short: "List the guests of an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			guests := ev.Guests
			if status != "" {
				guests = guests[:0:0]
				for _, g := range ev.Guests {
					if string(g.RSVPStatus) == status {
						guests = append(guests, g)
					}
				}
			}
			return c.print(guests, func(w io.Writer) {
				printGuests(w, ev, guests)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only guests with this RSVP status")
	return cmd
}

func printGuests(w io.Writer, ev models.Event, guests []models.Guest) {
	tables := make(map[string]int, len(ev.Tables))
	for _, t := range ev.Tables {
		tables[t.ID] = t.Number
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tCOUNT\tRSVP\tMESSAGE\tTABLE")
	for _, g := range guests {
		table := "-"
		if n, ok := tables[g.TableID]; ok {
			table = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			g.ID, g.FullName(), g.Phone, g.GuestCount, g.RSVPStatus, g.MessageStatus, table)
	}
	tw.Flush()
}

func printGuest(w io.Writer, g models.Guest) {
	fmt.Fprintf(w, "%s  %s  (%d)  rsvp=%s  message=%s", g.ID, g.FullName(), g.GuestCount, g.RSVPStatus, g.MessageStatus)
	if g.TableID != "" {
		fmt.Fprintf(w, "  table=%s", g.TableID)
	}
	fmt.Fprintln(w)
}

func newAddCommand(c *console) *cobra.Command {
	var g models.Guest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a guest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			added, err := c.engine.AddGuest(cmd.Context(), ev.ID, g)
			if err != nil {
				return err
			}
			return c.print(added, func(w io.Writer) { printGuest(w, added) })
		},
	}

	cmd.Flags().StringVar(&g.FirstName, "first", "", "first name")
	cmd.Flags().StringVar(&g.LastName, "last", "", "last name")
	cmd.Flags().StringVar(&g.Phone, "phone", "", "phone number")
	cmd.Flags().IntVar(&g.GuestCount, "count", 1, "party size")
	cmd.Flags().StringVar(&g.TableID, "table", "", "table id")
	cmd.Flags().StringVar(&g.Notes, "notes", "", "notes")
	return cmd
}

func newUpdateCommand(c *console) *cobra.Command {
	var (
		first, last, phone, notes string
		rsvp, attendance          string
		count                     int
	)

	cmd := &cobra.Command{
		Use:   "update <guest-id>",
		Short: "Change fields of a guest",
		Long: `Change fields of a guest. Only the flags given are written; every
other field keeps its current value.

Example:
  guestctl update 0192f7 --rsvp confirmed --count 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			u := models.GuestUpdate{Source: models.SourceManual}
			if flags.Changed("first") {
				u.FirstName = &first
			}
			if flags.Changed("last") {
				u.LastName = &last
			}
			if flags.Changed("phone") {
				u.Phone = &phone
			}
			if flags.Changed("notes") {
				u.Notes = &notes
			}
			if flags.Changed("count") {
				u.GuestCount = &count
			}
			if flags.Changed("rsvp") {
				u.RSVPStatus = models.Ptr(models.RSVPStatus(rsvp))
			}
			if flags.Changed("attendance") {
				u.Attendance = models.Ptr(models.Attendance(attendance))
			}
			return c.applyUpdate(cmd, args[0], u)
		},
	}

	cmd.Flags().StringVar(&first, "first", "", "first name")
	cmd.Flags().StringVar(&last, "last", "", "last name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().IntVar(&count, "count", 0, "party size")
	cmd.Flags().StringVar(&rsvp, "rsvp", "", "RSVP status (pending|confirmed|declined|maybe)")
	cmd.Flags().StringVar(&attendance, "attendance", "", "attendance (not_marked|attended|not_attended)")
	return cmd
}

func newRSVPCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "rsvp <guest-id> <answer...>",
		Short: "Record a guest's answer as written",
		Long: `Record a guest's answer as written, in Hebrew or English. A number in
the answer sets the party size.

Example:
  guestctl rsvp 0192f7 yes, 3 of us
  guestctl rsvp 0192f7 לא מגיעים`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer := strings.Join(args[1:], " ")
			status, ok := rsvptext.ParseRSVP(answer)
			if !ok {
				return fmt.Errorf("cannot tell an RSVP from %q", answer)
			}
			u := models.GuestUpdate{RSVPStatus: &status, Source: models.SourceManual}
			if n, ok := rsvptext.GuestCount(answer, 50); ok && status == models.RSVPConfirmed {
				u.GuestCount = &n
			}
			return c.applyUpdate(cmd, args[0], u)
		},
	}
}

func (c *console) applyUpdate(cmd *cobra.Command, guestID string, u models.GuestUpdate) error {
	ev, err := c.event()
	if err != nil {
		return err
	}
	g, err := c.engine.ApplyGuestUpdate(cmd.Context(), ev.ID, guestID, u)
	if err != nil {
		return err
	}
	return c.print(g, func(w io.Writer) { printGuest(w, g) })
}

func newDeleteCommand(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <guest-id>",
		Short: "Delete a guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			if err := c.engine.DeleteGuest(cmd.Context(), ev.ID, args[0]); err != nil {
				return err
			}
			return c.print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}

func formatTime(t models.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
