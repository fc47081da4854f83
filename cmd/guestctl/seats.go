package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newSeatCommand(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seat",
		Short: "Assign guests to tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "assign <guest-id> <table-id>",
		Short: "Seat an unseated guest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.seat(cmd, func(eventID string) (any, error) {
				return c.engine.AssignToTable(cmd.Context(), eventID, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "move <guest-id> <table-id>",
		Short: "Move a guest to another table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.seat(cmd, func(eventID string) (any, error) {
				return c.engine.MoveToTable(cmd.Context(), eventID, args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <guest-id>",
		Short: "Unseat a guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.seat(cmd, func(eventID string) (any, error) {
				return c.engine.RemoveFromTable(cmd.Context(), eventID, args[0])
			})
		},
	})
	return cmd
}

func (c *console) seat(cmd *cobra.Command, fn func(eventID string) (any, error)) error {
	ev, err := c.event()
	if err != nil {
		return err
	}
	res, err := fn(ev.ID)
	if err != nil {
		return err
	}
	ev, err = c.event()
	if err != nil {
		return err
	}
	return c.print(res, func(w io.Writer) { printTables(w, ev) })
}
