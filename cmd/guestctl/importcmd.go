package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"wedding-sync/internal/importer"
)

func newImportCommand(c *console) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import guests from a .csv or .xlsx file",
		Long: `Import guests from a .csv or .xlsx file.

Rows are validated and checked for duplicate phone numbers first. The
preview is printed and the import asks for confirmation unless --yes is
given. Duplicates are reported but still imported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := c.event()
			if err != nil {
				return err
			}
			rows, err := importer.ReadFile(args[0])
			if err != nil {
				return err
			}
			preview := importer.Prepare(rows, ev)
			printPreview(c.errOut, preview)

			if len(preview.Guests) == 0 {
				return fmt.Errorf("no guests to import")
			}
			if !yes && !confirm(cmd.InOrStdin(), c.errOut, fmt.Sprintf("Import %d guests into %s?", len(preview.Guests), ev.ID)) {
				return fmt.Errorf("import cancelled")
			}

			res := importer.Import(cmd.Context(), c.engine, ev.ID, preview.Guests, c.log)
			return c.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "Added %d, failed %d\n", res.Added, res.Failed)
				for _, e := range res.Errors {
					fmt.Fprintf(w, "  %v\n", e)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "import without asking")
	return cmd
}

func printPreview(w io.Writer, p importer.Preview) {
	fmt.Fprintf(w, "%d guests ready, %d rows rejected\n", len(p.Guests), len(p.Rejected))
	for _, e := range p.Rejected {
		fmt.Fprintf(w, "  rejected %v\n", e)
	}
	for _, d := range p.Duplicates.InBatch {
		fmt.Fprintf(w, "  warning: phone %s appears on rows %v\n", d.Phone, d.Rows)
	}
	for _, d := range p.Duplicates.Existing {
		fmt.Fprintf(w, "  warning: row %d phone %s already belongs to %s\n", d.Row, d.Phone, d.GuestName)
	}
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
