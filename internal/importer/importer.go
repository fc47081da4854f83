// Package importer turns a tabular guest list into validated guests,
// reports duplicate phone numbers and feeds the guests through the same
// creation path as a manual add.
package importer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/rsvptext"
)

// Column positions in the guest sheet.
const (
	colName = iota
	colPhone
	colGuestCount
	colRSVP
	colResponseDate
	colChannel
	colAttendance
	colTable
	colMessageStatus
	colMessageDate
	colNotes
)

// TableNotePrefix marks a table number that did not match any table. The
// number is kept in the guest's notes so it can be fixed up later.
const TableNotePrefix = "[table: "

const maxGuestCount = 50

// ValidatedGuest is an accepted row ready to be created.
type ValidatedGuest struct {
	Row   int
	Guest models.Guest
}

// RowError ties a failure to its spreadsheet row.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// DuplicateGroup is a phone number that occurs on several rows of the batch.
type DuplicateGroup struct {
	Phone string
	Rows  []int
}

// ExistingDuplicate is a row whose phone is already on the roster.
type ExistingDuplicate struct {
	Phone     string
	Row       int
	GuestID   string
	GuestName string
}

// DuplicateReport is advisory: duplicates are reported, never dropped.
type DuplicateReport struct {
	InBatch  []DuplicateGroup
	Existing []ExistingDuplicate
}

func (r DuplicateReport) Empty() bool {
	return len(r.InBatch) == 0 && len(r.Existing) == 0
}

// Preview is everything the operator needs to confirm an import.
type Preview struct {
	Guests     []ValidatedGuest
	Rejected   []RowError
	Duplicates DuplicateReport
}

// Prepare parses rows against event and checks them for duplicates.
func Prepare(rows []Row, event models.Event) Preview {
	guests, rejected := ParseRows(rows, event.Tables)
	return Preview{
		Guests:     guests,
		Rejected:   rejected,
		Duplicates: FindDuplicates(guests, event.Guests),
	}
}

// ParseRows maps rows to guests. A row is accepted if it has a name or a
// phone. Blank rows are skipped without an error.
func ParseRows(rows []Row, tables []models.Table) ([]ValidatedGuest, []RowError) {
	var (
		guests   []ValidatedGuest
		rejected []RowError
	)
	for _, row := range rows {
		if isBlank(row.Cells) {
			continue
		}
		g, err := parseRow(row, tables)
		if err != nil {
			rejected = append(rejected, RowError{Row: row.Number, Err: err})
			continue
		}
		guests = append(guests, ValidatedGuest{Row: row.Number, Guest: g})
	}
	return guests, rejected
}

func parseRow(row Row, tables []models.Table) (models.Guest, error) {
	cell := func(i int) string {
		if i < len(row.Cells) {
			return strings.TrimSpace(row.Cells[i])
		}
		return ""
	}

	name, phone := cell(colName), cell(colPhone)
	if name == "" && phone == "" {
		return models.Guest{}, errs.Validation("importer.ParseRows", "row %d has neither name nor phone", row.Number)
	}

	g := models.NewGuest("")
	g.FirstName, g.LastName = splitName(name)
	g.Phone = phone
	g.Source = models.SourceImport
	if n, err := strconv.Atoi(cell(colGuestCount)); err == nil && n >= 1 && n <= maxGuestCount {
		g.GuestCount = n
	}
	g.RSVPStatus = rsvptext.RSVPOrPending(cell(colRSVP))
	g.ResponseDate = models.At(models.ParseTime(cell(colResponseDate)))
	g.Attendance = rsvptext.AttendanceOrNotMarked(cell(colAttendance))
	g.Notes = cell(colNotes)

	g.MessageStatus = rsvptext.MessageStatusOrNotSent(cell(colMessageStatus))
	messageDate := models.At(models.ParseTime(cell(colMessageDate)))
	switch g.MessageStatus {
	case models.MessageSent:
		g.MessageSentDate = messageDate
	case models.MessageDelivered:
		g.MessageDeliveredDate = messageDate
	case models.MessageFailed:
		g.MessageFailedDate = messageDate
	}

	if table := cell(colTable); table != "" {
		if id, ok := matchTable(table, tables); ok {
			g.TableID = id
		} else {
			g.Notes = joinNotes(TableNotePrefix+table+"]", g.Notes)
		}
	}
	return g, nil
}

func matchTable(text string, tables []models.Table) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return "", false
	}
	for _, t := range tables {
		if t.Number == n {
			return t.ID, true
		}
	}
	return "", false
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func joinNotes(prefix, notes string) string {
	if notes == "" {
		return prefix
	}
	return prefix + " " + notes
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FindDuplicates groups batch rows by normalized phone and matches them
// against the existing roster. Rows without a phone are ignored.
func FindDuplicates(guests []ValidatedGuest, existing []models.Guest) DuplicateReport {
	var report DuplicateReport

	byPhone := make(map[string][]int)
	var order []string
	for _, vg := range guests {
		phone := models.PhoneDigits(vg.Guest.Phone)
		if phone == "" {
			continue
		}
		if _, seen := byPhone[phone]; !seen {
			order = append(order, phone)
		}
		byPhone[phone] = append(byPhone[phone], vg.Row)
	}
	for _, phone := range order {
		if rows := byPhone[phone]; len(rows) > 1 {
			report.InBatch = append(report.InBatch, DuplicateGroup{Phone: phone, Rows: rows})
		}
	}

	roster := make(map[string]models.Guest, len(existing))
	for _, g := range existing {
		if phone := models.PhoneDigits(g.Phone); phone != "" {
			roster[phone] = g
		}
	}
	for _, vg := range guests {
		phone := models.PhoneDigits(vg.Guest.Phone)
		if g, ok := roster[phone]; ok && phone != "" {
			report.Existing = append(report.Existing, ExistingDuplicate{
				Phone:     phone,
				Row:       vg.Row,
				GuestID:   g.ID,
				GuestName: g.FullName(),
			})
		}
	}
	sort.SliceStable(report.Existing, func(i, j int) bool { return report.Existing[i].Row < report.Existing[j].Row })
	return report
}

// GuestCreator is the guest creation path shared with manual adds.
type GuestCreator interface {
	AddGuest(ctx context.Context, eventID string, guest models.Guest) (models.Guest, error)
}

// Result aggregates an import run.
type Result struct {
	Added  int
	Failed int
	Errors []RowError
}

// Import creates every guest, continuing past individual failures.
func Import(ctx context.Context, creator GuestCreator, eventID string, guests []ValidatedGuest, logger zerolog.Logger) Result {
	var res Result
	for _, vg := range guests {
		if err := ctx.Err(); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: vg.Row, Err: err})
			continue
		}
		if _, err := creator.AddGuest(ctx, eventID, vg.Guest); err != nil {
			logger.Warn().Err(err).Int("row", vg.Row).Msg("Failed to import guest")
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: vg.Row, Err: err})
			continue
		}
		res.Added++
	}
	logger.Info().Int("added", res.Added).Int("failed", res.Failed).Str("event", eventID).Msg("Import finished")
	return res
}
