package fingerprint

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-sync/internal/models"
)

func sampleGuest() models.Guest {
	g := models.NewGuest("g1")
	g.FirstName = "דנה"
	g.LastName = "Cohen"
	g.Phone = "0521234567"
	g.GuestCount = 2
	g.ResponseDate = models.At(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))
	return g
}

func TestGuest_Deterministic(t *testing.T) {
	g := sampleGuest()
	first := Guest(g)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Guest(g))
	}
	assert.Len(t, first, 64)
}

func TestGuest_IgnoresIdentityAndClocks(t *testing.T) {
	a := sampleGuest()
	b := a.Clone()
	b.Clocks = map[models.Field]time.Time{models.FieldNotes: time.Now()}

	assert.Equal(t, Guest(a), Guest(b))
}

func TestGuest_ChangesWithObservableFields(t *testing.T) {
	base := Guest(sampleGuest())

	mutations := map[string]func(*models.Guest){
		"rsvp":       func(g *models.Guest) { g.RSVPStatus = models.RSVPConfirmed },
		"count":      func(g *models.Guest) { g.GuestCount = 3 },
		"attendance": func(g *models.Guest) { g.Attendance = models.AttendanceAttended },
		"table":      func(g *models.Guest) { g.TableID = "t1" },
		"notes":      func(g *models.Guest) { g.Notes = "x" },
		"response":   func(g *models.Guest) { g.ResponseDate = models.At(g.ResponseDate.Add(time.Millisecond)) },
		"message":    func(g *models.Guest) { g.MessageStatus = models.MessageSent },
		"first":      func(g *models.Guest) { g.FirstName = "Dana" },
		"last":       func(g *models.Guest) { g.LastName = "Levi" },
		"phone":      func(g *models.Guest) { g.Phone = "0527654321" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			g := sampleGuest()
			mutate(&g)
			assert.NotEqual(t, base, Guest(g))
		})
	}
}

func TestGuest_FieldBoundaries(t *testing.T) {
	a := sampleGuest()
	a.FirstName, a.LastName = "ab", "c"
	b := sampleGuest()
	b.FirstName, b.LastName = "a", "bc"

	assert.NotEqual(t, Guest(a), Guest(b))
}

func TestGuest_NormalizesUnicode(t *testing.T) {
	a := sampleGuest()
	a.FirstName = "Jos\u00e9"
	b := sampleGuest()
	b.FirstName = "Jose\u0301"

	assert.Equal(t, Guest(a), Guest(b))
}

func TestGuest_MalformedResponseDateIsEpochZero(t *testing.T) {
	var g models.Guest
	require.NoError(t, json.Unmarshal([]byte(`{"id":"g1","response_date":"not a date"}`), &g))

	zero := g
	zero.ResponseDate = models.Timestamp{}

	assert.Equal(t, Guest(zero), Guest(g))
	assert.Equal(t, int64(0), g.ResponseDate.EpochMillis())
}

func TestEvent_TracksUpdatedAtAndGuests(t *testing.T) {
	e := models.Event{
		ID:        "e1",
		UpdatedAt: models.At(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Guests:    []models.Guest{sampleGuest()},
	}
	base := Event(e)

	assert.Equal(t, base, Event(e.Clone()))

	touched := e.Clone()
	touched.Touch(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.NotEqual(t, base, Event(touched))

	edited := e.Clone()
	edited.Guests[0].Notes = "allergic"
	assert.NotEqual(t, base, Event(edited))

	// tables and campaigns are not part of the digest
	seated := e.Clone()
	seated.Tables = append(seated.Tables, models.Table{ID: "t1", Number: 1})
	assert.Equal(t, base, Event(seated))
}

func TestEvents_OrderSensitive(t *testing.T) {
	a := models.Event{ID: "a"}
	b := models.Event{ID: "b"}

	assert.Equal(t, Events([]models.Event{a, b}), Events([]models.Event{a, b}))
	assert.NotEqual(t, Events([]models.Event{a, b}), Events([]models.Event{b, a}))
}
