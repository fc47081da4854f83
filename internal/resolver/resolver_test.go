package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-sync/internal/models"
)

var (
	t0  = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	t1  = t0.Add(time.Hour)
	now = t0.Add(24 * time.Hour)
)

func baseGuest() models.Guest {
	g := models.NewGuest("g1")
	g.FirstName = "Dana"
	g.LastName = "Cohen"
	g.Phone = "0521234567"
	g.GuestCount = 3
	return g
}

func at(t time.Time) *models.Timestamp {
	return models.Ptr(models.At(t))
}

func TestResolve_MissingResponseDateMeansNow(t *testing.T) {
	got, outcome := Resolve(baseGuest(), models.GuestUpdate{
		RSVPStatus: models.Ptr(models.RSVPConfirmed),
		Source:     models.SourceManual,
	}, now)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, models.RSVPConfirmed, got.RSVPStatus)
	assert.True(t, got.ResponseDate.Equal(now))
	assert.Equal(t, models.SourceManual, got.Source)
}

func TestResolve_MessageStatusOnlyKeepsOtherFields(t *testing.T) {
	current := baseGuest()
	current.RSVPStatus = models.RSVPConfirmed
	current.ResponseDate = models.At(t0)

	got, outcome := Resolve(current, models.GuestUpdate{
		MessageStatus: models.Ptr(models.MessageDelivered),
		ResponseDate:  at(t1),
		Source:        models.SourceWebhook,
	}, now)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, models.MessageDelivered, got.MessageStatus)
	assert.Equal(t, 3, got.GuestCount)
	assert.Equal(t, models.RSVPConfirmed, got.RSVPStatus)
	assert.Equal(t, models.SourceWebhook, got.Source)
}

func TestResolve_StaleWebhookLosesToManualEdit(t *testing.T) {
	g := baseGuest()

	g, outcome := Resolve(g, models.GuestUpdate{
		RSVPStatus:   models.Ptr(models.RSVPConfirmed),
		ResponseDate: at(t1),
		Source:       models.SourceManual,
	}, now)
	require.Equal(t, Applied, outcome)

	g, outcome = Resolve(g, models.GuestUpdate{
		RSVPStatus:   models.Ptr(models.RSVPPending),
		ResponseDate: at(t0),
		Source:       models.SourceWebhook,
	}, now)

	assert.Equal(t, ConflictSkipped, outcome)
	assert.Equal(t, models.RSVPConfirmed, g.RSVPStatus)
	assert.Equal(t, models.SourceManual, g.Source)
}

func TestResolve_TieFavorsIncoming(t *testing.T) {
	current := baseGuest()
	current.RSVPStatus = models.RSVPDeclined
	current.ResponseDate = models.At(t1)

	got, outcome := Resolve(current, models.GuestUpdate{
		RSVPStatus:   models.Ptr(models.RSVPMaybe),
		ResponseDate: at(t1),
		Source:       models.SourceGuestLink,
	}, now)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, models.RSVPMaybe, got.RSVPStatus)
	assert.Equal(t, models.SourceGuestLink, got.Source)
}

func TestResolve_ConvergesRegardlessOfArrivalOrder(t *testing.T) {
	u1 := models.GuestUpdate{
		RSVPStatus:    models.Ptr(models.RSVPDeclined),
		MessageStatus: models.Ptr(models.MessageSent),
		ResponseDate:  at(t0),
		Source:        models.SourceWebhook,
	}
	u2 := models.GuestUpdate{
		RSVPStatus:   models.Ptr(models.RSVPConfirmed),
		Notes:        models.Ptr("vegetarian"),
		ResponseDate: at(t1),
		Source:       models.SourceGuestLink,
	}

	inOrder, _ := Resolve(baseGuest(), u1, now)
	inOrder, _ = Resolve(inOrder, u2, now)

	reversed, _ := Resolve(baseGuest(), u2, now)
	reversed, _ = Resolve(reversed, u1, now)

	assert.Equal(t, inOrder.RSVPStatus, reversed.RSVPStatus)
	assert.Equal(t, inOrder.MessageStatus, reversed.MessageStatus)
	assert.Equal(t, inOrder.Notes, reversed.Notes)
	assert.Equal(t, models.RSVPConfirmed, reversed.RSVPStatus)
	assert.Equal(t, models.MessageSent, reversed.MessageStatus)
	assert.True(t, inOrder.ResponseDate.Equal(reversed.ResponseDate.Time))
	assert.Equal(t, inOrder.Source, reversed.Source)
}

func TestResolve_GuestCountChangeIsFreshWrite(t *testing.T) {
	current := baseGuest()
	current.ResponseDate = models.At(t1)

	got, outcome := Resolve(current, models.GuestUpdate{
		GuestCount:   models.Ptr(5),
		ResponseDate: at(t0),
	}, now)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, 5, got.GuestCount)
	assert.True(t, got.ResponseDate.Equal(now))
	assert.Equal(t, models.SourceManual, got.Source)

	// a poll returning the backend copy stamped with the webhook time
	// cannot revert it
	remote := baseGuest()
	remote.ResponseDate = models.At(t1)
	remote.Source = models.SourceWebhook

	got, _ = Merge(got, remote)
	assert.Equal(t, 5, got.GuestCount)
	assert.Equal(t, models.SourceManual, got.Source)
}

func TestResolve_UnchangedGuestCountFollowsTimestamps(t *testing.T) {
	current := baseGuest()
	current.ResponseDate = models.At(t1)

	_, outcome := Resolve(current, models.GuestUpdate{
		GuestCount:   models.Ptr(3),
		ResponseDate: at(t0),
		Source:       models.SourceWebhook,
	}, now)

	assert.Equal(t, ConflictSkipped, outcome)
}

func TestResolve_EmptyUpdateIsNoOp(t *testing.T) {
	current := baseGuest()
	got, outcome := Resolve(current, models.GuestUpdate{Source: models.SourceWebhook}, now)

	assert.Equal(t, NoOp, outcome)
	assert.Equal(t, current, got)
}

func TestResolve_DoesNotMutateCurrent(t *testing.T) {
	current := baseGuest()
	current.Clocks = map[models.Field]time.Time{models.FieldNotes: t0}

	_, _ = Resolve(current, models.GuestUpdate{Notes: models.Ptr("x"), ResponseDate: at(t1)}, now)

	assert.Len(t, current.Clocks, 1)
	assert.Equal(t, "", current.Notes)
}

func TestMerge_RemoteOlderFieldsDoNotOverwriteLocal(t *testing.T) {
	local, _ := Resolve(baseGuest(), models.GuestUpdate{
		RSVPStatus:   models.Ptr(models.RSVPConfirmed),
		ResponseDate: at(t1),
		Source:       models.SourceManual,
	}, now)

	remote := baseGuest()
	remote.RSVPStatus = models.RSVPPending
	remote.MessageStatus = models.MessageDelivered
	remote.ResponseDate = models.At(t0)
	remote.Source = models.SourceWebhook

	got, outcome := Merge(local, remote)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, models.RSVPConfirmed, got.RSVPStatus)
	assert.Equal(t, models.SourceManual, got.Source)
	assert.True(t, got.ResponseDate.Equal(t1))
}

func TestMerge_NewerRemoteWins(t *testing.T) {
	local := baseGuest()
	local.ResponseDate = models.At(t0)

	remote := baseGuest()
	remote.RSVPStatus = models.RSVPDeclined
	remote.ResponseDate = models.At(t1)
	remote.Source = models.SourceGuestLink

	got, outcome := Merge(local, remote)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, models.RSVPDeclined, got.RSVPStatus)
	assert.Equal(t, models.SourceGuestLink, got.Source)
}

func TestResolve_GuestCountStampDoesNotSpreadToOtherFields(t *testing.T) {
	current := baseGuest()
	current.RSVPStatus = models.RSVPConfirmed
	current.ResponseDate = models.At(t1)

	got, outcome := Resolve(current, models.GuestUpdate{
		GuestCount:   models.Ptr(5),
		RSVPStatus:   models.Ptr(models.RSVPDeclined),
		ResponseDate: at(t0),
		Source:       models.SourceWebhook,
	}, now)

	require.Equal(t, Applied, outcome)
	assert.Equal(t, 5, got.GuestCount)
	assert.True(t, got.ClockFor(models.FieldGuestCount).Equal(now))
	assert.Equal(t, models.RSVPConfirmed, got.RSVPStatus, "stale rsvp keeps losing")
	assert.True(t, got.ClockFor(models.FieldRSVPStatus).Equal(t1))
}
