package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/gateway"
	"wedding-sync/internal/models"
	"wedding-sync/internal/seating"
)

var now = time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)

func testEvent() models.Event {
	dana := models.NewGuest("g1")
	dana.FirstName, dana.LastName, dana.Phone = "Dana", "Cohen", "052-1234567"
	dana.GuestCount = 2
	dana.ResponseDate = models.At(now.Add(-48 * time.Hour))

	avi := models.NewGuest("g2")
	avi.FirstName, avi.Phone = "Avi", "0527654321"
	avi.GuestCount = 3
	avi.ResponseDate = models.At(now.Add(-48 * time.Hour))

	noPhone := models.NewGuest("g3")
	noPhone.FirstName = "Grandma"
	noPhone.ResponseDate = models.At(now.Add(-48 * time.Hour))

	return models.Event{
		ID:        "e1",
		Date:      "2026-06-01",
		Venue:     "Garden",
		BrideName: "Noa",
		GroomName: "Yoni",
		UpdatedAt: models.At(now.Add(-48 * time.Hour)),
		Guests:    []models.Guest{dana, avi, noPhone},
		Tables: []models.Table{
			{ID: "t1", Number: 1, Capacity: 4},
			{ID: "t2", Number: 2, Capacity: 10},
		},
	}
}

func newService(t *testing.T, sender Sender) *Service {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "backend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, sender, Config{MaxAttempts: 2}, zerolog.Nop())
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.PutEvent(context.Background(), testEvent()))
	return svc
}

func guestOf(t *testing.T, svc *Service, id string) models.Guest {
	t.Helper()
	ev, err := svc.store.Event(context.Background(), "e1")
	require.NoError(t, err)
	i := ev.GuestIndex(id)
	require.GreaterOrEqual(t, i, 0)
	return ev.Guests[i]
}

func TestStore_UpdateEventRollsBackOnError(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.store.UpdateEvent(ctx, "e1", func(ev *models.Event) error {
		ev.Venue = "Beach"
		return errors.New("boom")
	})
	require.Error(t, err)

	ev, err := svc.store.Event(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Garden", ev.Venue)

	_, err = svc.store.Event(ctx, "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestStore_EventsKeepInsertionOrder(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.PutEvent(ctx, models.Event{ID: "a-second"}))
	require.NoError(t, svc.PutEvent(ctx, testEvent()))

	events, err := svc.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)
	assert.Equal(t, "a-second", events[1].ID)
}

func TestPatchGuest_FieldLevelAndStaleWritesLose(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	g, err := svc.PatchGuest(ctx, "e1", "g1", models.GuestUpdate{MessageStatus: models.Ptr(models.MessageDelivered)})
	require.NoError(t, err)
	assert.Equal(t, models.MessageDelivered, g.MessageStatus)
	assert.Equal(t, 2, g.GuestCount)

	stale := models.At(now.Add(-time.Hour))
	g, err = svc.PatchGuest(ctx, "e1", "g1", models.GuestUpdate{
		MessageStatus: models.Ptr(models.MessageFailed),
		ResponseDate:  &stale,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageDelivered, g.MessageStatus)

	_, err = svc.PatchGuest(ctx, "e1", "g1", models.GuestUpdate{TableID: models.Ptr("t1")})
	assert.True(t, errs.IsValidation(err))
	_, err = svc.PatchGuest(ctx, "e1", "nobody", models.GuestUpdate{Notes: models.Ptr("x")})
	assert.True(t, errs.IsNotFound(err))
}

func TestAssignTable(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	g, err := svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g1", TableID: "t1", Action: "assign"})
	require.NoError(t, err)
	assert.Equal(t, "t1", g.TableID)

	_, err = svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g2", TableID: "t1", Action: "assign"})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g1", TableID: "t2", Action: "move"})
	require.NoError(t, err)
	_, err = svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g1", Action: "remove"})
	require.NoError(t, err)

	ev, err := svc.store.Event(ctx, "e1")
	require.NoError(t, err)
	require.NoError(t, seating.Check(ev))
	assert.Empty(t, ev.Guests[0].TableID)

	_, err = svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g1", TableID: "t1", Action: "swap"})
	assert.True(t, errs.IsValidation(err))
}

func TestDeleteGuest(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g2", TableID: "t2", Action: "assign"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteGuest(ctx, "e1", "g2"))

	ev, _ := svc.store.Event(ctx, "e1")
	assert.Equal(t, -1, ev.GuestIndex("g2"))
	require.NoError(t, seating.Check(ev))
	assert.True(t, errs.IsNotFound(svc.DeleteGuest(ctx, "e1", "g2")))
}

func TestProcessAll_MatchesByPhoneAndIsIdempotent(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, models.WebhookPayload{
		Phone:      "+972 52-123-4567",
		RSVPStatus: models.RSVPConfirmed,
		GuestCount: 4,
		Timestamp:  models.At(now.Add(-time.Minute)),
	})
	require.NoError(t, err)
	n, err := svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := svc.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Remaining)
	require.Len(t, res.ProcessedUpdates, 1)
	assert.Equal(t, "g1", res.ProcessedUpdates[0].GuestID)

	g := guestOf(t, svc, "g1")
	assert.Equal(t, models.RSVPConfirmed, g.RSVPStatus)
	assert.Equal(t, 4, g.GuestCount)
	assert.Equal(t, models.SourceWebhook, g.Source)

	res, err = svc.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Remaining)
}

func TestProcessAll_BoundedRetry(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, models.WebhookPayload{Phone: "0500000000", MessageStatus: models.MessageDelivered})
	require.NoError(t, err)

	res, err := svc.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Remaining)

	res, err = svc.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Remaining)

	res, err = svc.ProcessAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Processed)
}

func TestSyncUpdates_OnlyToday(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, models.WebhookPayload{GuestID: "g1", MessageStatus: models.MessageDelivered, Timestamp: models.At(now.Add(-30 * time.Hour))})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, models.WebhookPayload{GuestID: "g2", MessageStatus: models.MessageDelivered, Timestamp: models.At(now.Add(-2 * time.Hour))})
	require.NoError(t, err)

	res, err := svc.ProcessAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)

	res, err = svc.SyncUpdates(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	res, err = svc.SyncUpdates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, models.MessageDelivered, guestOf(t, svc, "g2").MessageStatus)
}

func TestSyncUpdates_ReplayKeepsLaterManualGuestCount(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, models.WebhookPayload{
		GuestID:    "g1",
		RSVPStatus: models.RSVPConfirmed,
		GuestCount: 4,
		Timestamp:  models.At(now.Add(-time.Minute)),
	})
	require.NoError(t, err)
	res, err := svc.ProcessAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 4, guestOf(t, svc, "g1").GuestCount)

	svc.now = func() time.Time { return now.Add(time.Minute) }
	g, err := svc.PatchGuest(ctx, "e1", "g1", models.GuestUpdate{GuestCount: models.Ptr(2), Source: models.SourceManual})
	require.NoError(t, err)
	require.Equal(t, 2, g.GuestCount)

	svc.now = func() time.Time { return now.Add(2 * time.Minute) }
	res, err = svc.SyncUpdates(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	g = guestOf(t, svc, "g1")
	assert.Equal(t, 2, g.GuestCount)
	assert.Equal(t, models.RSVPConfirmed, g.RSVPStatus)
	assert.Equal(t, models.SourceManual, g.Source)
}

func TestEnqueue_Validation(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, models.WebhookPayload{MessageStatus: models.MessageSent})
	assert.True(t, errs.IsValidation(err))
	_, err = svc.Enqueue(ctx, models.WebhookPayload{GuestID: "g1"})
	assert.True(t, errs.IsValidation(err))
	_, err = svc.Enqueue(ctx, models.WebhookPayload{GuestID: "g1", RSVPStatus: "perhaps"})
	assert.True(t, errs.IsValidation(err))
}

type fakeSender struct {
	mu   sync.Mutex
	fail map[string]bool
	sent map[string]string
}

func (f *fakeSender) Send(_ context.Context, phone, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[phone] {
		return errors.New("not on whatsapp")
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[phone] = text
	return nil
}

func TestSendCampaign(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"972527654321": true}}
	svc := newService(t, sender)
	ctx := context.Background()

	campaigns, err := svc.RecreateCampaigns(ctx, "e1", []models.Campaign{{
		Name:     "Invitation",
		Template: "Hi {{first_name}}, {{bride}} & {{groom}} invite you to {{venue}}",
	}})
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.NotEmpty(t, campaigns[0].ID)
	assert.Equal(t, models.CampaignDraft, campaigns[0].Status)

	res, err := svc.SendCampaign(ctx, "e1", campaigns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Hi Dana, Noa & Yoni invite you to Garden", sender.sent["972521234567"])

	assert.Equal(t, models.MessageSent, guestOf(t, svc, "g1").MessageStatus)
	assert.Equal(t, models.MessageFailed, guestOf(t, svc, "g2").MessageStatus)
	assert.Equal(t, models.MessageNotSent, guestOf(t, svc, "g3").MessageStatus)

	ev, _ := svc.store.Event(ctx, "e1")
	assert.Equal(t, 1, ev.Campaigns[0].SentCount)
	assert.Equal(t, models.CampaignSent, ev.Campaigns[0].Status)

	_, err = svc.SendCampaign(ctx, "e1", "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestSendCampaign_RequiresSender(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.SendCampaign(context.Background(), "e1", "c1")
	assert.True(t, errs.IsValidation(err))
}

func TestHandler_GatewayRoundTrip(t *testing.T) {
	svc := newService(t, nil)
	srv := httptest.NewServer(Handler(svc, zerolog.Nop()))
	defer srv.Close()

	gw, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL, MaxAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	events, err := gw.FetchEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Guests, 3)

	require.NoError(t, gw.PatchGuest(ctx, "e1", "g2", models.GuestUpdate{Notes: models.Ptr("vegan")}))
	assert.Equal(t, "vegan", guestOf(t, svc, "g2").Notes)

	require.NoError(t, gw.AssignTable(ctx, "e1", seating.Change{GuestID: "g2", To: "t2", Action: seating.ActionAssign}))
	assert.Equal(t, "t2", guestOf(t, svc, "g2").TableID)

	created, err := gw.CreateGuest(ctx, "e1", models.Guest{ID: "g9", FirstName: "Tal", GuestCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "g9", created.ID)
	require.NoError(t, gw.DeleteGuest(ctx, "e1", "g9"))

	err = gw.PatchGuest(ctx, "e1", "nobody", models.GuestUpdate{Notes: models.Ptr("x")})
	assert.True(t, errs.IsNotFound(err))
	err = gw.AssignTable(ctx, "e1", seating.Change{GuestID: "g1", To: "t9", Action: seating.ActionAssign})
	assert.True(t, errs.IsNotFound(err))

	body, _ := json.Marshal(models.WebhookPayload{GuestID: "g1", MessageStatus: models.MessageDelivered})
	resp, err := http.Post(srv.URL+"/api/whatsapp/webhook", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	n, err := gw.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := gw.ProcessAllUpdates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, models.MessageDelivered, guestOf(t, svc, "g1").MessageStatus)

	res, err = gw.SyncUpdates(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	campaigns, err := gw.RecreateCampaigns(ctx, "e1", []models.Campaign{{Name: "Reminder", Template: "See you {{date}}"}})
	require.NoError(t, err)
	require.Len(t, campaigns, 1)

	ev := events[0]
	ev.Venue = "Rooftop"
	ev.UpdatedAt = models.At(now.Add(time.Hour))
	require.NoError(t, gw.PushEvent(ctx, ev))
	stored, _ := svc.store.Event(ctx, "e1")
	assert.Equal(t, "Rooftop", stored.Venue)
	assert.Equal(t, "vegan", guestOf(t, svc, "g2").Notes)
}

func TestPutEvent_StalePushKeepsNewerGuestState(t *testing.T) {
	svc := newService(t, nil)
	srv := httptest.NewServer(Handler(svc, zerolog.Nop()))
	defer srv.Close()
	gw, err := gateway.NewClient(gateway.Config{BaseURL: srv.URL, MaxAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Enqueue(ctx, models.WebhookPayload{
		GuestID:    "g1",
		RSVPStatus: models.RSVPConfirmed,
		Timestamp:  models.At(now.Add(-time.Minute)),
	})
	require.NoError(t, err)
	_, err = svc.ProcessAll(ctx)
	require.NoError(t, err)
	_, err = svc.AssignTable(ctx, "e1", models.TableAssignment{GuestID: "g2", TableID: "t2", Action: "assign"})
	require.NoError(t, err)

	stale := testEvent()
	stale.Venue = "Old hall"
	stale.Guests[2].Notes = "wheelchair"
	stale.Guests[2].ResponseDate = models.At(now.Add(time.Minute))
	newcomer := models.NewGuest("g4")
	newcomer.FirstName, newcomer.GuestCount = "Tal", 1
	newcomer.ResponseDate = models.At(now.Add(-48 * time.Hour))
	stale.Guests = append(stale.Guests[:0:0], stale.Guests[0], stale.Guests[2], newcomer)
	require.NoError(t, gw.PushEvent(ctx, stale))

	g1 := guestOf(t, svc, "g1")
	assert.Equal(t, models.RSVPConfirmed, g1.RSVPStatus)
	assert.Equal(t, models.SourceWebhook, g1.Source)
	assert.Equal(t, "t2", guestOf(t, svc, "g2").TableID, "guests missing from the push are kept")
	assert.Equal(t, "wheelchair", guestOf(t, svc, "g3").Notes, "newer pushed fields win")
	assert.Equal(t, "Tal", guestOf(t, svc, "g4").FirstName)

	ev, err := svc.store.Event(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Garden", ev.Venue)
	assert.Len(t, ev.Guests, 4)
	require.NoError(t, seating.Check(ev))
}

func TestHandler_BadInput(t *testing.T) {
	svc := newService(t, nil)
	h := Handler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/whatsapp/sync-updates?onlyToday=maybe", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPatch, "/api/events/e1/guests/g1", bytes.NewReader([]byte("{")))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/events/e1", bytes.NewReader([]byte(`{"id":"other"}`)))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
