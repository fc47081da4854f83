package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-sync/internal/errs"
	"wedding-sync/internal/models"
	"wedding-sync/internal/seating"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:      srv.URL,
		MaxAttempts:  3,
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchEvents(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/events", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{{
			"id":     "e1",
			"guests": []map[string]any{{"id": "g1", "response_date": "garbage"}},
		}})
	}))

	events, err := c.FetchEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "g1", events[0].Guests[0].ID)
	assert.True(t, events[0].Guests[0].ResponseDate.IsZero())
}

func TestPatchGuest_SendsPartialBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/events/e1/guests/g1", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "confirmed", body["rsvp_status"])
		assert.NotContains(t, body, "guest_count")
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.PatchGuest(context.Background(), "e1", "g1", models.GuestUpdate{
		RSVPStatus: models.Ptr(models.RSVPConfirmed),
	})
	require.NoError(t, err)
}

func TestAssignTable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body models.TableAssignment
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, models.TableAssignment{GuestID: "g1", TableID: "B", Action: "move"}, body)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.AssignTable(context.Background(), "e1", seating.Change{GuestID: "g1", From: "A", To: "B", Action: seating.ActionMove})
	require.NoError(t, err)
}

func TestSyncUpdates_Query(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("onlyToday"))
		writeJSON(w, http.StatusOK, models.DrainResult{Processed: 2, Remaining: 1})
	}))

	res, err := c.SyncUpdates(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Remaining)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, errs.IsNotFound},
		{http.StatusBadRequest, errs.IsValidation},
		{http.StatusUnprocessableEntity, errs.IsValidation},
		{http.StatusInternalServerError, errs.IsTransient},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, models.APIError{Error: "nope"})
			}))
			err := c.DeleteGuest(context.Background(), "e1", "g1")
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected kind for %v", err)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, models.PendingCount{Count: 4})
	}))

	n, err := c.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryIsBounded(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.ProcessAllUpdates(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryValidation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: "bad"})
	}))

	_, err := c.CreateGuest(context.Background(), "e1", models.NewGuest("g1"))
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestContextCancelIsTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchEvents(ctx)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
}
