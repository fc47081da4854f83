// Package fingerprint computes stable digests of guests and events so that
// callers can tell "content changed" apart from "a new copy was made".
//
// Digests are SHA-256 over a domain prefix, a NUL separator and the
// NFC-normalized field values, hex encoded. Field clocks are not part of
// the digest.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"wedding-sync/internal/models"
)

const (
	domainGuest  = "wedding-sync/guest/v1"
	domainEvent  = "wedding-sync/event/v1"
	domainEvents = "wedding-sync/events/v1"
)

// Guest returns the digest of the guest's observable fields.
func Guest(g models.Guest) string {
	h := newHash(domainGuest)
	writeFields(h,
		g.ID,
		string(g.RSVPStatus),
		strconv.Itoa(g.GuestCount),
		string(g.Attendance),
		g.TableID,
		g.Notes,
		strconv.FormatInt(g.ResponseDate.EpochMillis(), 10),
		string(g.MessageStatus),
		g.FirstName,
		g.LastName,
		g.Phone,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Event returns the digest of the event's UpdatedAt and all guest digests
// in roster order.
func Event(e models.Event) string {
	h := newHash(domainEvent)
	writeFields(h, e.ID, strconv.FormatInt(e.UpdatedAt.EpochMillis(), 10))
	for _, g := range e.Guests {
		writeFields(h, Guest(g))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Events returns the digest of a whole event set.
func Events(events []models.Event) string {
	h := newHash(domainEvents)
	for _, e := range events {
		writeFields(h, Event(e))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func newHash(domain string) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return h
}

// writeFields length-prefixes each value so adjacent fields cannot run
// into each other.
func writeFields(h hash.Hash, values ...string) {
	for _, v := range values {
		v = norm.NFC.String(v)
		h.Write([]byte(strconv.Itoa(len(v))))
		h.Write([]byte{':'})
		h.Write([]byte(v))
	}
}
