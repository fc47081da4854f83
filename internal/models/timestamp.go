package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Timestamp is a time that tolerates malformed input. Anything that cannot
// be parsed decodes as the zero time instead of failing the whole document.
type Timestamp struct {
	time.Time
}

// At wraps t.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02.01.2006 15:04",
	"02.01.2006",
}

// ParseTime parses s with the layouts accepted from the backend and from
// spreadsheets. It returns the zero time when nothing matches.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// EpochMillis returns milliseconds since the epoch, 0 for the zero time.
func (t Timestamp) EpochMillis() int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Time = ParseTime(s)
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err == nil && ms > 0 {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	t.Time = time.Time{}
	return nil
}
