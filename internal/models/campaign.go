package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Campaign is an outbound message template sent to the guest list
type Campaign struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Template  string         `json:"template"`
	Status    CampaignStatus `json:"status"`
	SentCount int            `json:"sent_count"`
	ImageURL  string         `json:"image_url,omitempty"`
}

type CampaignStatus string

const (
	CampaignDraft   CampaignStatus = "draft"
	CampaignSending CampaignStatus = "sending"
	CampaignSent    CampaignStatus = "sent"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Render substitutes {{token}} placeholders with guest and event values.
// Unknown tokens are left as written.
func (c Campaign) Render(g Guest, e Event) string {
	values := map[string]string{
		"name":        g.FullName(),
		"first_name":  g.FirstName,
		"last_name":   g.LastName,
		"guest_count": strconv.Itoa(g.GuestCount),
		"date":        e.Date,
		"venue":       e.Venue,
		"bride":       e.BrideName,
		"groom":       e.GroomName,
	}
	return tokenPattern.ReplaceAllStringFunc(c.Template, func(m string) string {
		key := strings.TrimSpace(tokenPattern.FindStringSubmatch(m)[1])
		if v, ok := values[key]; ok {
			return v
		}
		return m
	})
}
