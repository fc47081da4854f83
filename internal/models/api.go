package models

// TableAssignment is the body of POST table-assignment.
type TableAssignment struct {
	GuestID string `json:"guest_id"`
	TableID string `json:"table_id,omitempty"`
	Action  string `json:"action"`
}

// PendingCount is the body returned by GET pending-updates-count.
type PendingCount struct {
	Count int `json:"count"`
}

// CampaignSet is the body of POST campaigns/recreate.
type CampaignSet struct {
	Campaigns []Campaign `json:"campaigns"`
}

// SendResult summarises a bulk campaign send.
type SendResult struct {
	CampaignID string `json:"campaign_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

// WebhookPayload is a delivery or response notification from the
// messaging provider.
type WebhookPayload struct {
	EventID       string        `json:"event_id,omitempty"`
	GuestID       string        `json:"guest_id,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	MessageStatus MessageStatus `json:"message_status,omitempty"`
	RSVPStatus    RSVPStatus    `json:"rsvp_status,omitempty"`
	GuestCount    int           `json:"guest_count,omitempty"`
	Timestamp     Timestamp     `json:"timestamp"`
	Source        Source        `json:"source,omitempty"`
}

// APIError is the JSON error body returned by the backend.
type APIError struct {
	Error string `json:"error"`
}
