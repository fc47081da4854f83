package models

import "time"

// PendingUpdate is a webhook-originated change queued on the backend until
// it is applied to the guest it targets.
type PendingUpdate struct {
	ID            int64         `json:"id"`
	EventID       string        `json:"event_id,omitempty"`
	GuestID       string        `json:"guest_id,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Kind          UpdateKind    `json:"kind"`
	MessageStatus MessageStatus `json:"message_status,omitempty"`
	RSVPStatus    RSVPStatus    `json:"rsvp_status,omitempty"`
	GuestCount    int           `json:"guest_count,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
	Source        Source        `json:"source"`
	Attempts      int           `json:"attempts"`
	LastError     string        `json:"last_error,omitempty"`
	State         PendingState  `json:"state"`
}

type UpdateKind string

const (
	KindMessageStatus UpdateKind = "message_status"
	KindRSVP          UpdateKind = "rsvp"
)

type PendingState string

const (
	PendingQueued    PendingState = "pending"
	PendingProcessed PendingState = "processed"
	PendingFailed    PendingState = "failed"
)

// DrainResult summarises one pass over the pending queue.
type DrainResult struct {
	Processed        int             `json:"processed"`
	Failed           int             `json:"failed"`
	Remaining        int             `json:"remaining"`
	ProcessedUpdates []PendingUpdate `json:"processedUpdates,omitempty"`
}

// Update converts the queued change into a guest update stamped with the
// time the provider observed it.
func (p PendingUpdate) Update() GuestUpdate {
	u := GuestUpdate{
		ResponseDate: Ptr(At(p.OccurredAt)),
		Source:       p.Source,
	}
	switch p.Kind {
	case KindMessageStatus:
		u.MessageStatus = Ptr(p.MessageStatus)
		switch p.MessageStatus {
		case MessageSent:
			u.MessageSentDate = Ptr(At(p.OccurredAt))
		case MessageDelivered:
			u.MessageDeliveredDate = Ptr(At(p.OccurredAt))
		case MessageFailed:
			u.MessageFailedDate = Ptr(At(p.OccurredAt))
		}
	case KindRSVP:
		u.RSVPStatus = Ptr(p.RSVPStatus)
		if p.GuestCount > 0 {
			u.GuestCount = Ptr(p.GuestCount)
		}
	}
	return u
}
