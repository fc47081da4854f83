package engine

import (
	"sync"
	"time"

	"wedding-sync/internal/fingerprint"
	"wedding-sync/internal/models"
)

// Change tells subscribers that an event's content changed.
type Change struct {
	EventID     string
	Fingerprint string
}

// notifier fans out Changes, suppressing any whose fingerprint equals the
// last one published for the same event. Snapshots older than the last
// published one are dropped, so a publish that lost the race to a newer
// write cannot roll subscribers back.
type notifier struct {
	mu   sync.Mutex
	last map[string]published
	subs map[int]chan Change
	next int
}

type published struct {
	fingerprint string
	updatedAt   time.Time
}

func newNotifier() *notifier {
	return &notifier{
		last: make(map[string]published),
		subs: make(map[int]chan Change),
	}
}

// seed records e's fingerprint without notifying anyone.
func (n *notifier) seed(e models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last[e.ID] = published{fingerprint.Event(e), e.UpdatedAt.Time}
}

// publish notifies subscribers if e changed since the last publish.
// Slow subscribers miss intermediate changes rather than block the engine.
func (n *notifier) publish(e models.Event) bool {
	fp := fingerprint.Event(e)

	n.mu.Lock()
	defer n.mu.Unlock()

	prev, ok := n.last[e.ID]
	if ok && (prev.fingerprint == fp || e.UpdatedAt.Before(prev.updatedAt)) {
		return false
	}
	n.last[e.ID] = published{fp, e.UpdatedAt.Time}

	change := Change{EventID: e.ID, Fingerprint: fp}
	for _, ch := range n.subs {
		select {
		case ch <- change:
		default:
		}
	}
	return true
}

func (n *notifier) forget(eventID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.last, eventID)
}

func (n *notifier) subscribe(buffer int) (<-chan Change, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan Change, buffer)
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
}
