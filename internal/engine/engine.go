// Package engine reconciles guest state between the operator's local
// cache, the durable backend and the messaging provider's update queue.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-sync/internal/gateway"
	"wedding-sync/internal/models"
	"wedding-sync/internal/storage"
)

type Config struct {
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	DefaultCampaigns []models.Campaign

	// Clock and NewID are replaceable for tests.
	Clock func() time.Time
	NewID func() string
}

// Engine owns every guest mutation. Reads are served from the local
// store; writes are applied locally first and persisted in the background,
// except creations, deletions and seating changes which wait for the
// backend.
type Engine struct {
	store  *storage.Storage
	gw     gateway.Gateway
	cfg    Config
	log    zerolog.Logger
	notify *notifier

	campaigns *Marker
	synced    *Marker
	polls     *Marker

	// Guests created or deleted locally, keyed by guest id, with the time
	// of the change. A refresh whose fetch started earlier must not undo
	// them.
	created    sync.Map
	tombstones sync.Map

	unsyncedMu sync.Mutex
	unsynced   map[string][]pendingPatch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingPatch struct {
	guestID string
	update  models.GuestUpdate
}

// New creates an engine over store. Events already in the store are the
// baseline for change notifications.
func New(store *storage.Storage, gw gateway.Gateway, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		gw:        gw,
		cfg:       cfg,
		log:       logger.With().Str("component", "Engine").Logger(),
		notify:    newNotifier(),
		campaigns: NewMarker(),
		synced:    NewMarker(),
		polls:     NewMarker(),
		unsynced:  make(map[string][]pendingPatch),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, ev := range store.Events() {
		e.notify.seed(ev)
	}
	return e
}

// Close stops every poller and waits for background persistence.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	e.save()
}

// Subscribe returns a channel of change notifications and a function that
// ends the subscription.
func (e *Engine) Subscribe() (<-chan Change, func()) {
	return e.notify.subscribe(16)
}

func (e *Engine) Events() models.EventSet {
	return e.store.Events()
}

func (e *Engine) Event(id string) (models.Event, error) {
	return e.store.Event(id)
}

func (e *Engine) Current() (models.Event, error) {
	return e.store.Current()
}

func (e *Engine) now() time.Time {
	return e.cfg.Clock()
}

func (e *Engine) save() {
	if err := e.store.Save(); err != nil {
		e.log.Error().Err(err).Msg("Failed to save cache")
	}
}

// withTimeout bounds a remote call by RequestTimeout.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.RequestTimeout)
}

// softFail reports whether err should be swallowed: deadline overruns end
// a refresh or drain with no effect instead of an error.
func softFail(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// PendingCount asks the backend how many provider updates are queued.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	return e.gw.PendingCount(ctx)
}
