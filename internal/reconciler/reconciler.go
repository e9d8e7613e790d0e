// Package reconciler keeps the locally-rendered countdown and guest count
// consistent with the backend's authoritative session record under periodic,
// unreliable polling.
package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

// StatusFetcher is the backend status endpoint. Satisfied by *api.Client.
type StatusFetcher interface {
	SessionStatus(ctx context.Context, sessionID string) (*session.StatusSnapshot, error)
}

// Update is a display-state change: the current countdown and listener
// count, or the terminal ended signal.
type Update struct {
	RemainingSeconds *int
	CurrentListeners int
	Ended            bool
}

// Reconciler runs two periodic actions bound to one session id: an
// authoritative status poll and a local one-second countdown tick. Both are
// driven by a single goroutine, so a poll's overwrite of the remaining time
// always wins over a tick scheduled for the same moment. The reconciler
// never touches the transport; it only reports.
type Reconciler struct {
	fetch        StatusFetcher
	sessionID    string
	pollInterval time.Duration
	tickInterval time.Duration

	mu        sync.Mutex
	remaining *int
	listeners int
	ended     bool

	updates chan Update
}

// New binds a reconciler to sessionID. Non-positive intervals fall back to
// the 5s/1s defaults.
func New(fetch StatusFetcher, sessionID string, pollInterval, tickInterval time.Duration) *Reconciler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Reconciler{
		fetch:        fetch,
		sessionID:    sessionID,
		pollInterval: pollInterval,
		tickInterval: tickInterval,
		updates:      make(chan Update, 32),
	}
}

// Updates delivers display-state changes. The terminal Ended update is
// always delivered; intermediate updates may be dropped under backpressure.
func (r *Reconciler) Updates() <-chan Update {
	return r.updates
}

// Snapshot returns the current display state.
func (r *Reconciler) Snapshot() (remaining *int, listeners int, ended bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyRemaining(r.remaining), r.listeners, r.ended
}

// Run polls and ticks until the context is cancelled or the session ends.
// Both loops stop together; a cancelled reconciler never fires again.
func (r *Reconciler) Run(ctx context.Context) {
	pollTicker := time.NewTicker(r.pollInterval)
	defer pollTicker.Stop()
	tickTicker := time.NewTicker(r.tickInterval)
	defer tickTicker.Stop()

	// Initial poll so the display does not sit on placeholders for a
	// full poll interval.
	if r.poll(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			if r.poll(ctx) {
				return
			}
		case <-tickTicker.C:
			r.tick()
		}
	}
}

// poll fetches the authoritative snapshot and overwrites local state
// wholesale. Reports true when the session ended; the ended signal fires at
// most once even if a stale in-flight poll reports inactive again.
func (r *Reconciler) poll(ctx context.Context) bool {
	snap, err := r.fetch.SessionStatus(ctx, r.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("reconciler: status poll failed for %s, keeping last state: %v", r.sessionID, err)
		}
		return false
	}

	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return false
	}
	r.listeners = snap.CurrentListeners
	r.remaining = copyRemaining(snap.RemainingSeconds)
	ended := !snap.IsActive
	if ended {
		r.ended = true
	}
	u := Update{
		RemainingSeconds: copyRemaining(r.remaining),
		CurrentListeners: r.listeners,
		Ended:            ended,
	}
	r.mu.Unlock()

	r.publish(u)
	return ended
}

// tick decrements the free-running countdown, clamped at zero. A countdown
// reaching zero locally does not end the session; only a poll confirming
// inactivity does.
func (r *Reconciler) tick() {
	r.mu.Lock()
	if r.ended || r.remaining == nil {
		r.mu.Unlock()
		return
	}
	if *r.remaining > 0 {
		v := *r.remaining - 1
		r.remaining = &v
	}
	u := Update{
		RemainingSeconds: copyRemaining(r.remaining),
		CurrentListeners: r.listeners,
	}
	r.mu.Unlock()

	r.publish(u)
}

// publish never blocks the loop. If the buffer is full, a stale update is
// evicted so a terminal Ended update always lands.
func (r *Reconciler) publish(u Update) {
	select {
	case r.updates <- u:
		return
	default:
	}
	if !u.Ended {
		return
	}
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- u:
	default:
	}
}

func copyRemaining(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
