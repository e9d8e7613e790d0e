// Package tour sequences the live-session lifecycle for one device: license
// activation, session creation or PIN join, the active tour with transport
// and reconciler running concurrently, and cleanup on every exit path.
package tour

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/api"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/reconciler"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/transport"
)

// Screen is the orchestrator's navigation state.
type Screen int

const (
	ScreenHome Screen = iota
	ScreenActivateLicense
	ScreenGuideDashboard
	ScreenGuideTour
	ScreenJoinPin
	ScreenGuestTour
)

var screenNames = map[Screen]string{
	ScreenHome:            "home",
	ScreenActivateLicense: "activate_license",
	ScreenGuideDashboard:  "guide_dashboard",
	ScreenGuideTour:       "guide_tour",
	ScreenJoinPin:         "join_pin",
	ScreenGuestTour:       "guest_tour",
}

func (s Screen) String() string {
	if n, ok := screenNames[s]; ok {
		return n
	}
	return "unknown"
}

// ErrBadTransition is returned when an operation is requested from the wrong
// screen.
var ErrBadTransition = errors.New("operation not valid from this screen")

// Backend is the session service. Satisfied by *api.Client.
type Backend interface {
	ActivateLicense(ctx context.Context, code string) (*session.License, error)
	StartSession(ctx context.Context, licenseCode string, maxListeners int) (*api.StartSessionResponse, error)
	EndSession(ctx context.Context, sessionID string) error
	JoinPin(ctx context.Context, pin, displayName string) (*api.JoinPinResponse, error)
	LeaveListener(ctx context.Context, listenerID string) error
	SessionStatus(ctx context.Context, sessionID string) (*session.StatusSnapshot, error)
}

// Transport is the audio transport controller. Satisfied by
// *transport.Controller.
type Transport interface {
	StartBroadcast(ctx context.Context, channel string) error
	StartListen(ctx context.Context, channel string) error
	Stop()
	State() transport.State
}

// notifyTimeout bounds the best-effort end/leave notifications issued from
// the remote-end path, which has no caller context.
const notifyTimeout = 5 * time.Second

// Orchestrator is the top-level state machine. All navigation and tour
// operations go through it; the transport engine and the reconciler never
// outlive the tour that started them.
type Orchestrator struct {
	backend      Backend
	transport    Transport
	pollInterval time.Duration
	tickInterval time.Duration

	mu        sync.Mutex
	screen    Screen
	license   *session.License
	identity  *session.Identity
	recCancel context.CancelFunc

	updates chan reconciler.Update
}

// New creates an orchestrator at the home screen.
func New(backend Backend, tr Transport, pollInterval, tickInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		backend:      backend,
		transport:    tr,
		pollInterval: pollInterval,
		tickInterval: tickInterval,
		updates:      make(chan reconciler.Update, 32),
	}
}

// Screen returns the current navigation state.
func (o *Orchestrator) Screen() Screen {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.screen
}

// License returns the active license, nil when none is held.
func (o *Orchestrator) License() *session.License {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.license == nil {
		return nil
	}
	lic := *o.license
	return &lic
}

// Identity returns the bound session identity, nil outside a tour.
func (o *Orchestrator) Identity() *session.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.identity == nil {
		return nil
	}
	id := *o.identity
	return &id
}

// Updates delivers reconciler display updates for the current tour. The
// channel is stable across tours; an Ended update means cleanup already ran
// and the orchestrator is back home.
func (o *Orchestrator) Updates() <-chan reconciler.Update {
	return o.updates
}

// OpenGuidePath navigates from home toward a guide tour: straight to the
// dashboard when a license is already held, otherwise to activation.
func (o *Orchestrator) OpenGuidePath() (Screen, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.screen != ScreenHome {
		return o.screen, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	if o.license != nil {
		o.screen = ScreenGuideDashboard
	} else {
		o.screen = ScreenActivateLicense
	}
	return o.screen, nil
}

// OpenGuestPath navigates from home to the PIN entry screen.
func (o *Orchestrator) OpenGuestPath() (Screen, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.screen != ScreenHome {
		return o.screen, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	o.screen = ScreenJoinPin
	return o.screen, nil
}

// Back returns to home from a pre-tour screen. A held license survives;
// only ending a tour consumes it.
func (o *Orchestrator) Back() (Screen, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.screen {
	case ScreenActivateLicense, ScreenGuideDashboard, ScreenJoinPin:
		o.screen = ScreenHome
		return o.screen, nil
	}
	return o.screen, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
}

// ActivateLicense validates a code with the backend and stores the returned
// capacity. On failure the state is unchanged so the user can retry inline.
func (o *Orchestrator) ActivateLicense(ctx context.Context, code string) (*session.License, error) {
	o.mu.Lock()
	if o.screen != ScreenActivateLicense {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	o.mu.Unlock()

	lic, err := o.backend.ActivateLicense(ctx, code)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.license = lic
	o.screen = ScreenGuideDashboard
	o.mu.Unlock()
	log.Printf("tour: license %s activated, up to %d guests", lic.Code, lic.MaxGuests)
	out := *lic
	return &out, nil
}

// StartTour allocates a session for the held license and enters the live
// tour as guide. The reconciler starts immediately; broadcasting starts only
// when the guide toggles it.
func (o *Orchestrator) StartTour(ctx context.Context) (*session.Identity, error) {
	o.mu.Lock()
	if o.screen != ScreenGuideDashboard || o.license == nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	lic := *o.license
	o.mu.Unlock()

	res, err := o.backend.StartSession(ctx, lic.Code, lic.MaxGuests)
	if err != nil {
		return nil, err
	}

	id := &session.Identity{Pin: res.Pin, SessionID: res.ID, Role: session.RoleGuide}
	o.bindTour(id, ScreenGuideTour)
	log.Printf("tour: started | pin=%s session=%s", id.Pin, id.SessionID)
	out := *id
	return &out, nil
}

// JoinTour submits a PIN and enters the live tour as guest.
func (o *Orchestrator) JoinTour(ctx context.Context, pin, displayName string) (*session.Identity, error) {
	o.mu.Lock()
	if o.screen != ScreenJoinPin {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	o.mu.Unlock()

	res, err := o.backend.JoinPin(ctx, pin, displayName)
	if err != nil {
		return nil, err
	}

	id := &session.Identity{Pin: pin, SessionID: res.SessionID, Role: session.RoleGuest, ListenerID: res.ID}
	o.bindTour(id, ScreenGuestTour)
	log.Printf("tour: joined | pin=%s session=%s listener=%s", id.Pin, id.SessionID, id.ListenerID)
	out := *id
	return &out, nil
}

// bindTour installs the identity and starts the reconciler bound to it. The
// reconciler and the update forwarder are cancelled as a unit when the tour
// ends by any path.
func (o *Orchestrator) bindTour(id *session.Identity, screen Screen) {
	rec := reconciler.New(o.backend, id.SessionID, o.pollInterval, o.tickInterval)
	ctx, cancel := context.WithCancel(context.Background())

	o.mu.Lock()
	o.identity = id
	o.recCancel = cancel
	o.screen = screen
	o.mu.Unlock()

	go rec.Run(ctx)
	go o.forward(ctx, rec)
}

// forward relays reconciler updates to the orchestrator's stable channel and
// funnels the remote-end signal into the single cleanup path.
func (o *Orchestrator) forward(ctx context.Context, rec *reconciler.Reconciler) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-rec.Updates():
			if u.Ended {
				o.remoteEnd()
			}
			select {
			case o.updates <- u:
			default:
				if u.Ended {
					// Evict a stale display update; the terminal
					// signal must reach the UI.
					select {
					case <-o.updates:
					default:
					}
					select {
					case o.updates <- u:
					default:
					}
				}
			}
			if u.Ended {
				return
			}
		}
	}
}

// EndTour closes the guide's tour: stop audio first, then best-effort
// end-session notification, then discard license and identity.
func (o *Orchestrator) EndTour(ctx context.Context) error {
	o.mu.Lock()
	if o.screen != ScreenGuideTour {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	o.mu.Unlock()
	o.finish(ctx, true)
	return nil
}

// LeaveTour closes the guest's tour: stop audio first, then best-effort
// leave notification with the listener id.
func (o *Orchestrator) LeaveTour(ctx context.Context) error {
	o.mu.Lock()
	if o.screen != ScreenGuestTour {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBadTransition, o.screen)
	}
	o.mu.Unlock()
	o.finish(ctx, true)
	return nil
}

// remoteEnd handles the reconciler's session-ended signal. Guests skip the
// leave notification: the backend already closed the session.
func (o *Orchestrator) remoteEnd() {
	o.mu.Lock()
	notify := o.identity != nil && o.identity.Role == session.RoleGuide
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	o.finish(ctx, notify)
}

// finish is the single cleanup point for every exit path. Idempotent:
// concurrent triggers (user action vs. remote end) collapse to one run.
// Audio stops before any network call, and stops even when the network call
// fails or is skipped.
func (o *Orchestrator) finish(ctx context.Context, notify bool) {
	o.mu.Lock()
	id := o.identity
	if id == nil {
		o.mu.Unlock()
		return
	}
	o.identity = nil
	cancel := o.recCancel
	o.recCancel = nil
	if id.Role == session.RoleGuide {
		// The license is consumed whether or not the backend hears
		// about the end; the next tour needs a fresh activation.
		o.license = nil
	}
	o.screen = ScreenHome
	o.mu.Unlock()

	o.transport.Stop()
	if cancel != nil {
		cancel()
	}

	if notify {
		switch {
		case id.Role == session.RoleGuide && id.SessionID != "":
			if err := o.backend.EndSession(ctx, id.SessionID); err != nil {
				log.Printf("tour: end-session notification failed (ignored): %v", err)
			}
		case id.Role == session.RoleGuest && id.ListenerID != "":
			if err := o.backend.LeaveListener(ctx, id.ListenerID); err != nil {
				log.Printf("tour: leave notification failed (ignored): %v", err)
			}
		}
	}
	log.Printf("tour: ended | session=%s role=%s", id.SessionID, id.Role)
}

// StartBroadcast begins broadcasting on the tour's channel.
func (o *Orchestrator) StartBroadcast(ctx context.Context) error {
	id := o.Identity()
	if id == nil || id.Role != session.RoleGuide {
		return fmt.Errorf("%w: no guide tour", ErrBadTransition)
	}
	return o.transport.StartBroadcast(ctx, id.Channel())
}

// StartListen begins listening on the tour's channel.
func (o *Orchestrator) StartListen(ctx context.Context) error {
	id := o.Identity()
	if id == nil || id.Role != session.RoleGuest {
		return fmt.Errorf("%w: no guest tour", ErrBadTransition)
	}
	return o.transport.StartListen(ctx, id.Channel())
}

// StopAudio stops broadcasting or listening without leaving the tour.
func (o *Orchestrator) StopAudio() {
	o.transport.Stop()
}

// TransportState exposes the controller's state for display.
func (o *Orchestrator) TransportState() transport.State {
	return o.transport.State()
}
