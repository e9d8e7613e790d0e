package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/keepalive"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/permission"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

const notificationTitle = "VoiceGuide AirLink"

// Controller owns the lifecycle of the background audio transport: permission
// gate, keep-alive declaration, engine init, role assignment, channel join,
// and teardown on every exit path. The engine handle is process-wide and only
// the Controller touches it.
type Controller struct {
	gate      permission.Gate
	keep      keepalive.Service
	newEngine EngineFactory
	appID     string

	mu     sync.Mutex
	state  State
	engine Engine
}

// NewController wires the controller's collaborators. newEngine may be nil
// when the transport binding is absent; starts then fail with
// ErrTransportUnavailable.
func NewController(gate permission.Gate, keep keepalive.Service, newEngine EngineFactory, appID string) *Controller {
	return &Controller{
		gate:      gate,
		keep:      keep,
		newEngine: newEngine,
		appID:     appID,
	}
}

// State returns the current transport state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartBroadcast joins the channel as the broadcaster with the microphone
// published. Valid only from idle.
func (c *Controller) StartBroadcast(ctx context.Context, channel string) error {
	return c.start(ctx, channel, session.RoleGuide, RoleBroadcaster, StateBroadcasting,
		fmt.Sprintf("Live tour: %s", channel))
}

// StartListen joins the channel as audience, microphone not published.
// Valid only from idle.
func (c *Controller) StartListen(ctx context.Context, channel string) error {
	return c.start(ctx, channel, session.RoleGuest, RoleAudience, StateListening,
		fmt.Sprintf("Listening to tour: %s", channel))
}

func (c *Controller) start(ctx context.Context, channel string, keepRole session.Role, role Role, next State, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: state is %s", ErrBusy, c.state)
	}
	if channel == "" {
		return ErrInvalidChannel
	}
	if !c.gate.Request(ctx) {
		return ErrPermissionDenied
	}
	if c.newEngine == nil {
		return ErrTransportUnavailable
	}

	if err := c.keep.Start(keepRole, notificationTitle, message); err != nil {
		return fmt.Errorf("keep-alive start: %w", err)
	}

	engine := c.engine
	if engine == nil {
		engine = c.newEngine()
	}

	if err := engine.Init(c.appID); err != nil {
		c.unwindLocked(engine)
		return fmt.Errorf("engine init: %w", err)
	}
	if err := engine.SetRole(role); err != nil {
		c.unwindLocked(engine)
		return fmt.Errorf("engine set role: %w", err)
	}

	opts := JoinOptions{
		PublishMic:         role == RoleBroadcaster,
		AutoSubscribeAudio: true,
	}
	if err := engine.Join(channel, "", 0, opts); err != nil {
		c.unwindLocked(engine)
		return fmt.Errorf("engine join %q: %w", channel, err)
	}

	c.engine = engine
	c.state = next
	go c.watchEvents(engine)
	log.Printf("transport: %s on channel %q", next, channel)
	return nil
}

// Stop leaves the channel, releases the engine, and cancels the keep-alive
// declaration. Safe from any state, including when the engine never came up;
// calling it from idle is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle && c.engine == nil {
		return
	}

	if c.engine != nil {
		if err := c.engine.Leave(); err != nil {
			log.Printf("transport: leave error: %v", err)
		}
		c.engine.Destroy()
		c.engine = nil
	}
	c.keep.Stop()
	c.state = StateIdle
	log.Printf("transport: stopped")
}

// unwindLocked reverts a partially-executed start so no half-started state
// is observable. Caller holds c.mu.
func (c *Controller) unwindLocked(engine Engine) {
	if engine != nil {
		engine.Destroy()
	}
	c.engine = nil
	c.keep.Stop()
	c.state = StateIdle
}

// watchEvents drains engine events for observability until the engine is
// destroyed.
func (c *Controller) watchEvents(engine Engine) {
	for ev := range engine.Events() {
		switch ev.Kind {
		case EventError:
			log.Printf("transport: engine error code=%d err=%v", ev.Code, ev.Err)
		case EventJoined:
			log.Printf("transport: joined uid=%d", ev.UID)
		case EventPeerJoined, EventPeerLeft:
			log.Printf("transport: %s uid=%d", ev.Kind, ev.UID)
		}
	}
}
