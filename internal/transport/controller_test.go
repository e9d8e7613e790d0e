package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

// fakeEngine records the call sequence and lets tests fail specific steps.
type fakeEngine struct {
	calls    []string
	initErr  error
	roleErr  error
	joinErr  error
	role     Role
	channel  string
	opts     JoinOptions
	events   chan Event
	destroys int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 4)}
}

func (f *fakeEngine) Init(appID string) error {
	f.calls = append(f.calls, "init")
	return f.initErr
}

func (f *fakeEngine) SetRole(role Role) error {
	f.calls = append(f.calls, "setRole")
	f.role = role
	return f.roleErr
}

func (f *fakeEngine) Join(channel, token string, uid int, opts JoinOptions) error {
	f.calls = append(f.calls, "join")
	f.channel = channel
	f.opts = opts
	return f.joinErr
}

func (f *fakeEngine) Leave() error {
	f.calls = append(f.calls, "leave")
	return nil
}

func (f *fakeEngine) Destroy() {
	f.calls = append(f.calls, "destroy")
	if f.destroys == 0 {
		close(f.events)
	}
	f.destroys++
}

func (f *fakeEngine) Events() <-chan Event { return f.events }

type fakeGate struct{ grant bool }

func (g fakeGate) Request(context.Context) bool { return g.grant }

// fakeKeepalive records keep-alive start/stop ordering.
type fakeKeepalive struct {
	calls []string
	role  session.Role
}

func (k *fakeKeepalive) Start(role session.Role, title, message string) error {
	k.calls = append(k.calls, "start")
	k.role = role
	return nil
}

func (k *fakeKeepalive) Stop() { k.calls = append(k.calls, "stop") }

func newTestController(engine *fakeEngine) (*Controller, *fakeKeepalive) {
	keep := &fakeKeepalive{}
	var factory EngineFactory
	if engine != nil {
		factory = func() Engine { return engine }
	}
	return NewController(fakeGate{grant: true}, keep, factory, "app-1"), keep
}

func TestStartBroadcastSequence(t *testing.T) {
	engine := newFakeEngine()
	c, keep := newTestController(engine)

	if err := c.StartBroadcast(context.Background(), "006BT9"); err != nil {
		t.Fatalf("StartBroadcast() error: %v", err)
	}

	if c.State() != StateBroadcasting {
		t.Errorf("state = %s, want broadcasting", c.State())
	}
	want := []string{"init", "setRole", "join"}
	if len(engine.calls) != 3 {
		t.Fatalf("engine calls = %v, want %v", engine.calls, want)
	}
	for i, call := range want {
		if engine.calls[i] != call {
			t.Errorf("engine call %d = %s, want %s", i, engine.calls[i], call)
		}
	}
	if engine.role != RoleBroadcaster {
		t.Errorf("role = %s, want broadcaster", engine.role)
	}
	if !engine.opts.PublishMic || !engine.opts.AutoSubscribeAudio {
		t.Errorf("join opts = %+v", engine.opts)
	}
	// The keep-alive declaration precedes any engine call.
	if len(keep.calls) == 0 || keep.calls[0] != "start" {
		t.Errorf("keepalive calls = %v", keep.calls)
	}
	if keep.role != session.RoleGuide {
		t.Errorf("keepalive role = %s, want guide", keep.role)
	}
}

func TestStartListenPublishesNothing(t *testing.T) {
	engine := newFakeEngine()
	c, keep := newTestController(engine)

	if err := c.StartListen(context.Background(), "006BT9"); err != nil {
		t.Fatalf("StartListen() error: %v", err)
	}
	if c.State() != StateListening {
		t.Errorf("state = %s, want listening", c.State())
	}
	if engine.role != RoleAudience {
		t.Errorf("role = %s, want audience", engine.role)
	}
	if engine.opts.PublishMic {
		t.Error("audience must not publish the microphone")
	}
	if !engine.opts.AutoSubscribeAudio {
		t.Error("audience must auto-subscribe audio")
	}
	if keep.role != session.RoleGuest {
		t.Errorf("keepalive role = %s, want guest", keep.role)
	}
}

// Stop from idle produces no error and no state change.
func TestStopIdleIsNoOp(t *testing.T) {
	engine := newFakeEngine()
	c, keep := newTestController(engine)

	c.Stop()
	c.Stop()

	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine calls = %v, want none", engine.calls)
	}
	if len(keep.calls) != 0 {
		t.Errorf("keepalive calls = %v, want none", keep.calls)
	}
}

// A second start without an intervening stop is rejected and the state is
// unchanged.
func TestStartWhileActiveRejected(t *testing.T) {
	engine := newFakeEngine()
	c, _ := newTestController(engine)

	if err := c.StartBroadcast(context.Background(), "006BT9"); err != nil {
		t.Fatalf("StartBroadcast() error: %v", err)
	}
	err := c.StartListen(context.Background(), "006BT9")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("error = %v, want ErrBusy", err)
	}
	if c.State() != StateBroadcasting {
		t.Errorf("state = %s, want broadcasting", c.State())
	}
}

func TestEmptyChannelRejected(t *testing.T) {
	c, keep := newTestController(newFakeEngine())

	err := c.StartBroadcast(context.Background(), "")
	if !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("error = %v, want ErrInvalidChannel", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if len(keep.calls) != 0 {
		t.Errorf("keepalive should not be touched, calls = %v", keep.calls)
	}
}

func TestPermissionDenied(t *testing.T) {
	engine := newFakeEngine()
	keep := &fakeKeepalive{}
	c := NewController(fakeGate{grant: false}, keep, func() Engine { return engine }, "app-1")

	err := c.StartBroadcast(context.Background(), "006BT9")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("error = %v, want ErrPermissionDenied", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine calls = %v, want none", engine.calls)
	}
}

func TestMissingEngineBinding(t *testing.T) {
	c, _ := newTestController(nil)

	err := c.StartListen(context.Background(), "006BT9")
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Errorf("error = %v, want ErrTransportUnavailable", err)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

// A join failure unwinds the keep-alive declaration and the engine; no
// half-started state is observable.
func TestJoinFailureUnwinds(t *testing.T) {
	engine := newFakeEngine()
	engine.joinErr = errors.New("channel full")
	c, keep := newTestController(engine)

	err := c.StartBroadcast(context.Background(), "006BT9")
	if err == nil {
		t.Fatal("expected error")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	if engine.destroys != 1 {
		t.Errorf("engine destroys = %d, want 1", engine.destroys)
	}
	if len(keep.calls) != 2 || keep.calls[1] != "stop" {
		t.Errorf("keepalive calls = %v, want [start stop]", keep.calls)
	}
}

func TestStopReleasesEverything(t *testing.T) {
	engine := newFakeEngine()
	c, keep := newTestController(engine)

	if err := c.StartBroadcast(context.Background(), "006BT9"); err != nil {
		t.Fatalf("StartBroadcast() error: %v", err)
	}
	c.Stop()

	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
	last2 := engine.calls[len(engine.calls)-2:]
	if last2[0] != "leave" || last2[1] != "destroy" {
		t.Errorf("engine calls = %v, want leave then destroy last", engine.calls)
	}
	if keep.calls[len(keep.calls)-1] != "stop" {
		t.Errorf("keepalive calls = %v, want stop last", keep.calls)
	}

	// Stop again from idle: nothing further happens.
	engineCalls, keepCalls := len(engine.calls), len(keep.calls)
	c.Stop()
	if len(engine.calls) != engineCalls || len(keep.calls) != keepCalls {
		t.Error("second Stop must be a no-op")
	}
}

// The transport can be restarted after a stop.
func TestRestartAfterStop(t *testing.T) {
	engine := newFakeEngine()
	engines := []*fakeEngine{engine, newFakeEngine()}
	i := 0
	keep := &fakeKeepalive{}
	c := NewController(fakeGate{grant: true}, keep, func() Engine {
		e := engines[i]
		i++
		return e
	}, "app-1")

	if err := c.StartBroadcast(context.Background(), "AAA111"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	c.Stop()
	if err := c.StartListen(context.Background(), "BBB222"); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if c.State() != StateListening {
		t.Errorf("state = %s, want listening", c.State())
	}
	if engines[1].channel != "BBB222" {
		t.Errorf("second engine channel = %q", engines[1].channel)
	}
}
