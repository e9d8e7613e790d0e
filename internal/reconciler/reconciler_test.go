package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

// fakeFetcher serves a queue of snapshots (or errors) in order, repeating
// the last entry once the queue is exhausted.
type fakeFetcher struct {
	queue []fetchResult
	calls int
}

type fetchResult struct {
	snap *session.StatusSnapshot
	err  error
}

func (f *fakeFetcher) SessionStatus(ctx context.Context, sessionID string) (*session.StatusSnapshot, error) {
	i := f.calls
	if i >= len(f.queue) {
		i = len(f.queue) - 1
	}
	f.calls++
	res := f.queue[i]
	return res.snap, res.err
}

func intPtr(v int) *int { return &v }

func active(remaining int, listeners int) fetchResult {
	return fetchResult{snap: &session.StatusSnapshot{
		IsActive:         true,
		RemainingSeconds: intPtr(remaining),
		CurrentListeners: listeners,
	}}
}

func inactive() fetchResult {
	return fetchResult{snap: &session.StatusSnapshot{IsActive: false, RemainingSeconds: intPtr(0)}}
}

// Three ticks from 2 yield 2 → 1 → 0 → 0, never negative.
func TestCountdownClamp(t *testing.T) {
	r := New(&fakeFetcher{queue: []fetchResult{active(2, 0)}}, "sess-1", 0, 0)

	r.poll(context.Background())
	want := []int{1, 0, 0}
	for i, w := range want {
		r.tick()
		remaining, _, _ := r.Snapshot()
		if remaining == nil || *remaining != w {
			t.Fatalf("after tick %d remaining = %v, want %d", i+1, remaining, w)
		}
	}
}

// A poll overwrites whatever the local countdown drifted to.
func TestAuthoritativeOverwrite(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{active(40, 2), active(40, 2)}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	for i := 0; i < 7; i++ {
		r.tick()
	}
	remaining, _, _ := r.Snapshot()
	if remaining == nil || *remaining != 33 {
		t.Fatalf("after drift remaining = %v, want 33", remaining)
	}

	r.poll(context.Background())
	remaining, listeners, _ := r.Snapshot()
	if remaining == nil || *remaining != 40 {
		t.Errorf("after poll remaining = %v, want 40", remaining)
	}
	if listeners != 2 {
		t.Errorf("listeners = %d, want 2", listeners)
	}
}

// A nil remaining time means unknown: never decremented.
func TestUnknownRemainingNeverTicks(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{{snap: &session.StatusSnapshot{IsActive: true}}}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	r.tick()
	r.tick()
	remaining, _, _ := r.Snapshot()
	if remaining != nil {
		t.Errorf("remaining = %v, want nil", *remaining)
	}
}

// A failed poll is skipped: countdown keeps its last value, no ended signal.
func TestPollFailureDegradesGracefully(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{
		active(10, 1),
		{err: errors.New("connection refused")},
	}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	if ended := r.poll(context.Background()); ended {
		t.Error("failed poll must not end the session")
	}
	remaining, listeners, ended := r.Snapshot()
	if remaining == nil || *remaining != 10 {
		t.Errorf("remaining = %v, want 10", remaining)
	}
	if listeners != 1 || ended {
		t.Errorf("listeners = %d ended = %v", listeners, ended)
	}
}

// The tick loop reaching zero does not terminate the session; only a poll
// confirming inactivity does.
func TestZeroTickDoesNotEnd(t *testing.T) {
	r := New(&fakeFetcher{queue: []fetchResult{active(1, 0)}}, "sess-1", 0, 0)

	r.poll(context.Background())
	r.tick()
	r.tick()
	if _, _, ended := r.Snapshot(); ended {
		t.Error("local zero must not end the session")
	}
}

// Session-ended fires exactly once even when a second poll reports inactive
// again.
func TestEndedFiresOnce(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{active(5, 1), inactive(), inactive()}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	if !r.poll(context.Background()) {
		t.Fatal("second poll should report ended")
	}
	if r.poll(context.Background()) {
		t.Error("third poll must not report ended again")
	}

	endedUpdates := 0
	for {
		select {
		case u := <-r.Updates():
			if u.Ended {
				endedUpdates++
			}
			continue
		default:
		}
		break
	}
	if endedUpdates != 1 {
		t.Errorf("ended updates = %d, want exactly 1", endedUpdates)
	}
}

// After ended, ticks are inert.
func TestNoTickAfterEnded(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{inactive()}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	r.tick()
	remaining, _, ended := r.Snapshot()
	if !ended {
		t.Fatal("expected ended")
	}
	if remaining == nil || *remaining != 0 {
		t.Errorf("remaining = %v, want 0", remaining)
	}
}

// Run terminates on its own once a poll reports the session inactive, and
// terminates on context cancellation otherwise.
func TestRunTermination(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{active(5, 0), inactive()}}
	r := New(f, "sess-1", 10*time.Millisecond, time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate after ended poll")
	}

	f2 := &fakeFetcher{queue: []fetchResult{active(100, 0)}}
	r2 := New(f2, "sess-2", 10*time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done2 := make(chan struct{})
	go func() {
		r2.Run(ctx)
		close(done2)
	}()
	cancel()
	select {
	case <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not terminate on cancellation")
	}
}

// The terminal update survives a full buffer.
func TestEndedUpdateNotDropped(t *testing.T) {
	f := &fakeFetcher{queue: []fetchResult{active(600, 0), inactive()}}
	r := New(f, "sess-1", 0, 0)

	r.poll(context.Background())
	for i := 0; i < 64; i++ {
		r.tick()
	}
	r.poll(context.Background())

	sawEnded := false
	for {
		select {
		case u := <-r.Updates():
			if u.Ended {
				sawEnded = true
			}
			continue
		default:
		}
		break
	}
	if !sawEnded {
		t.Error("ended update was dropped under backpressure")
	}
}
