// Package keepalive models the OS "long-running background audio"
// declaration. Starting the service asserts that audio must keep flowing
// while the app is not in the foreground; stopping it withdraws the claim.
package keepalive

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

// Stable notification channel identity, shared with the platform layer.
const (
	ChannelID      = "voiceguide_foreground_channel"
	ChannelName    = "VoiceGuide AirLink"
	NotificationID = 42
)

// Service is the keep-alive declaration carried by a transport start. Start
// is idempotent while running (the declaration is updated in place); Stop is
// safe to call when nothing is running.
type Service interface {
	Start(role session.Role, title, message string) error
	Stop()
}

// Notifier is the default Service. It logs the declaration and, while
// active, samples this process's CPU and resident memory so the status line
// reflects what the audio path actually costs.
type Notifier struct {
	sampleInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	role    session.Role
	title   string
	message string
	status  string
	proc    *process.Process
}

// NewNotifier creates a Notifier sampling process usage every interval.
// A non-positive interval disables sampling.
func NewNotifier(sampleInterval time.Duration) *Notifier {
	n := &Notifier{sampleInterval: sampleInterval}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		n.proc = p
	} else {
		log.Printf("keepalive: process handle unavailable: %v", err)
	}
	return n
}

func (n *Notifier) Start(role session.Role, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.role = role
	n.title = title
	n.message = message
	n.status = fmt.Sprintf("%s — %s", title, message)

	if n.running {
		// Same semantics as re-delivering the start intent: the
		// declaration is refreshed, not duplicated.
		log.Printf("keepalive: updated | role=%s message=%q", role, message)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.running = true
	log.Printf("keepalive: started | channel=%s role=%s title=%q", ChannelID, role, title)

	if n.sampleInterval > 0 && n.proc != nil {
		go n.sampleLoop(ctx)
	}
	return nil
}

func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	n.cancel()
	n.cancel = nil
	n.status = ""
	log.Printf("keepalive: stopped | channel=%s", ChannelID)
}

// Running reports whether a declaration is active.
func (n *Notifier) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Status returns the current status line, empty when not running.
func (n *Notifier) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

func (n *Notifier) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(n.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sample()
		}
	}
}

func (n *Notifier) sample() {
	cpu, err := n.proc.CPUPercent()
	if err != nil {
		return
	}
	var rssMB float64
	if mem, err := n.proc.MemoryInfo(); err == nil {
		rssMB = float64(mem.RSS) / (1024 * 1024)
	}

	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.status = fmt.Sprintf("%s — %s | cpu %.1f%% rss %.0fMB", n.title, n.message, cpu, rssMB)
	status := n.status
	n.mu.Unlock()

	log.Printf("keepalive: %s", status)
}
