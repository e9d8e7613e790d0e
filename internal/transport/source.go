package transport

import (
	"sync"
	"time"
)

// SilenceSource emits fixed-size silent PCM frames on a steady cadence. It
// stands in for a microphone on builds without a capture device.
type SilenceSource struct {
	Interval  time.Duration
	FrameSize int

	mu     sync.Mutex
	stopCh chan struct{}
}

func (s *SilenceSource) Start(emit func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	size := s.FrameSize
	if size <= 0 {
		size = 320 // 20ms of 16-bit mono at 8kHz
	}
	stop := make(chan struct{})
	s.stopCh = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		frame := make([]byte, size)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				emit(frame)
			}
		}
	}()
	return nil
}

func (s *SilenceSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// DiscardSink drops received audio. Used where no playback device exists.
type DiscardSink struct{}

func (DiscardSink) Play([]byte) {}
