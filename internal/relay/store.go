// Package relay is the development backend: an in-memory session service plus
// a websocket audio relay, speaking whatever the client packages expect.
package relay

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

var (
	ErrLicenseUnknown  = errors.New("license code not recognized")
	ErrLicenseUsed     = errors.New("license code already used")
	ErrSessionUnknown  = errors.New("session not found")
	ErrSessionInactive = errors.New("session is not active")
	ErrPinUnknown      = errors.New("pin not recognized")
	ErrSessionFull     = errors.New("session is full")
	ErrListenerUnknown = errors.New("listener not found")
)

// pinAlphabet avoids characters that read ambiguously on a printed card.
const pinAlphabet = "0123456789ABCDEFGHJKMNPQRSTUVWXYZ"

const pinLength = 6

type license struct {
	code      string
	maxGuests int
	minutes   int
	used      bool
}

type listener struct {
	id          string
	sessionID   string
	displayName string
	active      bool
}

type liveSession struct {
	id          string
	pin         string
	licenseCode string
	maxGuests   int
	deadline    time.Time
	active      bool
	listeners   map[string]*listener
}

// Store holds licenses, sessions and listeners in memory. Sessions expire
// when their deadline passes; expiry is applied lazily on read.
type Store struct {
	mu              sync.Mutex
	licenses        map[string]*license
	sessions        map[string]*liveSession
	pins            map[string]string
	listeners       map[string]*listener
	sessionDuration time.Duration
	sessionSeq      int
	listenerSeq     int

	now  func() time.Time
	rand *rand.Rand
}

// NewStore creates an empty store. sessionDuration caps every session started
// with a license that carries no minute budget of its own.
func NewStore(sessionDuration time.Duration) *Store {
	if sessionDuration <= 0 {
		sessionDuration = 90 * time.Minute
	}
	return &Store{
		licenses:        make(map[string]*license),
		sessions:        make(map[string]*liveSession),
		pins:            make(map[string]string),
		listeners:       make(map[string]*listener),
		sessionDuration: sessionDuration,
		now:             time.Now,
		rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeedLicense registers an activatable license code.
func (s *Store) SeedLicense(code string, maxGuests, minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxGuests <= 0 {
		maxGuests = 10
	}
	s.licenses[code] = &license{code: code, maxGuests: maxGuests, minutes: minutes}
}

// ActivateLicense validates a code and returns its capacity. Activation does
// not consume the code; starting and ending a tour does.
func (s *Store) ActivateLicense(code string) (*session.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[code]
	if !ok {
		return nil, ErrLicenseUnknown
	}
	if lic.used {
		return nil, ErrLicenseUsed
	}

	minutes := lic.minutes
	if minutes <= 0 {
		minutes = int(s.sessionDuration / time.Minute)
	}
	return &session.License{Code: lic.code, MaxGuests: lic.maxGuests, RemainingMinutes: minutes}, nil
}

// StartSession creates a live session for the license and allocates a PIN.
func (s *Store) StartSession(code string, maxGuests int) (pin, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[code]
	if !ok {
		return "", "", ErrLicenseUnknown
	}
	if lic.used {
		return "", "", ErrLicenseUsed
	}
	if maxGuests <= 0 || maxGuests > lic.maxGuests {
		maxGuests = lic.maxGuests
	}

	duration := s.sessionDuration
	if lic.minutes > 0 {
		duration = time.Duration(lic.minutes) * time.Minute
	}

	pin = s.allocatePinLocked()
	s.sessionSeq++
	id = fmt.Sprintf("sess-%d", s.sessionSeq)

	s.sessions[id] = &liveSession{
		id:          id,
		pin:         pin,
		licenseCode: code,
		maxGuests:   maxGuests,
		deadline:    s.now().Add(duration),
		active:      true,
		listeners:   make(map[string]*listener),
	}
	s.pins[pin] = id
	return pin, id, nil
}

// EndSession closes a session, frees its PIN and consumes the license.
// Ending an already-ended session is not an error.
func (s *Store) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionUnknown
	}
	s.closeLocked(sess)
	return nil
}

// Status reports whether a session is live and how much time it has left.
func (s *Store) Status(id string) (*session.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionUnknown
	}
	s.expireLocked(sess)

	snap := &session.StatusSnapshot{IsActive: sess.active}
	if sess.active {
		remaining := int(sess.deadline.Sub(s.now()) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		snap.RemainingSeconds = &remaining
		for _, l := range sess.listeners {
			if l.active {
				snap.CurrentListeners++
			}
		}
	}
	return snap, nil
}

// JoinPin admits a listener into the session behind a PIN.
func (s *Store) JoinPin(pin, displayName string) (listenerID, sessionID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pins[pin]
	if !ok {
		return "", "", ErrPinUnknown
	}
	sess := s.sessions[id]
	s.expireLocked(sess)
	if !sess.active {
		return "", "", ErrSessionInactive
	}

	active := 0
	for _, l := range sess.listeners {
		if l.active {
			active++
		}
	}
	if active >= sess.maxGuests {
		return "", "", ErrSessionFull
	}

	s.listenerSeq++
	l := &listener{
		id:          fmt.Sprintf("lst-%d", s.listenerSeq),
		sessionID:   id,
		displayName: displayName,
		active:      true,
	}
	sess.listeners[l.id] = l
	s.listeners[l.id] = l
	return l.id, id, nil
}

// LeaveListener marks a listener as gone. Idempotent.
func (s *Store) LeaveListener(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listeners[id]
	if !ok {
		return ErrListenerUnknown
	}
	l.active = false
	return nil
}

// Listener returns a listener's record.
func (s *Store) Listener(id string) (sessionID, displayName string, active bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listeners[id]
	if !ok {
		return "", "", false, ErrListenerUnknown
	}
	if sess, ok := s.sessions[l.sessionID]; ok {
		s.expireLocked(sess)
		if !sess.active {
			l.active = false
		}
	}
	return l.sessionID, l.displayName, l.active, nil
}

// PinForSession returns the PIN of a session while it lives.
func (s *Store) PinForSession(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return "", false
	}
	return sess.pin, sess.pin != ""
}

func (s *Store) allocatePinLocked() string {
	buf := make([]byte, pinLength)
	for {
		for i := range buf {
			buf[i] = pinAlphabet[s.rand.Intn(len(pinAlphabet))]
		}
		pin := string(buf)
		if _, taken := s.pins[pin]; !taken {
			return pin
		}
	}
}

func (s *Store) expireLocked(sess *liveSession) {
	if sess.active && s.now().After(sess.deadline) {
		s.closeLocked(sess)
	}
}

func (s *Store) closeLocked(sess *liveSession) {
	if !sess.active && sess.pin == "" {
		return
	}
	sess.active = false
	if sess.pin != "" {
		delete(s.pins, sess.pin)
		sess.pin = ""
	}
	for _, l := range sess.listeners {
		l.active = false
	}
	if lic, ok := s.licenses[sess.licenseCode]; ok {
		lic.used = true
	}
}
