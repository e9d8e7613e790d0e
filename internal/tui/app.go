package tui

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/reconciler"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/tour"
	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/transport"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// reqTimeout bounds backend calls issued from key handlers.
const reqTimeout = 10 * time.Second

// Menu entries on the home screen.
const (
	menuGuide = iota
	menuGuest
	menuCount
)

type (
	// tourUpdateMsg carries one reconciler update into the event loop.
	tourUpdateMsg reconciler.Update

	// opDoneMsg reports the outcome of an orchestrator call.
	opDoneMsg struct {
		err error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	orch *tour.Orchestrator
	keys KeyMap

	width  int
	height int

	menuIdx int
	input   textinput.Model
	errText string
	notice  string

	remaining  *int
	listeners  int
	confirmEnd bool
}

// New creates the root model.
func New(orch *tour.Orchestrator) Model {
	ti := textinput.New()
	ti.CharLimit = 16
	return Model{
		orch:  orch,
		keys:  DefaultKeyMap(),
		input: ti,
	}
}

// Init starts listening for tour updates.
func (m Model) Init() tea.Cmd {
	return m.waitUpdate()
}

// waitUpdate blocks on the orchestrator's update channel and feeds the
// result back as a message. Re-armed after every delivery.
func (m Model) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		return tourUpdateMsg(<-m.orch.Updates())
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tourUpdateMsg:
		if msg.Ended {
			m.remaining = nil
			m.listeners = 0
			m.confirmEnd = false
			m.notice = "The tour has ended."
			return m, m.waitUpdate()
		}
		m.remaining = msg.RemainingSeconds
		m.listeners = msg.CurrentListeners
		return m, m.waitUpdate()

	case opDoneMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		return m.prepareInput(), nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.orch.StopAudio()
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Quit) && m.orch.Screen() == tour.ScreenHome {
		return m, tea.Quit
	}

	switch m.orch.Screen() {
	case tour.ScreenHome:
		return m.handleHomeKey(msg)
	case tour.ScreenActivateLicense, tour.ScreenJoinPin:
		return m.handleEntryKey(msg)
	case tour.ScreenGuideDashboard:
		return m.handleDashboardKey(msg)
	case tour.ScreenGuideTour, tour.ScreenGuestTour:
		return m.handleTourKey(msg)
	}
	return m, nil
}

func (m Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		m.menuIdx = (m.menuIdx + 1) % menuCount
	case key.Matches(msg, m.keys.Up):
		m.menuIdx = (m.menuIdx - 1 + menuCount) % menuCount
	case key.Matches(msg, m.keys.Enter):
		m.errText = ""
		m.notice = ""
		if m.menuIdx == menuGuide {
			if _, err := m.orch.OpenGuidePath(); err != nil {
				m.errText = err.Error()
				return m, nil
			}
		} else {
			if _, err := m.orch.OpenGuestPath(); err != nil {
				m.errText = err.Error()
				return m, nil
			}
		}
		return m.prepareInput(), nil
	}
	return m, nil
}

// prepareInput focuses the text input for the screen just entered.
func (m Model) prepareInput() Model {
	m.input.Reset()
	switch m.orch.Screen() {
	case tour.ScreenActivateLicense:
		m.input.Placeholder = "license code"
		m.input.CharLimit = 16
		m.input.Focus()
	case tour.ScreenJoinPin:
		m.input.Placeholder = "6-character PIN"
		m.input.CharLimit = 6
		m.input.Focus()
	default:
		m.input.Blur()
	}
	return m
}

func (m Model) handleEntryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.errText = ""
		m.orch.Back()
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		m.errText = ""
		if m.orch.Screen() == tour.ScreenActivateLicense {
			return m, m.activateCmd(value)
		}
		return m, m.joinCmd(strings.ToUpper(value))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.orch.Back()
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		m.errText = ""
		return m, m.startTourCmd()
	}
	return m, nil
}

func (m Model) handleTourKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Audio):
		m.confirmEnd = false
		return m, m.toggleAudioCmd()
	case key.Matches(msg, m.keys.Leave):
		// First press arms the confirmation, second press goes through.
		if !m.confirmEnd {
			m.confirmEnd = true
			return m, nil
		}
		m.confirmEnd = false
		return m, m.endTourCmd()
	case key.Matches(msg, m.keys.Back):
		m.confirmEnd = false
		return m, nil
	}
	return m, nil
}

func (m Model) activateCmd(code string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()
		_, err := m.orch.ActivateLicense(ctx, code)
		return opDoneMsg{err: err}
	}
}

func (m Model) startTourCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()
		_, err := m.orch.StartTour(ctx)
		return opDoneMsg{err: err}
	}
}

func (m Model) joinCmd(pin string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()
		if _, err := m.orch.JoinTour(ctx, pin, ""); err != nil {
			return opDoneMsg{err: err}
		}
		// Guests start hearing the tour as soon as they are in.
		return opDoneMsg{err: m.orch.StartListen(context.Background())}
	}
}

func (m Model) toggleAudioCmd() tea.Cmd {
	return func() tea.Msg {
		if m.orch.TransportState() != transport.StateIdle {
			m.orch.StopAudio()
			return opDoneMsg{}
		}
		id := m.orch.Identity()
		if id == nil {
			return opDoneMsg{}
		}
		ctx := context.Background()
		if id.Role == session.RoleGuide {
			return opDoneMsg{err: m.orch.StartBroadcast(ctx)}
		}
		return opDoneMsg{err: m.orch.StartListen(ctx)}
	}
}

func (m Model) endTourCmd() tea.Cmd {
	screen := m.orch.Screen()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()
		if screen == tour.ScreenGuideTour {
			return opDoneMsg{err: m.orch.EndTour(ctx)}
		}
		return opDoneMsg{err: m.orch.LeaveTour(ctx)}
	}
}

// View renders the current screen.
func (m Model) View() string {
	var body string
	switch m.orch.Screen() {
	case tour.ScreenHome:
		body = m.viewHome()
	case tour.ScreenActivateLicense:
		body = m.viewEntry("Activate license", "Enter the license code printed on your voucher.")
	case tour.ScreenJoinPin:
		body = m.viewEntry("Join a tour", "Enter the PIN your guide gave you.")
	case tour.ScreenGuideDashboard:
		body = m.viewDashboard()
	case tour.ScreenGuideTour:
		body = m.viewTour(true)
	case tour.ScreenGuestTour:
		body = m.viewTour(false)
	}

	sections := []string{
		StyleTitle.Render("AirLink Voice Guide"),
		"",
		body,
	}
	if m.errText != "" {
		sections = append(sections, "", StyleError.Render(m.errText))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) viewHome() string {
	lines := []string{StyleHeader.Render("What brings you here?"), ""}
	entries := []string{"I am a guide", "I am a guest"}
	for i, e := range entries {
		prefix := "  "
		style := StyleDimmed
		if i == m.menuIdx {
			prefix = "> "
			style = StyleSelected
		}
		lines = append(lines, prefix+style.Render(e))
	}
	if m.notice != "" {
		lines = append(lines, "", StyleDimmed.Render(m.notice))
	}
	lines = append(lines, "", StyleDimmed.Render("j/k:move  enter:select  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) viewEntry(title, hint string) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		StyleHeader.Render(title),
		"",
		StyleDimmed.Render(hint),
		"",
		m.input.View(),
		"",
		StyleDimmed.Render("enter:submit  esc:back"),
	)
}

func (m Model) viewDashboard() string {
	lines := []string{StyleHeader.Render("Ready to start"), ""}
	if lic := m.orch.License(); lic != nil {
		lines = append(lines,
			"License   "+StyleSelected.Render(lic.Code),
			"Capacity  up to "+strconv.Itoa(lic.MaxGuests)+" guests",
			"Time      "+strconv.Itoa(lic.RemainingMinutes)+" minutes",
		)
	}
	lines = append(lines, "", StyleDimmed.Render("enter:start tour  esc:back"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) viewTour(guide bool) string {
	live := m.orch.TransportState() != transport.StateIdle

	countdown := FormatSeconds(m.remaining)
	countdownStyle := StyleCountdown
	if m.remaining != nil {
		countdownStyle = countdownStyle.Foreground(CountdownColor(*m.remaining))
	}

	var lines []string
	if guide {
		lines = append(lines, StyleHeader.Render("Tour in progress"), "")
		if id := m.orch.Identity(); id != nil {
			lines = append(lines, "Share this PIN with your group:", "", StylePin.Render(id.Pin), "")
		}
		lines = append(lines, "Guests connected  "+strconv.Itoa(m.listeners))
	} else {
		lines = append(lines, StyleHeader.Render("You are on the tour"), "")
	}
	lines = append(lines,
		"Time remaining    "+countdownStyle.Render(countdown),
		"Audio             "+AudioGlyph(live),
		"",
	)
	switch {
	case m.confirmEnd && guide:
		lines = append(lines, StyleError.Render("End the tour for everyone? Press e again to confirm, esc to stay."))
	case m.confirmEnd:
		lines = append(lines, StyleError.Render("Leave the tour? Press e again to confirm, esc to stay."))
	case guide:
		lines = append(lines, StyleDimmed.Render("a:toggle mic  e:end tour"))
	default:
		lines = append(lines, StyleDimmed.Render("a:toggle audio  e:leave tour"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
