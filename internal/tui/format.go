package tui

import "fmt"

// FormatSeconds renders a countdown as m:ss, or h:mm:ss past an hour.
// Unknown time renders as a placeholder rather than a bogus zero.
func FormatSeconds(seconds *int) string {
	if seconds == nil || *seconds < 0 {
		return "--:--"
	}
	s := *seconds
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
