package tui

import (
	"fmt"
	"log"
	"time"
)

// errorTTL is how long an error stays on the status line.
const errorTTL = 30 * time.Second

// statusLine is the shared message area under every page. Errors are
// auto-cleared after errorTTL; notices stay until replaced.
type statusLine struct {
	lastError   string
	lastErrorAt time.Time
	notice      string

	now func() time.Time
}

func newStatusLine() *statusLine {
	return &statusLine{now: time.Now}
}

// Errorf records an error and logs it.
func (s *statusLine) Errorf(format string, args ...any) {
	s.lastError = fmt.Sprintf(format, args...)
	s.lastErrorAt = s.now()
	log.Printf("tui: %s", s.lastError)
}

// Notify replaces the notice.
func (s *statusLine) Notify(format string, args ...any) {
	s.notice = fmt.Sprintf(format, args...)
}

// Error returns the current error, clearing it once expired.
func (s *statusLine) Error() string {
	if s.lastError != "" && s.now().Sub(s.lastErrorAt) >= errorTTL {
		s.lastError = ""
	}
	return s.lastError
}

// Notice returns the current notice.
func (s *statusLine) Notice() string { return s.notice }
