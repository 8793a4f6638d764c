// Package session manages the pool of headless browser execution contexts.
//
// Each session owns one Chrome process, driven through Rod. Sessions are
// exclusively owned: the pool hands a session to at most one in-flight
// extraction at a time (checkout/return discipline), validates liveness
// before every handout, and replaces dead sessions transparently so callers
// never observe a dead session as ready.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateReady
	StateBusy
	StateDead
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

// Session is one isolated browser execution context.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	state      State
	lastActive time.Time
	browser    *rod.Browser
	lnch       *launcher.Launcher
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActive returns the last checkout/return timestamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Browser returns the underlying Rod browser handle.
func (s *Session) Browser() *rod.Browser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser
}

// Page opens a new stealth page in this session. Stealth patches are always
// applied; bot-detection scripts probe for automation markers even on sites
// without explicit protection.
func (s *Session) Page(ctx context.Context) (*rod.Page, error) {
	b := s.Browser()
	if b == nil {
		return nil, fmt.Errorf("session %s: no browser", s.ID)
	}
	page, err := stealth.Page(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("session %s: create page: %w", s.ID, err)
	}
	return page, nil
}

// SetViewport applies a viewport override to a page of this session.
func SetViewport(page *rod.Page, width, height int) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// kill closes the browser and reaps the Chrome process. Idempotent.
func (s *Session) kill() {
	s.mu.Lock()
	b, l := s.browser, s.lnch
	s.browser, s.lnch = nil, nil
	s.state = StateDead
	s.mu.Unlock()

	if b != nil {
		_ = b.Close()
	}
	if l != nil {
		l.Cleanup()
	}
}
