package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/maquette/idgen"
)

// Config configures the session pool.
type Config struct {
	// MaxSessions caps the number of concurrently live browser processes.
	// Default: 4.
	MaxSessions int `yaml:"max_sessions"`

	// AcquireTimeout bounds how long Acquire blocks when the pool is at
	// capacity. Default: 30s.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// ValidateTimeout bounds the liveness probe. Default: 3s.
	ValidateTimeout time.Duration `yaml:"validate_timeout"`

	// ShutdownGrace is how long Shutdown waits for busy sessions to return
	// before force-killing them. Default: 10s.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome per session via the Rod launcher.
	RemoteURL string `yaml:"remote_url"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 4
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = 3 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool owns all browser sessions. Lifecycle is explicit: New, Start, then
// Acquire/Release, finally Shutdown.
type Pool struct {
	cfg   Config
	newID idgen.Generator

	mu      sync.Mutex
	started bool
	closed  bool
	idle    []*Session
	busy    map[string]*Session
	total   int
	waiters []chan *Session

	// launch and probe are swappable for tests.
	launch func(ctx context.Context) (*Session, error)
	probe  func(s *Session) bool
}

// New creates a Pool. Call Start before Acquire.
func New(cfg Config) *Pool {
	cfg.defaults()
	p := &Pool{
		cfg:   cfg,
		newID: idgen.Prefixed("sess_", idgen.Default),
		busy:  make(map[string]*Session),
	}
	p.launch = p.launchSession
	p.probe = p.probeSession
	return p
}

// Start marks the pool usable. Sessions are created lazily on demand, so
// Start itself spawns no processes.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.started = true
	p.cfg.Logger.Info("session: pool started", "max_sessions", p.cfg.MaxSessions)
	return nil
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Idle  int `json:"idle"`
	Busy  int `json:"busy"`
	Total int `json:"total"`
}

// Stats returns current occupancy counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Busy: len(p.busy), Total: p.total}
}

// Acquire checks out a live session, creating one lazily when under
// capacity. At capacity it blocks FIFO until a session is released, the
// context is cancelled, or AcquireTimeout elapses (ErrPoolExhausted).
// A session that fails validation is destroyed and replaced transparently.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	timeout := time.NewTimer(p.cfg.AcquireTimeout)
	defer timeout.Stop()

	for {
		p.mu.Lock()
		if !p.started || p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if len(p.idle) > 0 {
			s := p.idle[0]
			p.idle = p.idle[1:]
			p.mu.Unlock()
			if !p.Validate(s) {
				p.cfg.Logger.Warn("session: idle session dead, replacing", "session", s.ID)
				p.Destroy(s)
				continue
			}
			p.checkout(s)
			return s, nil
		}

		if p.total < p.cfg.MaxSessions {
			p.total++
			p.mu.Unlock()
			s, err := p.launch(ctx)
			if err != nil {
				// The slot must go back through freeSlot so a queued
				// waiter is woken to claim the freed capacity.
				p.freeSlot()
				return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
			}
			p.checkout(s)
			return s, nil
		}

		// At capacity: join the FIFO wait queue.
		ch := make(chan *Session, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case s, ok := <-ch:
			if !ok {
				return nil, ErrPoolClosed
			}
			if s == nil {
				// Capacity freed by a destroy; loop and create fresh.
				continue
			}
			if !p.Validate(s) {
				p.Destroy(s)
				continue
			}
			p.checkout(s)
			return s, nil
		case <-ctx.Done():
			p.dropWaiter(ch)
			return nil, ctx.Err()
		case <-timeout.C:
			p.dropWaiter(ch)
			return nil, ErrPoolExhausted
		}
	}
}

// Release returns a session to the pool. The session is proactively
// validated first so that a page hung at deadline expiry never poisons a
// future request; a dead session is destroyed (freeing capacity) instead of
// being pooled.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	if !p.Validate(s) {
		p.cfg.Logger.Warn("session: released session dead, destroying", "session", s.ID)
		p.Destroy(s)
		return
	}
	s.setState(StateReady)

	p.mu.Lock()
	delete(p.busy, s.ID)
	if p.closed {
		p.mu.Unlock()
		s.kill()
		return
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		// Send under the mutex: the channel is buffered and gets at most
		// one value, so this never blocks, and dropWaiter's scan-then-drain
		// can never observe the pop without the session already delivered.
		ch <- s
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

// Destroy kills a session's browser process and frees its capacity slot.
func (p *Pool) Destroy(s *Session) {
	if s == nil {
		return
	}
	s.kill()

	p.mu.Lock()
	delete(p.busy, s.ID)
	p.total--
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- nil // wake one waiter; it will create a fresh session
	}
	p.mu.Unlock()
}

// Replace destroys a dead session and launches a fresh one for the same
// caller, reusing the capacity slot. This is the recovery path for a
// session-death signal observed mid-request; the pool's FIFO queue is
// deliberately bypassed so the recovering request keeps its slot.
func (p *Pool) Replace(ctx context.Context, s *Session) (*Session, error) {
	s.kill()
	p.mu.Lock()
	delete(p.busy, s.ID)
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.freeSlot()
		return nil, ErrPoolClosed
	}

	ns, err := p.launch(ctx)
	if err != nil {
		p.freeSlot()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	p.checkout(ns)
	p.cfg.Logger.Info("session: replaced dead session", "old", s.ID, "new", ns.ID)
	return ns, nil
}

// Validate probes session liveness: the browser process and its CDP
// transport must still respond. Bounded by ValidateTimeout.
func (p *Pool) Validate(s *Session) bool {
	if s == nil || s.State() == StateDead {
		return false
	}
	return p.probe(s)
}

// Shutdown drains the pool: no new acquires, idle sessions destroyed
// immediately, busy sessions given a bounded grace period to be released,
// then force-killed so no browser process leaks.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	for _, s := range idle {
		s.kill()
	}

	grace := time.NewTimer(p.cfg.ShutdownGrace)
	defer grace.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		p.mu.Lock()
		remaining := len(p.busy)
		p.mu.Unlock()
		if remaining == 0 {
			p.cfg.Logger.Info("session: pool drained")
			return nil
		}
		select {
		case <-tick.C:
		case <-grace.C:
			return p.forceKill()
		case <-ctx.Done():
			return p.forceKill()
		}
	}
}

func (p *Pool) forceKill() error {
	p.mu.Lock()
	busy := make([]*Session, 0, len(p.busy))
	for _, s := range p.busy {
		busy = append(busy, s)
	}
	p.busy = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range busy {
		s.kill()
	}
	if len(busy) > 0 {
		p.cfg.Logger.Warn("session: force-killed busy sessions at shutdown", "count", len(busy))
	}
	return nil
}

func (p *Pool) checkout(s *Session) {
	s.setState(StateBusy)
	p.mu.Lock()
	p.busy[s.ID] = s
	p.mu.Unlock()
}

func (p *Pool) freeSlot() {
	p.mu.Lock()
	p.total--
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- nil
	}
	p.mu.Unlock()
}

func (p *Pool) dropWaiter(ch chan *Session) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	// A release may have raced the timeout and already handed us a session,
	// or a destroy may have sent us a capacity wakeup. Neither may be lost.
	select {
	case s := <-ch:
		if s != nil {
			p.Release(s)
		} else {
			p.wakeOne()
		}
	default:
	}
}

func (p *Pool) wakeOne() {
	p.mu.Lock()
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ch <- nil
	}
	p.mu.Unlock()
}

// launchSession spawns a Chrome process (or connects to RemoteURL) and wraps
// it in a Session.
func (p *Pool) launchSession(ctx context.Context) (*Session, error) {
	log := p.cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher
	if p.cfg.RemoteURL != "" {
		wsURL = p.cfg.RemoteURL
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
		lnch = l
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("session: ignore cert errors failed", "error", err)
	}

	now := time.Now()
	s := &Session{
		ID:         p.newID(),
		CreatedAt:  now,
		state:      StateCreated,
		lastActive: now,
		browser:    b,
		lnch:       lnch,
	}
	log.Info("session: launched", "session", s.ID, "remote", p.cfg.RemoteURL != "")
	return s, nil
}

func (p *Pool) probeSession(s *Session) bool {
	b := s.Browser()
	if b == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ValidateTimeout)
	defer cancel()
	_, err := b.Context(ctx).Version()
	return err == nil
}
