// Package navigate drives a page load to a stable state using an ordered
// fallback of load-completion strategies.
//
// Different implementations stabilize under different signals: a static site
// is done at network quiescence, a client-rendered app may keep a socket
// open forever and only ever reach "DOM ready". Trying progressively looser
// signals maximizes success without spending the full budget on simple
// pages. Every attempt is bounded by a sub-timeout derived from the request
// deadline, so a slow early strategy can only reduce the budget of later
// ones.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/maquette/session"
)

// ErrNavigationFailed is the terminal error once every strategy is
// exhausted. It wraps the last underlying error. Navigation failures are not
// retried here; session-death recovery is the caller's concern.
var ErrNavigationFailed = errors.New("navigate: navigation failed")

// Strategy is one load-completion signal to wait for after Navigate.
type Strategy struct {
	Name string
	Wait func(ctx context.Context, page *rod.Page) error
}

// Config configures the Navigator.
type Config struct {
	// SubTimeoutFloor is the minimum per-strategy budget when the overall
	// deadline allows it. Default: 45s.
	SubTimeoutFloor time.Duration `yaml:"sub_timeout_floor"`

	// SettleDelay is the fixed wait after DOM-content-ready in the second
	// strategy. Default: 2s.
	SettleDelay time.Duration `yaml:"settle_delay"`

	Logger *slog.Logger `yaml:"-"`

	strategies []Strategy
}

func (c *Config) defaults() {
	if c.SubTimeoutFloor <= 0 {
		c.SubTimeoutFloor = 45 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.strategies == nil {
		c.strategies = defaultStrategies(c.SettleDelay)
	}
}

// Navigator loads pages. Safe for concurrent use; all state is per-call.
type Navigator struct {
	cfg Config

	// goTo is swappable for tests.
	goTo func(ctx context.Context, page *rod.Page, rawURL string) error
}

// New creates a Navigator.
func New(cfg Config) *Navigator {
	cfg.defaults()
	n := &Navigator{cfg: cfg}
	n.goTo = func(ctx context.Context, page *rod.Page, rawURL string) error {
		return page.Context(ctx).Navigate(rawURL)
	}
	return n
}

// Navigate loads rawURL in page and waits for stability. The context
// deadline is the overall navigation budget. On success the page is left on
// the target document; on failure ErrNavigationFailed wraps the last
// strategy error. A session-death signal is passed through unwrapped so the
// caller can run its recovery protocol.
func (n *Navigator) Navigate(ctx context.Context, page *rod.Page, rawURL string) error {
	log := n.cfg.Logger

	if err := n.goTo(ctx, page, rawURL); err != nil {
		if session.DeathSignal(err) {
			return err
		}
		return fmt.Errorf("%w: navigate %s: %v", ErrNavigationFailed, rawURL, err)
	}

	var lastErr error
	for i, st := range n.cfg.strategies {
		remaining := time.Until(deadlineOf(ctx))
		if remaining <= 0 {
			break
		}
		sub := subTimeout(remaining, len(n.cfg.strategies)-i, n.cfg.SubTimeoutFloor)

		sctx, cancel := context.WithTimeout(ctx, sub)
		err := st.Wait(sctx, page)
		cancel()
		if err == nil {
			log.Debug("navigate: stable", "url", rawURL, "strategy", st.Name)
			return nil
		}
		if session.DeathSignal(err) {
			return err
		}
		log.Debug("navigate: strategy failed", "url", rawURL, "strategy", st.Name, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = context.DeadlineExceeded
	}
	return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, rawURL, lastErr)
}

// subTimeout splits the remaining budget evenly across the remaining
// strategies, raised to the floor when the budget allows.
func subTimeout(remaining time.Duration, strategiesLeft int, floor time.Duration) time.Duration {
	if strategiesLeft < 1 {
		strategiesLeft = 1
	}
	sub := remaining / time.Duration(strategiesLeft)
	if sub < floor {
		sub = floor
	}
	if sub > remaining {
		sub = remaining
	}
	return sub
}

func deadlineOf(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	// No deadline: grant a generous default budget.
	return time.Now().Add(5 * time.Minute)
}

// defaultStrategies is the production strategy order: strict network
// quiescence, then DOM-content-ready plus a settle delay, then a relaxed
// request-idle window.
func defaultStrategies(settle time.Duration) []Strategy {
	return []Strategy{
		{
			Name: "network-quiescence",
			Wait: func(ctx context.Context, page *rod.Page) error {
				return page.Context(ctx).WaitIdle(time.Minute)
			},
		},
		{
			Name: "dom-ready-settle",
			Wait: func(ctx context.Context, page *rod.Page) error {
				if err := page.Context(ctx).WaitLoad(); err != nil {
					return err
				}
				t := time.NewTimer(settle)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-t.C:
					return nil
				}
			},
		},
		{
			Name: "relaxed-network-idle",
			Wait: func(ctx context.Context, page *rod.Page) error {
				done := make(chan struct{})
				go func() {
					defer close(done)
					page.Context(ctx).WaitRequestIdle(800*time.Millisecond, nil, nil, nil)()
				}()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-done:
					return nil
				}
			},
		},
	}
}
