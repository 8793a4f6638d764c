package navigate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

// stubNavigator builds a Navigator whose page-load and strategies are
// replaced so no browser is required.
func stubNavigator(cfg Config, strategies []Strategy) *Navigator {
	cfg.strategies = strategies
	n := New(cfg)
	n.goTo = func(ctx context.Context, page *rod.Page, rawURL string) error {
		return nil
	}
	return n
}

func TestNavigateFirstStrategyWins(t *testing.T) {
	var tried []string
	n := stubNavigator(Config{}, []Strategy{
		{Name: "a", Wait: func(ctx context.Context, p *rod.Page) error {
			tried = append(tried, "a")
			return nil
		}},
		{Name: "b", Wait: func(ctx context.Context, p *rod.Page) error {
			tried = append(tried, "b")
			return nil
		}},
	})

	if err := n.Navigate(context.Background(), nil, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if len(tried) != 1 || tried[0] != "a" {
		t.Errorf("tried %v, want only the first strategy", tried)
	}
}

func TestNavigateFallsThroughInOrder(t *testing.T) {
	var tried []string
	n := stubNavigator(Config{}, []Strategy{
		{Name: "a", Wait: func(ctx context.Context, p *rod.Page) error {
			tried = append(tried, "a")
			return errors.New("no quiescence")
		}},
		{Name: "b", Wait: func(ctx context.Context, p *rod.Page) error {
			tried = append(tried, "b")
			return errors.New("still loading")
		}},
		{Name: "c", Wait: func(ctx context.Context, p *rod.Page) error {
			tried = append(tried, "c")
			return nil
		}},
	})

	if err := n.Navigate(context.Background(), nil, "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if len(tried) != 3 {
		t.Errorf("tried %v, want all three in order", tried)
	}
}

func TestNavigateAllStrategiesFail(t *testing.T) {
	n := stubNavigator(Config{}, []Strategy{
		{Name: "a", Wait: func(ctx context.Context, p *rod.Page) error {
			return errors.New("no quiescence")
		}},
		{Name: "b", Wait: func(ctx context.Context, p *rod.Page) error {
			return errors.New("still loading")
		}},
	})

	err := n.Navigate(context.Background(), nil, "https://example.com")
	if !errors.Is(err, ErrNavigationFailed) {
		t.Fatalf("got %v, want ErrNavigationFailed", err)
	}
}

func TestNavigateRespectsDeadline(t *testing.T) {
	// Strategies that never complete on their own: the deadline must bound
	// the whole call, with only a small overshoot.
	hang := func(ctx context.Context, p *rod.Page) error {
		<-ctx.Done()
		return ctx.Err()
	}
	n := stubNavigator(Config{SubTimeoutFloor: time.Millisecond}, []Strategy{
		{Name: "a", Wait: hang},
		{Name: "b", Wait: hang},
		{Name: "c", Wait: hang},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Navigate(ctx, nil, "https://example.com")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNavigationFailed) {
		t.Fatalf("got %v, want ErrNavigationFailed", err)
	}
	if elapsed > time.Second {
		t.Errorf("navigation overshot deadline by %v", elapsed-100*time.Millisecond)
	}
}

func TestNavigateDeathSignalPassesThrough(t *testing.T) {
	dead := errors.New("cdp connection closed")
	n := stubNavigator(Config{}, []Strategy{
		{Name: "a", Wait: func(ctx context.Context, p *rod.Page) error {
			return dead
		}},
		{Name: "b", Wait: func(ctx context.Context, p *rod.Page) error {
			t.Error("strategy after death signal should not run")
			return nil
		}},
	})

	err := n.Navigate(context.Background(), nil, "https://example.com")
	if errors.Is(err, ErrNavigationFailed) {
		t.Fatal("death signal was wrapped as navigation failure")
	}
	if err == nil || err.Error() != dead.Error() {
		t.Fatalf("got %v, want the raw death signal", err)
	}
}

func TestSubTimeout(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		left      int
		floor     time.Duration
		want      time.Duration
	}{
		{90 * time.Second, 3, 45 * time.Second, 45 * time.Second},
		{300 * time.Second, 3, 45 * time.Second, 100 * time.Second},
		{10 * time.Second, 3, 45 * time.Second, 10 * time.Second},
		{60 * time.Second, 1, 45 * time.Second, 60 * time.Second},
	}
	for _, c := range cases {
		if got := subTimeout(c.remaining, c.left, c.floor); got != c.want {
			t.Errorf("subTimeout(%v, %d, %v) = %v, want %v", c.remaining, c.left, c.floor, got, c.want)
		}
	}
}
