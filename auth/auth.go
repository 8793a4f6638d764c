// Package auth performs best-effort login on a live page before extraction.
//
// Authentication is never fatal: whatever the outcome, the caller proceeds
// to extract the content that is visible. Basic credentials are injected at
// the transport level before navigation; form credentials are filled into
// the rendered login form with selector heuristics and a single
// fill-and-submit attempt.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/maquette/session"
)

// ErrAuthFailed is the non-fatal failure of a login attempt. Callers log it
// and continue with public content.
var ErrAuthFailed = errors.New("auth: authentication failed")

// ErrBotProtection marks a login attempt that killed the session outright,
// the signature of anti-automation defenses. Distinct from ErrAuthFailed so
// the pipeline can classify it, but equally non-fatal.
var ErrBotProtection = errors.New("auth: bot protection suspected")

// Type selects the authentication mechanism.
type Type string

const (
	TypeBasic Type = "basic"
	TypeForm  Type = "form"
)

// Credentials for one extraction request.
type Credentials struct {
	Type     Type   `json:"type" yaml:"type"`
	Username string `json:"username" yaml:"username"`
	Secret   string `json:"-" yaml:"secret"`
}

// Complete reports whether the credentials are fully specified. Incomplete
// credentials are skipped, never errored.
func (c Credentials) Complete() bool {
	if c.Username == "" || c.Secret == "" {
		return false
	}
	return c.Type == TypeBasic || c.Type == TypeForm
}

// Status is the terminal outcome of an authentication attempt.
type Status string

const (
	StatusAuthenticated Status = "authenticated"
	StatusSkipped       Status = "skipped"
	StatusFailed        Status = "failed"
	StatusBotProtection Status = "bot_protection"
)

// passwordSelectors are tried in order to locate a secret field. OTP-style
// inputs are included because some login flows present a one-time code field
// in place of a password.
var passwordSelectors = []string{
	`input[type="password"]`,
	`input[name="password"]`,
	`input[name*="pass" i]`,
	`input[placeholder*="password" i]`,
	`input[autocomplete="current-password"]`,
	`input[name*="otp" i]`,
	`input[name*="code" i]`,
	`input[placeholder*="code" i]`,
	`input[autocomplete="one-time-code"]`,
}

// usernameSelectors are tried in order to locate the identifier field.
var usernameSelectors = []string{
	`input[type="email"]`,
	`input[name="email"]`,
	`input[name="username"]`,
	`input[name*="user" i]`,
	`input[name*="login" i]`,
	`input[name*="email" i]`,
	`input[placeholder*="email" i]`,
	`input[placeholder*="username" i]`,
	`input[autocomplete="username"]`,
	`input[type="text"]`,
}

// errorBannerSelectors reveal an explicit login rejection.
var errorBannerSelectors = []string{
	`[class*="error" i]`,
	`[class*="alert" i]`,
	`[role="alert"]`,
	`[class*="invalid" i]`,
}

// authenticatedMarkers suggest a logged-in page.
var authenticatedMarkers = []string{
	`[class*="logout" i]`,
	`[href*="logout" i]`,
	`[class*="avatar" i]`,
	`[class*="account" i]`,
	`[data-testid*="user" i]`,
}

// Config configures the Authenticator.
type Config struct {
	// SubmitSettle is the pause after submit before polling completion
	// signals. Default: 1s.
	SubmitSettle time.Duration `yaml:"submit_settle"`

	// CompletionPoll is the interval between completion-signal checks.
	// Default: 500ms.
	CompletionPoll time.Duration `yaml:"completion_poll"`

	// CompletionBudget bounds the completion wait after submit when the
	// request deadline allows more. Default: 10s.
	CompletionBudget time.Duration `yaml:"completion_budget"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.SubmitSettle <= 0 {
		c.SubmitSettle = time.Second
	}
	if c.CompletionPoll <= 0 {
		c.CompletionPoll = 500 * time.Millisecond
	}
	if c.CompletionBudget <= 0 {
		c.CompletionBudget = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Authenticator logs in on a page. Stateless; safe for concurrent use.
type Authenticator struct {
	cfg Config
}

// New creates an Authenticator.
func New(cfg Config) *Authenticator {
	cfg.defaults()
	return &Authenticator{cfg: cfg}
}

// PrepareBasic installs transport-level credential injection on the browser.
// Must be called before navigation; HTTP basic challenges are answered
// automatically for the lifetime of the returned stop function.
func (a *Authenticator) PrepareBasic(browser *rod.Browser, creds Credentials) (stop func(), err error) {
	if creds.Type != TypeBasic || !creds.Complete() {
		return func() {}, nil
	}
	h := browser.HandleAuth(creds.Username, creds.Secret)
	return func() { _ = h() }, nil
}

// Authenticate performs one form-login attempt on an already-navigated page.
// One attempt only: on any failure it returns a non-fatal status and the
// caller extracts public content. Basic credentials return StatusSkipped
// here because they were handled pre-navigation.
func (a *Authenticator) Authenticate(ctx context.Context, page *rod.Page, creds Credentials) (Status, error) {
	log := a.cfg.Logger

	if !creds.Complete() {
		return StatusSkipped, nil
	}
	if creds.Type == TypeBasic {
		return StatusAuthenticated, nil
	}

	p := page.Context(ctx)

	passField, err := findFirst(p, passwordSelectors)
	if err != nil {
		log.Debug("auth: no password field found, skipping login")
		return StatusSkipped, nil
	}
	userField, err := findFirst(p, usernameSelectors)
	if err != nil {
		log.Debug("auth: no username field found, skipping login")
		return StatusSkipped, nil
	}

	startURL := pageURL(p)

	if err := fillField(userField, creds.Username); err != nil {
		return a.classify(err, "fill username")
	}
	if err := fillField(passField, creds.Secret); err != nil {
		return a.classify(err, "fill secret")
	}
	if err := a.submit(p, passField); err != nil {
		return a.classify(err, "submit")
	}

	select {
	case <-ctx.Done():
		return StatusFailed, fmt.Errorf("%w: %v", ErrAuthFailed, ctx.Err())
	case <-time.After(a.cfg.SubmitSettle):
	}

	st, err := a.awaitCompletion(ctx, p, startURL)
	if err != nil {
		return a.classify(err, "await completion")
	}
	log.Info("auth: form login finished", "status", st)
	return st, nil
}

// classify maps a low-level failure to a non-fatal status. Session death
// during login is the bot-protection signature.
func (a *Authenticator) classify(err error, step string) (Status, error) {
	if session.DeathSignal(err) {
		a.cfg.Logger.Warn("auth: session died during login", "step", step, "error", err)
		return StatusBotProtection, fmt.Errorf("%w: %s: %v", ErrBotProtection, step, err)
	}
	a.cfg.Logger.Warn("auth: login step failed", "step", step, "error", err)
	return StatusFailed, fmt.Errorf("%w: %s: %v", ErrAuthFailed, step, err)
}

// findFirst returns the first visible element matching any selector, in
// selector priority order. Non-blocking: absent selectors are skipped, not
// waited for.
func findFirst(p *rod.Page, selectors []string) (*rod.Element, error) {
	for _, sel := range selectors {
		has, el, err := p.Has(sel)
		if err != nil || !has {
			continue
		}
		if vis, err := el.Visible(); err == nil && vis {
			return el, nil
		}
	}
	return nil, fmt.Errorf("no visible element for %d selectors", len(selectors))
}

// fillField sets the value directly and fires synthetic input/change events
// so reactive frameworks observe the change.
func fillField(el *rod.Element, value string) error {
	_, err := el.Eval(`(v) => {
		this.focus();
		this.value = v;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, value)
	return err
}

// submit tries a submit button click, then a form submit, then Enter in the
// password field. First success wins.
func (a *Authenticator) submit(p *rod.Page, passField *rod.Element) error {
	for _, sel := range []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`form button`,
	} {
		has, el, err := p.Has(sel)
		if err != nil || !has {
			continue
		}
		if vis, err := el.Visible(); err == nil && vis {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
				return nil
			}
		}
	}

	if _, err := passField.Eval(`() => { if (this.form) { this.form.submit(); return true } return false }`); err == nil {
		return nil
	}

	return passField.Type(input.Enter)
}

// awaitCompletion races the post-submit signals: URL change, login-form
// disappearance, authenticated-content markers, or an explicit error banner.
// Whichever resolves first decides the status; budget exhaustion without any
// signal is a failure.
func (a *Authenticator) awaitCompletion(ctx context.Context, p *rod.Page, startURL string) (Status, error) {
	budget := a.cfg.CompletionBudget
	if d, ok := ctx.Deadline(); ok {
		if rem := time.Until(d); rem < budget {
			budget = rem
		}
	}
	deadline := time.Now().Add(budget)

	for {
		if u := pageURL(p); u != "" && u != startURL {
			return StatusAuthenticated, nil
		}
		if !hasVisible(p, passwordSelectors) {
			return StatusAuthenticated, nil
		}
		if hasVisible(p, authenticatedMarkers) {
			return StatusAuthenticated, nil
		}
		if hasVisible(p, errorBannerSelectors) {
			return StatusFailed, fmt.Errorf("%w: login rejected", ErrAuthFailed)
		}

		if time.Now().After(deadline) {
			return StatusFailed, fmt.Errorf("%w: no completion signal", ErrAuthFailed)
		}
		select {
		case <-ctx.Done():
			return StatusFailed, fmt.Errorf("%w: %v", ErrAuthFailed, ctx.Err())
		case <-time.After(a.cfg.CompletionPoll):
		}
	}
}

func hasVisible(p *rod.Page, selectors []string) bool {
	for _, sel := range selectors {
		has, el, err := p.Has(sel)
		if err != nil || !has {
			continue
		}
		if vis, err := el.Visible(); err == nil && vis {
			return true
		}
	}
	return false
}

func pageURL(p *rod.Page) string {
	info, err := p.Info()
	if err != nil || info == nil {
		return ""
	}
	return strings.TrimSpace(info.URL)
}
