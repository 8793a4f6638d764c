// Package pipeline orchestrates one comparison request end to end: session
// checkout, navigation, optional authentication, extraction, the concurrent
// design-source fetch, and the final token comparison.
//
// Each request moves through an explicit phase machine
// (created, navigating, authenticating, extracting, comparing, done or
// failed). Recovery from session death creates a fresh run of the remaining
// phases on a replacement session, exactly once per request; it never
// mutates a shared page reference. The caller always receives exactly one
// of a report or a typed error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/maquette/auth"
	"github.com/hazyhaar/maquette/compare"
	"github.com/hazyhaar/maquette/designsource"
	"github.com/hazyhaar/maquette/extract"
	"github.com/hazyhaar/maquette/horosafe"
	"github.com/hazyhaar/maquette/navigate"
	"github.com/hazyhaar/maquette/report"
	"github.com/hazyhaar/maquette/session"
	"github.com/hazyhaar/maquette/token"
)

// Phase is one step of the request state machine.
type Phase string

const (
	PhaseCreated        Phase = "created"
	PhaseNavigating     Phase = "navigating"
	PhaseAuthenticating Phase = "authenticating"
	PhaseExtracting     Phase = "extracting"
	PhaseComparing      Phase = "comparing"
	PhaseDone           Phase = "done"
	PhaseFailed         Phase = "failed"
)

// Request is one comparison request. Immutable once submitted.
type Request struct {
	SourceRef         string           `json:"source_ref"`
	NodeRef           string           `json:"node_ref,omitempty"`
	ImplementationURL string           `json:"implementation_url"`
	Credentials       auth.Credentials `json:"credentials,omitempty"`

	// Viewport and UserAgent override the configured defaults when set.
	Viewport  *Viewport `json:"viewport,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`

	// Timeout overrides the configured request deadline when positive.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Screenshot requests a best-effort full-page capture.
	Screenshot bool `json:"screenshot,omitempty"`
}

// sessionPool is the slice of the pool API the runner drives. Satisfied by
// *session.Pool.
type sessionPool interface {
	Acquire(ctx context.Context) (*session.Session, error)
	Release(s *session.Session)
	Replace(ctx context.Context, s *session.Session) (*session.Session, error)
	Shutdown(ctx context.Context) error
}

// Runner executes comparison requests. Safe for concurrent use; the session
// pool is the shared resource underneath.
type Runner struct {
	cfg    Config
	pool   sessionPool
	nav    *navigate.Navigator
	auth   *auth.Authenticator
	ext    *extract.Extractor
	design *designsource.Client
	store  *report.Store
	log    *slog.Logger

	// extractImpl, fetchDesign, fetchHTML and phases are swappable for tests.
	extractImpl func(ctx context.Context, req Request) (*extraction, error)
	fetchDesign func(ctx context.Context, req Request) (*token.Document, error)
	fetchHTML   func(ctx context.Context, rawURL string) ([]byte, error)
	phases      func(ctx context.Context, sess *session.Session, req Request, skipAuth bool) (*extraction, error)
}

// NewRunner wires a Runner. store may be nil (reports are then not
// persisted).
func NewRunner(cfg Config, pool *session.Pool, store *report.Store) *Runner {
	cfg.defaults()
	r := &Runner{
		cfg:    cfg,
		pool:   pool,
		nav:    navigate.New(cfg.Navigate),
		auth:   auth.New(cfg.Auth),
		ext:    extract.New(cfg.Extract),
		design: designsource.New(cfg.Design, nil),
		store:  store,
		log:    cfg.Logger,
	}
	r.extractImpl = r.extractImplementation
	r.fetchDesign = func(ctx context.Context, req Request) (*token.Document, error) {
		return r.design.FetchTokens(ctx, req.SourceRef, req.NodeRef)
	}
	r.fetchHTML = fetchRawHTML
	r.phases = r.runPhases
	return r
}

// extraction is the implementation-side output of the browser phases.
type extraction struct {
	doc          *token.Document
	screenshot   []byte
	degradations []string
}

// RunComparison is the single externally callable operation: it extracts the
// implementation document, fetches the design document concurrently,
// compares them, and returns the report. On failure the returned error is a
// *TypedError; exactly one of report or error is non-nil.
func (r *Runner) RunComparison(ctx context.Context, req Request) (*report.Report, error) {
	if req.SourceRef == "" {
		return nil, typed(KindInvalidInput, "source ref required", nil)
	}
	if err := r.cfg.URLPolicy.Validate(req.ImplementationURL); err != nil {
		return nil, typed(KindInvalidInput, "implementation url rejected", err)
	}

	timeout := r.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.log.Info("pipeline: request started",
		"source", req.SourceRef, "url", req.ImplementationURL, "timeout", timeout)

	// The design fetch has no browser dependency; run it alongside the
	// extraction phases.
	type designResult struct {
		doc *token.Document
		err error
	}
	designCh := make(chan designResult, 1)
	go func() {
		doc, err := r.fetchDesign(ctx, req)
		designCh <- designResult{doc, err}
	}()

	ext, err := r.extractImpl(ctx, req)
	if err != nil {
		r.logPhase(req, PhaseFailed)
		return nil, typed(classify(err), "implementation extraction", err)
	}

	dres := <-designCh
	if dres.err != nil {
		r.logPhase(req, PhaseFailed)
		return nil, typed(classify(dres.err), "design source fetch", dres.err)
	}

	r.logPhase(req, PhaseComparing)
	result, err := compare.Compare(dres.doc, ext.doc, compare.Options{Weights: r.cfg.Weights})
	if err != nil {
		r.logPhase(req, PhaseFailed)
		return nil, typed(classify(err), "comparison", err)
	}

	rep := &report.Report{
		SourceRef:         dres.doc.Metadata.Source,
		ImplementationURL: req.ImplementationURL,
		Result:            result,
		Degradations:      ext.degradations,
		Screenshot:        ext.screenshot,
	}
	if r.store != nil {
		if err := r.store.Insert(ctx, rep); err != nil {
			// Persistence is not part of the comparison contract.
			r.log.Warn("pipeline: report not persisted", "error", err)
		}
	}

	r.logPhase(req, PhaseDone)
	r.log.Info("pipeline: request done", "source", req.SourceRef, "aggregate", result.Aggregate)
	return rep, nil
}

// ExtractTokens extracts the implementation-side token document without a
// comparison. Same browser phases and recovery protocol as RunComparison.
func (r *Runner) ExtractTokens(ctx context.Context, rawURL string, timeout time.Duration) (*token.Document, error) {
	if err := r.cfg.URLPolicy.Validate(rawURL); err != nil {
		return nil, typed(KindInvalidInput, "url rejected", err)
	}
	if timeout <= 0 {
		timeout = r.cfg.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.extractImpl(ctx, Request{ImplementationURL: rawURL})
	if err != nil {
		return nil, typed(classify(err), "extraction", err)
	}
	return out.doc, nil
}

// extractImplementation picks the extraction path: when StaticFirst is set
// and the request needs neither authentication nor a screenshot, a plain
// HTTP fetch is tried first and the browser is skipped if the raw HTML
// alone yields a usable token set.
func (r *Runner) extractImplementation(ctx context.Context, req Request) (*extraction, error) {
	if out := r.staticFastPath(ctx, req); out != nil {
		return out, nil
	}
	return r.browserExtraction(ctx, req)
}

// staticFastPath returns a browserless extraction, or nil when the browser
// is needed after all. Never fails the request; any problem here just
// falls through to the browser path.
func (r *Runner) staticFastPath(ctx context.Context, req Request) *extraction {
	if !r.cfg.StaticFirst || req.Screenshot || req.Credentials != (auth.Credentials{}) {
		return nil
	}
	body, err := r.fetchHTML(ctx, req.ImplementationURL)
	if err != nil || !extract.IsSufficient(body) {
		return nil
	}
	doc, err := extract.StaticExtract(body, req.ImplementationURL, r.cfg.Extract.Limits)
	if err != nil || !staticUsable(doc) {
		return nil
	}
	r.log.Info("pipeline: static extraction sufficient, browser skipped",
		"url", req.ImplementationURL, "elements", len(doc.Elements))
	return &extraction{doc: doc}
}

// staticUsable guards against server-rendered pages whose styling lives in
// external stylesheets: the static pass only sees inline and <style> CSS,
// so it must have found real tokens to stand in for the browser.
func staticUsable(doc *token.Document) bool {
	return doc != nil && len(doc.Elements) >= 5 && len(doc.ColorPalette) > 0 &&
		(len(doc.Typography.FontSizes) > 0 || len(doc.Spacing) > 0)
}

func fetchRawHTML(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pipeline: fetch returned %d", resp.StatusCode)
	}
	return horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
}

// botProtectionError marks a session death caused by login submission.
type botProtectionError struct{ cause error }

func (e *botProtectionError) Error() string { return e.cause.Error() }
func (e *botProtectionError) Unwrap() error { return e.cause }

// browserExtraction drives the browser phases for one request. A
// session-death signal mid-phase triggers exactly one replace-and-rerun of
// the remaining phases; a second death is terminal.
func (r *Runner) browserExtraction(ctx context.Context, req Request) (*extraction, error) {
	sess, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	recovered := false
	skipAuth := false
	var carried []string

	for {
		out, err := r.phases(ctx, sess, req, skipAuth)
		if err == nil {
			out.degradations = append(carried, out.degradations...)
			r.pool.Release(sess)
			return out, nil
		}

		var bot *botProtectionError
		isBot := errors.As(err, &bot)
		if (session.DeathSignal(err) || isBot) && !recovered {
			recovered = true
			if isBot {
				// Degrade to public content on the fresh session.
				skipAuth = true
				carried = append(carried, "authentication triggered bot protection; extracted public content")
				r.log.Warn("pipeline: bot protection suspected, degrading",
					"url", req.ImplementationURL, "error", bot.cause)
			} else {
				r.log.Warn("pipeline: session died, replacing",
					"session", sess.ID, "error", err)
			}
			ns, rerr := r.pool.Replace(ctx, sess)
			if rerr != nil {
				return nil, rerr
			}
			sess = ns
			continue
		}

		// Terminal: hand the session back through validation.
		r.pool.Release(sess)
		if session.DeathSignal(err) {
			return nil, fmt.Errorf("%w: session died twice: %v", extract.ErrExtractionFailed, err)
		}
		return nil, err
	}
}

// runPhases runs navigate, authenticate, extract, and screenshot on one
// session. Auth and screenshot failures degrade; navigation and extraction
// failures propagate.
func (r *Runner) runPhases(ctx context.Context, sess *session.Session, req Request, skipAuth bool) (*extraction, error) {
	out := &extraction{}

	page, err := sess.Page(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	vp := r.cfg.Viewport
	if req.Viewport != nil {
		vp = *req.Viewport
	}
	if err := session.SetViewport(page, vp.Width, vp.Height); err != nil {
		return nil, err
	}
	if ua := r.userAgent(req); ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return nil, err
		}
	}

	creds := req.Credentials
	if skipAuth {
		creds = auth.Credentials{}
	}
	if creds.Type == auth.TypeBasic && creds.Complete() {
		stop, err := r.auth.PrepareBasic(sess.Browser(), creds)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	r.logPhase(req, PhaseNavigating)
	if err := r.nav.Navigate(ctx, page, req.ImplementationURL); err != nil {
		return nil, err
	}

	if creds.Complete() && creds.Type == auth.TypeForm {
		r.logPhase(req, PhaseAuthenticating)
		st, aerr := r.auth.Authenticate(ctx, page, creds)
		switch st {
		case auth.StatusBotProtection:
			return nil, &botProtectionError{cause: aerr}
		case auth.StatusFailed:
			out.degradations = append(out.degradations,
				fmt.Sprintf("authentication failed, extracted public content: %v", aerr))
		case auth.StatusSkipped:
			out.degradations = append(out.degradations, "authentication skipped: no login form found")
		}
	} else if !creds.Complete() && req.Credentials != (auth.Credentials{}) && !skipAuth {
		out.degradations = append(out.degradations, "authentication skipped: incomplete credentials")
	}

	r.logPhase(req, PhaseExtracting)
	doc, err := r.ext.Extract(ctx, page, req.ImplementationURL)
	if err != nil {
		return nil, err
	}
	out.doc = doc

	if req.Screenshot {
		if shot := r.ext.Screenshot(ctx, page); shot != nil {
			out.screenshot = shot
		} else {
			out.degradations = append(out.degradations, "screenshot omitted: capture failed")
		}
	}
	return out, nil
}

func (r *Runner) userAgent(req Request) string {
	if req.UserAgent != "" {
		return req.UserAgent
	}
	return r.cfg.UserAgent
}

func (r *Runner) logPhase(req Request, p Phase) {
	r.log.Debug("pipeline: phase", "url", req.ImplementationURL, "phase", string(p))
}

// Shutdown drains the underlying session pool.
func (r *Runner) Shutdown(ctx context.Context) error {
	return r.pool.Shutdown(ctx)
}
