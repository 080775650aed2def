package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/clientstate"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/retry"
)

// ErrElementNotFound is returned by Login when no candidate selector matched.
var ErrElementNotFound = errors.New("no candidate selector matched an element")

// Session is one browser tab.
type Session struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navigation retry.Policy
	onClose    func(id string)
	closeOnce  sync.Once
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// run executes actions on the tab. The tab context carries the CDP target;
// ctx and timeout only bound this call.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(s.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// OnRequest delivers every outgoing request of the tab to fn until stop is
// called. fn runs on the CDP event goroutine and must not block.
func (s *Session) OnRequest(fn func(audit.RequestEvent)) (stop func()) {
	listenerCtx, cancel := context.WithCancel(s.ctx)
	chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || e.Request == nil {
			return
		}
		fn(requestEvent(e.Request))
	})
	return cancel
}

func requestEvent(req *network.Request) audit.RequestEvent {
	return audit.RequestEvent{
		Method:  req.Method,
		URL:     requestURL(req),
		Headers: convertHeaders(req.Headers),
	}
}

// requestURL restores the fragment CDP reports separately.
func requestURL(req *network.Request) string {
	return req.URL + req.URLFragment
}

func convertHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// Navigate opens url, retrying per the session's navigation policy. Each
// attempt is bounded by timeout.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.navigation.Do(ctx, s.logger, func(ctx context.Context, attempt int) error {
		s.logger.Debug("Navigating", zap.String("url", url), zap.Int("attempt", attempt))
		if err := s.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigate to %s: %w", url, err)
		}
		return nil
	})
}

// Wait dwells on the page while events accumulate.
func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("browser tab closed: %w", s.ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Snapshot reads both web storages of the current origin and every cookie of
// the browser context. A storage the page refuses to expose stays nil.
func (s *Session) Snapshot(ctx context.Context) (clientstate.Snapshot, error) {
	var dump storageDump
	var cookies []*network.Cookie

	err := s.run(ctx, 15*time.Second,
		chromedp.Evaluate(storageScript, &dump),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return clientstate.Snapshot{}, fmt.Errorf("failed to read client state: %w", err)
	}

	snap := clientstate.Snapshot{
		TakenAt:        time.Now(),
		LocalStorage:   dump.Local,
		SessionStorage: dump.Session,
		Cookies:        make([]clientstate.Cookie, 0, len(cookies)),
	}
	for _, c := range cookies {
		snap.Cookies = append(snap.Cookies, clientstate.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return snap, nil
}

// Login fills the first matching username and password fields and clicks the
// first matching submit control. It does not wait for the login to settle.
func (s *Session) Login(ctx context.Context, user, password string, sel config.LoginSelectors) error {
	userSel, err := s.firstMatch(ctx, "username", sel.Username)
	if err != nil {
		return err
	}
	if err := s.run(ctx, 10*time.Second, chromedp.Clear(userSel, chromedp.ByQuery), chromedp.SendKeys(userSel, user, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}

	passSel, err := s.firstMatch(ctx, "password", sel.Password)
	if err != nil {
		return err
	}
	if err := s.run(ctx, 10*time.Second, chromedp.Clear(passSel, chromedp.ByQuery), chromedp.SendKeys(passSel, password, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}

	submitSel, err := s.firstMatch(ctx, "submit", sel.Submit)
	if err != nil {
		return err
	}
	if err := s.run(ctx, 10*time.Second, chromedp.Click(submitSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click submit: %w", err)
	}
	return nil
}

// firstMatch returns a CSS selector for the first candidate present on the
// page. Label and text candidates are resolved in the page and tagged with a
// marker attribute so they can be addressed by CSS afterwards.
func (s *Session) firstMatch(ctx context.Context, field string, candidates []string) (string, error) {
	for _, candidate := range candidates {
		c := parseCandidate(candidate)

		var found bool
		var err error
		switch c.kind {
		case candidateCSS:
			var nodes []*cdp.Node
			err = s.run(ctx, 5*time.Second, chromedp.Nodes(c.value, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
			found = len(nodes) > 0
		default:
			err = s.run(ctx, 5*time.Second, chromedp.Evaluate(markScript(c, field), &found))
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.Debug("Selector probe failed", zap.String("field", field), zap.String("candidate", candidate), zap.Error(err))
			continue
		}
		if found {
			s.logger.Info("Login field found", zap.String("field", field), zap.String("candidate", candidate))
			return c.selector(field), nil
		}
	}
	return "", fmt.Errorf("%s: %w", field, ErrElementNotFound)
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, 20*time.Second, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			s.cancel()
			err = ctx.Err()
		}
		if s.onClose != nil {
			s.onClose(s.id)
		}
		s.logger.Debug("Session closed")
	})
	return err
}
