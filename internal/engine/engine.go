package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/capture"
	"github.com/ramonfullstack/automation-scripts/internal/clientstate"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/report"
	"github.com/ramonfullstack/automation-scripts/internal/store"
)

// -- Interfaces for Dependency Inversion --

// Session is one browser tab driven by the engine.
type Session interface {
	OnRequest(fn func(audit.RequestEvent)) (stop func())
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Wait(ctx context.Context, d time.Duration) error
	Login(ctx context.Context, user, password string, sel config.LoginSelectors) error
	Snapshot(ctx context.Context) (clientstate.Snapshot, error)
	Screenshot(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// SessionFactory opens a fresh tab for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// Store mirrors a run into the hit-log database.
type Store interface {
	BeginRun(ctx context.Context, run store.Run) error
	PersistHits(ctx context.Context, runID uuid.UUID, phase int, hits []audit.Hit) error
	RecordCapture(ctx context.Context, runID uuid.UUID, pair capture.Pair) error
}

// Reporter renders each section of a run as soon as it is known.
type Reporter interface {
	Summary(s report.Summary) error
	Targets(t report.Targets) error
	Storage(r clientstate.Report) error
}

// Phase titles.
const (
	TitleFrontend       = "Frontend"
	TitleSwagger        = "Swagger"
	TitleERP            = "ERP after login (all requests)"
	TitleFrontendTarget = "Target endpoint via Frontend"
	TitleERPTarget      = "Target endpoint only (via ERP)"
)

// Phase labels stamped on every Hit.
const (
	LabelFrontend = "frontend"
	LabelSwagger  = "swagger"
	LabelERP      = "erp-all"
)

// PhaseResult is the frozen log of one observation phase.
type PhaseResult struct {
	Label string
	Hits  []audit.Hit
}

// Result describes one completed run.
type Result struct {
	RunID    uuid.UUID
	Phases   []PhaseResult
	Storage  *clientstate.Report
	Targets  *report.Targets
	Captured int
	// ERPError is set when login failed; the run still reports what it saw.
	ERPError error
}

// Engine runs the audit phases against one browser tab per run.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	sessions SessionFactory
	sink     capture.Sink
	store    Store
	reporter Reporter
	filter   audit.TargetFilter
	now      func() time.Time
}

// New creates an Engine. st may be nil when the hit-log database is disabled.
func New(cfg *config.Config, logger *zap.Logger, sessions SessionFactory, sink capture.Sink, st Store, reporter Reporter) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "audit_engine")),
		sessions: sessions,
		sink:     sink,
		store:    st,
		reporter: reporter,
		filter: audit.TargetFilter{
			Matcher: audit.NewMatcher(cfg.Target.URL, cfg.Target.Hints),
			Method:  cfg.Target.Method,
		},
		now: time.Now,
	}
}

// Run executes once, or repeatedly on the configured interval until ctx is
// cancelled. Every repetition starts with fresh recorders and a fresh tab;
// only the capture sink accumulates across repetitions.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.Schedule.Mode != config.ScheduleInterval {
		_, err := e.RunOnce(ctx)
		return err
	}

	e.logger.Info("Running on an interval", zap.Duration("interval", e.cfg.Schedule.Interval))
	ticker := time.NewTicker(e.cfg.Schedule.Interval)
	defer ticker.Stop()

	for {
		if _, err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Error("Audit run failed, waiting for the next one", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("Interval schedule stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs the frontend, swagger and ERP phases in order on one tab.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.New()}
	logger := e.logger.With(zap.String("run_id", res.RunID.String()))

	logger.Info("Starting audit run",
		zap.String("target", e.cfg.Target.URL),
		zap.String("erp_user", e.cfg.ERP.User),
		zap.Bool("headless", e.cfg.Browser.Headless),
	)

	st := e.store
	if st != nil {
		meta := store.Run{ID: res.RunID, TargetURL: e.cfg.Target.URL, StartedAt: e.now()}
		if err := st.BeginRun(ctx, meta); err != nil {
			logger.Error("Hit-log database unavailable for this run", zap.Error(err))
			st = nil
		}
	}

	sess, err := e.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			logger.Warn("Failed to close browser session", zap.Error(err))
		}
	}()

	r := &run{Engine: e, logger: logger, sess: sess, store: st, res: res}

	if e.cfg.Frontend.URL != "" {
		hits, err := r.observePage(ctx, LabelFrontend, TitleFrontend, e.cfg.Frontend)
		if err != nil {
			return res, err
		}
		t := report.SelectTargets(TitleFrontendTarget, e.filter, hits, e.cfg.Report.TargetLimit)
		r.emit("targets", e.reporter.Targets(t))
	}

	if e.cfg.Swagger.URL != "" {
		if _, err := r.observePage(ctx, LabelSwagger, TitleSwagger, e.cfg.Swagger); err != nil {
			return res, err
		}
	}

	if e.cfg.ERP.Enabled {
		if err := r.erp(ctx); err != nil {
			return res, err
		}
	} else {
		logger.Info("ERP phase disabled, skipping")
	}

	logger.Info("Audit run complete", zap.Int("captured", res.Captured), zap.Bool("erp_failed", res.ERPError != nil))
	return res, nil
}

// run carries per-run state through the phases.
type run struct {
	*Engine
	logger *zap.Logger
	sess   Session
	store  Store
	res    *Result
}

func (r *run) recorder(label string, onlyTarget bool) *audit.Recorder {
	return audit.NewRecorder(audit.RecorderOptions{
		Label:         label,
		Target:        r.cfg.Target.URL,
		OnlyTarget:    onlyTarget,
		TenantHeaders: r.cfg.Target.TenantHeaders,
		Logger:        r.logger,
		Now:           r.now,
	})
}

// observePage is an observe-only phase. A navigation failure is logged and
// the phase reports whatever arrived before it.
func (r *run) observePage(ctx context.Context, label, title string, page config.PageConfig) ([]audit.Hit, error) {
	logger := r.logger.With(zap.String("phase", label))
	rec := r.recorder(label, false)
	stop := r.sess.OnRequest(rec.Observe)

	logger.Info("Opening page", zap.String("url", page.URL))
	err := r.sess.Navigate(ctx, page.URL, page.NavigationTimeout)
	switch {
	case err != nil && ctx.Err() != nil:
	case err != nil:
		logger.Warn("Could not open page", zap.String("url", page.URL), zap.Error(err))
		err = nil
	default:
		logger.Info("Observing traffic", zap.Duration("window", page.Observe))
		err = r.sess.Wait(ctx, page.Observe)
		if err == nil && page.InteractiveWait > 0 {
			logger.Info("Waiting for interactive use", zap.Duration("window", page.InteractiveWait))
			err = r.sess.Wait(ctx, page.InteractiveWait)
		}
	}

	stop()
	hits := r.finish(ctx, label, title, rec)
	return hits, err
}

// finish freezes a recorder, reports it and mirrors it to the database.
func (r *run) finish(ctx context.Context, label, title string, rec *audit.Recorder) []audit.Hit {
	hits := rec.Freeze()
	phase := len(r.res.Phases)
	r.res.Phases = append(r.res.Phases, PhaseResult{Label: label, Hits: hits})
	r.emit("summary", r.reporter.Summary(report.Summarize(title, hits, r.cfg.Report.RecentLimit)))

	if r.store != nil {
		if err := r.store.PersistHits(context.WithoutCancel(ctx), r.res.RunID, phase, hits); err != nil {
			r.logger.Error("Failed to persist hits", zap.String("phase", label), zap.Error(err))
		}
	}
	return hits
}

func (r *run) emit(section string, err error) {
	if err != nil {
		r.logger.Error("Failed to write report section", zap.String("section", section), zap.Error(err))
	}
}

// erp logs in, opens the stock screen, observes, audits client storage and
// captures every target request that carried both a tenant and a token.
func (r *run) erp(ctx context.Context) error {
	cfg := r.cfg.ERP
	logger := r.logger.With(zap.String("phase", LabelERP))
	rec := r.recorder(LabelERP, r.cfg.Target.OnlyTarget)
	stop := r.sess.OnRequest(rec.Observe)

	if err := r.login(ctx, logger); err != nil {
		stop()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("ERP login failed, ending the ERP phase", zap.Error(err))
		r.res.ERPError = err
		r.screenshot(ctx, logger)
		r.finish(ctx, LabelERP, TitleERP, rec)
		return nil
	}

	stockURL := StockURL(cfg.URL, cfg.StockRoute)
	logger.Info("Opening stock screen", zap.String("url", stockURL))
	if err := r.sess.Navigate(ctx, stockURL, cfg.NavigationTimeout); err != nil {
		if ctx.Err() != nil {
			stop()
			return ctx.Err()
		}
		logger.Warn("Could not open the stock screen, observing anyway", zap.Error(err))
	}

	logger.Info("Observing traffic", zap.Duration("window", cfg.Observe))
	waitErr := r.sess.Wait(ctx, cfg.Observe)
	stop()
	hits := r.finish(ctx, LabelERP, TitleERP, rec)
	if waitErr != nil {
		return waitErr
	}

	if cfg.AuditStorage {
		r.auditStorage(ctx, logger)
	}

	t := report.SelectTargets(TitleERPTarget, r.filter, hits, r.cfg.Report.TargetLimit)
	r.res.Targets = &t
	r.emit("targets", r.reporter.Targets(t))
	r.capture(ctx, logger, t)
	return nil
}

func (r *run) login(ctx context.Context, logger *zap.Logger) error {
	cfg := r.cfg.ERP
	loginURL := LoginURL(cfg.URL)

	logger.Info("Logging in to the ERP", zap.String("url", loginURL), zap.String("user", cfg.User))
	if err := r.sess.Navigate(ctx, loginURL, cfg.NavigationTimeout); err != nil {
		return err
	}
	if err := r.sess.Wait(ctx, cfg.SettleWait); err != nil {
		return err
	}
	if err := r.sess.Login(ctx, cfg.User, cfg.Password, cfg.Selectors); err != nil {
		return err
	}
	logger.Info("Waiting for the login to complete", zap.Duration("wait", cfg.LoginWait))
	if err := r.sess.Wait(ctx, cfg.LoginWait); err != nil {
		return err
	}
	logger.Info("Login complete")
	return nil
}

func (r *run) screenshot(ctx context.Context, logger *zap.Logger) {
	path := r.cfg.Browser.ErrorScreenshot
	if path == "" {
		return
	}
	if err := r.sess.Screenshot(ctx, path); err != nil {
		logger.Warn("Failed to save error screenshot", zap.Error(err))
		return
	}
	logger.Info("Screenshot saved", zap.String("path", path))
}

func (r *run) auditStorage(ctx context.Context, logger *zap.Logger) {
	snap, err := r.sess.Snapshot(ctx)
	if err != nil {
		logger.Warn("Could not read client storage", zap.Error(err))
		return
	}
	rep := clientstate.Classify(snap)
	r.res.Storage = &rep
	if flagged := rep.Flagged(); len(flagged) > 0 {
		logger.Info("Client storage holds credential-like entries", zap.Int("count", len(flagged)))
	}
	r.emit("storage", r.reporter.Storage(rep))
}

// capture writes each displayed target hit to the sink. Write failures are
// logged and the next hit is tried.
func (r *run) capture(ctx context.Context, logger *zap.Logger, t report.Targets) {
	for _, th := range t.Hits {
		pair := capture.Pair{TenantID: th.Tenant(), Token: th.Token(), URL: th.URL}
		ok, err := r.sink.Capture(ctx, pair)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error("Failed to save tenant/token pair", zap.String("url", th.URL), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		r.res.Captured++
		if r.store != nil {
			if err := r.store.RecordCapture(context.WithoutCancel(ctx), r.res.RunID, pair); err != nil {
				logger.Error("Failed to record capture", zap.Error(err))
			}
		}
	}
}
