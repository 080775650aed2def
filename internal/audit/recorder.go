package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecorderOptions configures a Recorder for one observation phase.
type RecorderOptions struct {
	Label string
	// Target is the exact URL kept when OnlyTarget is set.
	Target     string
	OnlyTarget bool
	// TenantHeaders overrides DefaultTenantHeaders.
	TenantHeaders []string
	Logger        *zap.Logger
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// Recorder is the append-only Hit log of one observation phase. Events are
// appended in the order Observe is called.
type Recorder struct {
	opts   RecorderOptions
	logger *zap.Logger
	start  time.Time

	mu         sync.Mutex
	hits       []Hit
	lastOffset int64
	frozen     bool
}

// NewRecorder starts the phase clock and returns an empty Recorder.
func NewRecorder(opts RecorderOptions) *Recorder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		opts:   opts,
		logger: logger.Named("recorder").With(zap.String("label", opts.Label)),
		start:  opts.Now(),
		hits:   make([]Hit, 0),
	}
}

// Label returns the phase label stamped on every Hit.
func (r *Recorder) Label() string { return r.opts.Label }

// Observe classifies ev and appends it to the log. Malformed headers degrade to
// empty classification fields.
func (r *Recorder) Observe(ev RequestEvent) {
	if r.opts.OnlyTarget && ev.URL != r.opts.Target {
		return
	}

	c := ClassifyHeaders(ev.Headers, r.opts.TenantHeaders)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}

	offset := r.opts.Now().Sub(r.start).Milliseconds()
	// Wall clocks can step backwards; the log must not.
	if offset < r.lastOffset {
		offset = r.lastOffset
	}
	r.lastOffset = offset

	hit := Hit{
		OffsetMillis: offset,
		Label:        r.opts.Label,
		Method:       ev.Method,
		URL:          ev.URL,
		HasBearer:    c.HasBearer,
		BearerMasked: c.BearerMasked,
		BearerHash:   c.BearerHash,
		BearerToken:  c.BearerToken,
		TenantID:     c.TenantID,
		TenantHash:   c.TenantHash,
		Origin:       c.Origin,
		Referer:      c.Referer,
	}
	r.hits = append(r.hits, hit)

	r.logger.Debug("Request observed",
		zap.Int64("offset_ms", offset),
		zap.String("method", ev.Method),
		zap.String("url", ev.URL),
		zap.Bool("bearer", c.HasBearer),
		zap.Stringp("bearer_hash", c.BearerHash),
		zap.Stringp("tenant_hash", c.TenantHash),
	)
}

// Freeze ends the phase. Events arriving afterwards are ignored.
func (r *Recorder) Freeze() []Hit {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
	return r.Hits()
}

// Hits returns a copy of the log in arrival order.
func (r *Recorder) Hits() []Hit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Hit, len(r.hits))
	copy(out, r.hits)
	return out
}

// Len returns the number of recorded hits.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hits)
}
