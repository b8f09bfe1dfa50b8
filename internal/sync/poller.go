package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/mailbox"
	"github.com/cyberguard/cyberguard/internal/metrics"
	"github.com/cyberguard/cyberguard/internal/model"
)

const (
	// DefaultInterval is the time between scheduled inbox fetches.
	DefaultInterval = 10 * time.Second

	// DefaultFetchTimeout is the maximum time allowed for a single fetch.
	DefaultFetchTimeout = 20 * time.Second
)

// ErrStopped is returned by Refresh on a stopped or nil handle.
var ErrStopped = errors.New("poller stopped")

// FetchFunc retrieves the current inbox snapshot.
type FetchFunc func(ctx context.Context) ([]model.InboxMessage, error)

// UpdateFunc receives every delivered snapshot. It must not call Stop on
// its own handle, nor Refresh it.
type UpdateFunc func(msgs []model.InboxMessage)

// ErrorFunc receives every failed fetch, already wrapped in a
// *mailbox.FetchError.
type ErrorFunc func(err error)

// PollState represents the current state of a polling handle.
type PollState int

const (
	PollIdle PollState = iota
	PollRunning
	PollError
	PollStopped
)

// Status is a snapshot of a handle's progress.
type Status struct {
	State    PollState
	LastSync time.Time
	Error    error
}

type config struct {
	interval     time.Duration
	fetchTimeout time.Duration
	onError      ErrorFunc
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Option configures a Poller or a single handle.
type Option func(*config)

// WithInterval sets the time between scheduled fetches.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithOnError registers a callback for failed fetches.
func WithOnError(fn ErrorFunc) Option {
	return func(c *config) { c.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = logger.OrNop(l) }
}

// WithMetrics records poll cycles in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// Poller starts fixed-interval inbox polling loops. Each Start returns an
// independent Handle.
type Poller struct {
	defaults []Option
}

// New creates a Poller whose handles use opts unless Start overrides them.
func New(opts ...Option) *Poller {
	return &Poller{defaults: opts}
}

// Handle is one running polling loop.
type Handle struct {
	id       string
	cfg      config
	fetch    FetchFunc
	onUpdate UpdateFunc

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	done   chan struct{}

	// inFlight guards scheduled fetches only; manual refreshes ignore it.
	inFlight atomic.Bool
	seq      atomic.Uint64

	// mu is held for the whole of a delivery so Stop cannot return while
	// onUpdate is running.
	mu        gosync.Mutex
	stopped   bool
	delivered uint64
	status    Status
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id
}

// Status returns a copy of the handle's current status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Start runs one fetch immediately and then one per interval until the
// handle is stopped.
func (p *Poller) Start(fetch FetchFunc, onUpdate UpdateFunc, opts ...Option) *Handle {
	cfg := config{
		interval:     DefaultInterval,
		fetchTimeout: DefaultFetchTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range p.defaults {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:       uuid.New().String(),
		cfg:      cfg,
		fetch:    fetch,
		onUpdate: onUpdate,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	h.cfg.logger = h.cfg.logger.With(zap.String("poll_id", h.id))

	go h.loop()

	h.cfg.logger.Debug("polling started", zap.Duration("interval", cfg.interval))
	return h
}

// Stop halts the handle. It is safe to call more than once and on a nil
// handle. Once Stop returns, onUpdate is never called again; a fetch
// still in flight has its context cancelled and its result discarded.
func (p *Poller) Stop(h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.status.State = PollStopped
	close(h.stopCh)
	h.cancel()
	h.mu.Unlock()

	<-h.done
	h.cfg.logger.Debug("polling stopped")
}

// Refresh runs one fetch outside the schedule and delivers it like a
// scheduled one. The snapshot is returned even if a later-started cycle
// has already delivered and this one was therefore not passed to onUpdate.
func (p *Poller) Refresh(ctx context.Context, h *Handle) ([]model.InboxMessage, error) {
	if h == nil {
		return nil, ErrStopped
	}

	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	return h.cycle(ctx, metrics.TriggerManual)
}

// loop drives the schedule. Fetches run in their own goroutines so a slow
// fetch never delays the ticker.
func (h *Handle) loop() {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.interval)
	defer ticker.Stop()

	h.tick()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

// tick starts a scheduled fetch unless the previous one is still running.
func (h *Handle) tick() {
	if !h.inFlight.CompareAndSwap(false, true) {
		h.cfg.metrics.ObserveSkip()
		h.cfg.logger.Debug("previous fetch still running, skipping tick")
		return
	}

	go func() {
		defer h.inFlight.Store(false)
		_, _ = h.cycle(context.Background(), metrics.TriggerScheduled)
	}()
}

// cycle performs a single fetch and delivers the result. Deliveries are
// ordered by start sequence: a snapshot older than one already delivered
// is dropped.
func (h *Handle) cycle(parent context.Context, trigger string) ([]model.InboxMessage, error) {
	seq := h.seq.Add(1)

	ctx, cancel := context.WithTimeout(parent, h.cfg.fetchTimeout)
	defer cancel()
	stopWatch := context.AfterFunc(h.ctx, cancel)
	defer stopWatch()

	if !h.setRunning() {
		return nil, ErrStopped
	}
	msgs, err := h.fetch(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		h.cfg.metrics.ObservePoll(trigger, metrics.ResultDiscarded)
		if err != nil {
			return nil, err
		}
		return msgs, ErrStopped
	}

	if err != nil {
		if !mailbox.IsFetchError(err) {
			err = &mailbox.FetchError{Op: "polling inbox", Err: err}
		}
		h.status.State = PollError
		h.status.Error = err
		h.cfg.metrics.ObservePoll(trigger, metrics.ResultError)
		h.cfg.logger.Warn("inbox fetch failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		if h.cfg.onError != nil {
			h.cfg.onError(err)
		}
		return nil, err
	}

	if seq <= h.delivered {
		h.cfg.metrics.ObservePoll(trigger, metrics.ResultDiscarded)
		h.cfg.logger.Debug("dropping snapshot superseded by a later fetch",
			zap.Uint64("seq", seq),
			zap.Uint64("delivered", h.delivered),
		)
		return msgs, nil
	}

	h.delivered = seq
	h.status = Status{State: PollIdle, LastSync: time.Now()}
	h.cfg.metrics.ObservePoll(trigger, metrics.ResultOK)
	h.cfg.metrics.SetInboxSize(len(msgs))

	if h.onUpdate != nil {
		h.onUpdate(msgs)
	}
	return msgs, nil
}

// setRunning marks the handle busy and reports false if it was stopped.
func (h *Handle) setRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.status.State = PollRunning
	return true
}
