package rig

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/frame"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/jsontime"
)

// Source produces the target vector for each tick.
type Source interface {
	Tick(dt time.Duration) joint.Vector
}

// Publisher sends records to the output channel.
type Publisher interface {
	// Publish sends payload under key. It must honor ctx cancellation.
	Publish(ctx context.Context, key string, payload []byte) error

	// Ping checks that the channel is reachable.
	Ping(ctx context.Context) error
}

// LoopOptions configures a Loop. Zero values select the defaults.
type LoopOptions struct {
	// Rate is the tick frequency in Hz. Default 50.
	Rate float64

	// Key is the channel identifier. Default frame.DefaultKey.
	Key string

	// Encoder serializes each vector. Default frame.JSON.
	Encoder frame.Encoder

	// PublishTimeout bounds each publish. Default 100ms.
	PublishTimeout time.Duration

	// ProbeInterval is the period of liveness pings. Default 1s.
	ProbeInterval time.Duration

	// ProbeTimeout bounds each ping. Default 500ms.
	ProbeTimeout time.Duration

	// MaxStep caps the measured dt fed to the source. Default 250ms.
	MaxStep time.Duration

	// Paused starts the loop with publishing disabled.
	Paused bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o *LoopOptions) setDefaults() {
	if o.Rate <= 0 {
		o.Rate = 50
	}
	if o.Key == "" {
		o.Key = frame.DefaultKey
	}
	if o.Encoder == nil {
		o.Encoder = frame.JSON{}
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 100 * time.Millisecond
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 500 * time.Millisecond
	}
	if o.MaxStep <= 0 {
		o.MaxStep = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats reports loop counters and channel connectivity.
type Stats struct {
	Ticks       uint64            `json:"ticks"`
	Published   uint64            `json:"published"`
	Failed      uint64            `json:"failed"`
	Dropped     uint64            `json:"dropped"`
	Connected   bool              `json:"connected"`
	Publishing  bool              `json:"publishing"`
	LastError   string            `json:"last_error,omitempty"`
	LastPublish jsontime.Milli    `json:"last_publish"`
	Period      jsontime.Duration `json:"period"`
	Key         string            `json:"key"`
	Format      frame.Format      `json:"format"`
}

// Loop ticks a Source at a fixed rate and publishes every result.
//
// Publishing runs on its own goroutine behind a one-frame mailbox. When the
// publisher is still busy with the previous frame, that frame is replaced
// and counted as dropped, so a slow or dead channel never delays a tick.
type Loop struct {
	src    Source
	pub    Publisher
	opts   LoopOptions
	period time.Duration
	logger *slog.Logger
	warn   *rate.Limiter

	mailbox    chan []byte
	publishing atomic.Bool

	ticks     atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu          sync.Mutex
	connected   bool
	lastErr     error
	lastPublish time.Time
}

// NewLoop returns a loop that has not been started.
func NewLoop(src Source, pub Publisher, opts LoopOptions) *Loop {
	opts.setDefaults()
	l := &Loop{
		src:     src,
		pub:     pub,
		opts:    opts,
		period:  time.Duration(float64(time.Second) / opts.Rate),
		logger:  opts.Logger.With("component", "publish_loop"),
		warn:    rate.NewLimiter(rate.Every(5*time.Second), 1),
		mailbox: make(chan []byte, 1),
	}
	l.publishing.Store(!opts.Paused)
	return l
}

// Period returns the nominal tick period.
func (l *Loop) Period() time.Duration { return l.period }

// SetPublishing enables or disables sending. Ticks continue either way.
func (l *Loop) SetPublishing(on bool) {
	if l.publishing.Swap(on) != on {
		l.logger.Info("publishing toggled", "on", on)
	}
}

// Publishing reports whether frames are being sent.
func (l *Loop) Publishing() bool { return l.publishing.Load() }

// Run ticks until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Go(func() { l.sendLoop(ctx) })
	wg.Go(func() { l.probeLoop(ctx) })

	l.logger.Info("publish loop started", "rate_hz", l.opts.Rate, "key", l.opts.Key, "format", l.opts.Encoder.Format())
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("publish loop stopped", "ticks", l.ticks.Load())
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			l.step(dt)
		}
	}
}

// step runs one tick with measured dt.
func (l *Loop) step(dt time.Duration) {
	dt = min(max(dt, 0), l.opts.MaxStep)
	v := l.src.Tick(dt)
	l.ticks.Add(1)
	if !l.publishing.Load() {
		return
	}
	b, err := l.opts.Encoder.Encode(v)
	if err != nil {
		l.failed.Add(1)
		l.recordFailure(err)
		return
	}
	l.post(b)
}

// post places b in the mailbox, replacing an unsent frame.
func (l *Loop) post(b []byte) {
	select {
	case l.mailbox <- b:
		return
	default:
	}
	select {
	case <-l.mailbox:
		l.dropped.Add(1)
	default:
	}
	select {
	case l.mailbox <- b:
	default:
		l.dropped.Add(1)
	}
}

func (l *Loop) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-l.mailbox:
			pctx, cancel := context.WithTimeout(ctx, l.opts.PublishTimeout)
			err := l.pub.Publish(pctx, l.opts.Key, b)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.failed.Add(1)
				l.recordFailure(err)
				continue
			}
			l.published.Add(1)
			l.mu.Lock()
			l.lastPublish = time.Now()
			l.mu.Unlock()
			l.setConnected(true, nil)
		}
	}
}

func (l *Loop) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(l.opts.ProbeInterval)
	defer ticker.Stop()
	for {
		l.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, l.opts.ProbeTimeout)
	defer cancel()
	err := l.pub.Ping(pctx)
	if ctx.Err() != nil {
		return
	}
	l.setConnected(err == nil, err)
}

func (l *Loop) recordFailure(err error) {
	l.setConnected(false, err)
	if l.warn.Allow() {
		l.logger.Warn("publish failed", "error", err, "failed", l.failed.Load())
	}
}

func (l *Loop) setConnected(ok bool, err error) {
	l.mu.Lock()
	changed := l.connected != ok
	l.connected = ok
	if err != nil {
		l.lastErr = err
	}
	l.mu.Unlock()
	if !changed {
		return
	}
	if ok {
		l.logger.Info("output channel connected")
	} else {
		l.logger.Warn("output channel unavailable", "error", errorString(err))
	}
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{
		Ticks:       l.ticks.Load(),
		Published:   l.published.Load(),
		Failed:      l.failed.Load(),
		Dropped:     l.dropped.Load(),
		Connected:   l.connected,
		Publishing:  l.publishing.Load(),
		LastPublish: jsontime.Milli(l.lastPublish),
		Period:      jsontime.Duration(l.period),
		Key:         l.opts.Key,
		Format:      l.opts.Encoder.Format(),
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
