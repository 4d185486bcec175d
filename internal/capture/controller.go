// Package capture records short turntable videos of the model shown in a
// viewer.
package capture

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/erazemk/objectory/internal/metrics"
	"github.com/erazemk/objectory/internal/model"
	"github.com/erazemk/objectory/internal/viewer"
)

// State is the capture state of a Controller.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

var (
	// ErrInProgress is returned by Start while a capture is recording. The
	// active session is not affected.
	ErrInProgress = errors.New("capture already in progress")
	// ErrEmptyRecording is the failure of a recorder that produced no data.
	ErrEmptyRecording = errors.New("recording produced no data")
	// ErrEndedEarly is the failure of a recorder that stopped on its own
	// before the capture window elapsed.
	ErrEndedEarly = errors.New("recorder stopped before the capture finished")
)

// Config holds capture parameters.
type Config struct {
	Duration        time.Duration `yaml:"duration"`
	Tick            time.Duration `yaml:"tick"`
	SpeedPercent    int           `yaml:"speed_percent"`
	FPS             int           `yaml:"fps"`
	MIMEType        string        `yaml:"mime_type"`
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`
}

// DefaultConfig returns a five second, 60 fps WebM capture at four times the
// baseline rotation speed.
func DefaultConfig() Config {
	return Config{
		Duration:        5 * time.Second,
		Tick:            100 * time.Millisecond,
		SpeedPercent:    400,
		FPS:             60,
		MIMEType:        "video/webm;codecs=vp9",
		FinalizeTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Duration <= 0 {
		c.Duration = d.Duration
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.SpeedPercent <= 0 {
		c.SpeedPercent = d.SpeedPercent
	}
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.MIMEType == "" {
		c.MIMEType = d.MIMEType
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = d.FinalizeTimeout
	}
	return c
}

// Event reports a state change or progress of a capture session.
type Event struct {
	Session  string            `json:"session"`
	ItemID   string            `json:"itemId"`
	State    State             `json:"state"`
	Progress float64           `json:"progress"`
	Asset    *model.VideoAsset `json:"asset,omitempty"`
	Err      error             `json:"-"`
	Notice   string            `json:"notice,omitempty"`
}

// Session is one capture run.
type Session struct {
	ID   string
	Item model.Item

	cancel context.CancelFunc
	done   chan struct{}
	asset  *model.VideoAsset
	err    error
}

// Done is closed once the session has finished and the viewer is restored.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the asset or the failure of a finished session.
func (s *Session) Result() (*model.VideoAsset, error) {
	<-s.done
	return s.asset, s.err
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records capture metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock sets the clock used to date assets.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller runs at most one capture at a time against one viewer.
type Controller struct {
	viewer   viewer.Viewer
	recorder viewer.Recorder
	cfg      Config
	metrics  *metrics.Metrics
	now      func() time.Time

	mu        sync.Mutex
	state     State
	active    *Session
	last      Event
	observers []func(Event)
}

// NewController creates an idle controller. Zero fields of cfg take their
// DefaultConfig values.
func NewController(v viewer.Viewer, r viewer.Recorder, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		viewer:   v,
		recorder: r,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Subscribe registers fn to receive every event. fn is called from the
// capture goroutine and must not block.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the recording session, or nil when idle.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Last returns the most recent event.
func (c *Controller) Last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Start begins capturing item and returns immediately. Canceling ctx tears
// the capture down the same way Cancel does.
func (c *Controller) Start(ctx context.Context, item model.Item) (*Session, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     uuid.NewString(),
		Item:   item,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active = s
	c.state = StateRecording
	c.mu.Unlock()

	c.metrics.CaptureStarted(ctx)
	slog.Info("capture started", "session", s.ID, "item", item.ID)

	go c.run(runCtx, s)
	return s, nil
}

// Cancel stops the active capture, which ends failed with
// context.Canceled. It is a no-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

type snapshot struct {
	autoRotate bool
	speed      int
}

func (c *Controller) run(ctx context.Context, s *Session) {
	started := time.Now()
	snap := snapshot{
		autoRotate: c.viewer.AutoRotate(),
		speed:      c.viewer.RotationSpeed(),
	}

	c.emit(Event{Session: s.ID, ItemID: s.Item.ID, State: StateRecording})

	data, err := c.record(ctx, s)
	c.restore(s, snap)

	var final Event
	if err != nil {
		s.err = err
		final = Event{
			Session: s.ID,
			ItemID:  s.Item.ID,
			State:   StateFailed,
			Err:     err,
			Notice:  failureNotice(err),
		}
		outcome := "failed"
		if errors.Is(err, context.Canceled) {
			outcome = "canceled"
		}
		c.metrics.CaptureFinished(context.WithoutCancel(ctx), outcome, 0, time.Since(started))
		slog.Warn("capture failed", "session", s.ID, "item", s.Item.ID, "error", err)
	} else {
		sum := blake2b.Sum256(data)
		s.asset = &model.VideoAsset{
			ID:        uuid.NewString(),
			ItemID:    s.Item.ID,
			Filename:  model.CaptureFilename(s.Item.Name),
			MIMEType:  c.cfg.MIMEType,
			Size:      len(data),
			Digest:    hex.EncodeToString(sum[:]),
			CreatedAt: c.now().UTC(),
			Data:      data,
		}
		final = Event{
			Session:  s.ID,
			ItemID:   s.Item.ID,
			State:    StateCompleted,
			Progress: 1,
			Asset:    s.asset,
			Notice:   fmt.Sprintf("Video ready: %s", s.asset.Filename),
		}
		c.metrics.CaptureFinished(context.WithoutCancel(ctx), "completed", len(data), time.Since(started))
		slog.Info("capture completed", "session", s.ID, "item", s.Item.ID, "bytes", len(data))
	}

	c.mu.Lock()
	c.state = final.State
	c.mu.Unlock()
	c.emit(final)

	c.mu.Lock()
	c.active = nil
	c.state = StateIdle
	c.mu.Unlock()

	s.cancel()
	close(s.done)
}

// record drives the viewer through one capture window and returns the
// encoded video.
func (c *Controller) record(ctx context.Context, s *Session) ([]byte, error) {
	if err := c.viewer.SetInteractive(false); err != nil {
		return nil, fmt.Errorf("disabling interaction: %w", err)
	}
	if err := c.viewer.SetAutoRotate(true); err != nil {
		return nil, fmt.Errorf("enabling auto-rotate: %w", err)
	}
	if err := c.viewer.SetRotationSpeed(c.cfg.SpeedPercent); err != nil {
		return nil, fmt.Errorf("setting rotation speed: %w", err)
	}

	stream, err := c.viewer.CaptureStream(ctx, c.cfg.FPS)
	if err != nil {
		return nil, fmt.Errorf("opening render stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Warn("closing render stream", "session", s.ID, "error", err)
		}
	}()

	rec, err := c.recorder.Record(ctx, stream, c.cfg.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("starting recorder: %w", err)
	}

	start := time.Now()
	timer := time.NewTimer(c.cfg.Duration)
	defer timer.Stop()
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	var buf bytes.Buffer
	var progress float64
	chunks := rec.Chunks()

	for {
		select {
		case <-ctx.Done():
			rec.Stop()
			go discard(chunks)
			return nil, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				if err := rec.Err(); err != nil {
					return nil, fmt.Errorf("recording: %w", err)
				}
				return nil, ErrEndedEarly
			}
			buf.Write(chunk)

		case <-ticker.C:
			// The final 1.0 belongs to the timer.
			p := float64(time.Since(start)) / float64(c.cfg.Duration)
			if p >= 1 || p <= progress {
				continue
			}
			progress = p
			c.emit(Event{Session: s.ID, ItemID: s.Item.ID, State: StateRecording, Progress: p})

		case <-timer.C:
			ticker.Stop()
			c.emit(Event{Session: s.ID, ItemID: s.Item.ID, State: StateRecording, Progress: 1})
			rec.Stop()
			return c.finalize(ctx, rec, &buf)
		}
	}
}

// finalize collects the chunks the recorder flushes after Stop.
func (c *Controller) finalize(ctx context.Context, rec viewer.Recording, buf *bytes.Buffer) ([]byte, error) {
	deadline := time.NewTimer(c.cfg.FinalizeTimeout)
	defer deadline.Stop()

	chunks := rec.Chunks()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				if err := rec.Err(); err != nil {
					return nil, fmt.Errorf("finalizing recording: %w", err)
				}
				if buf.Len() == 0 {
					return nil, ErrEmptyRecording
				}
				return buf.Bytes(), nil
			}
			buf.Write(chunk)
		case <-deadline.C:
			go discard(chunks)
			return nil, errors.New("finalizing recording: timed out")
		case <-ctx.Done():
			go discard(chunks)
			return nil, ctx.Err()
		}
	}
}

// restore puts the viewer back the way it was before the capture and
// re-enables interaction.
func (c *Controller) restore(s *Session, snap snapshot) {
	if err := c.viewer.SetRotationSpeed(snap.speed); err != nil {
		slog.Warn("restoring rotation speed", "session", s.ID, "error", err)
	}
	if err := c.viewer.SetAutoRotate(snap.autoRotate); err != nil {
		slog.Warn("restoring auto-rotate", "session", s.ID, "error", err)
	}
	if err := c.viewer.SetInteractive(true); err != nil {
		slog.Warn("re-enabling interaction", "session", s.ID, "error", err)
	}
}

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	c.last = ev
	observers := append([]func(Event){}, c.observers...)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
}

// discard drains a recording nobody is waiting for so the producer can
// finish.
func discard(chunks <-chan []byte) {
	for range chunks {
	}
}

func failureNotice(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Recording canceled."
	case errors.Is(err, viewer.ErrNotReady):
		return "Recording failed: the model has not finished loading."
	default:
		return "Recording failed. Please try again."
	}
}
