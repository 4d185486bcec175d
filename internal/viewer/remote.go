package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit         = 8 << 20 // recorder chunks arrive as binary frames
	readDeadline      = 60 * time.Second
	writeDeadline     = 5 * time.Second
	pingInterval      = 20 * time.Second
	streamOpenTimeout = 5 * time.Second
	chunkTimeout      = 5 * time.Second
)

// command is a server-to-browser message.
type command struct {
	Op            string `json:"op"`
	Src           string `json:"src,omitempty"`
	Poster        string `json:"poster,omitempty"`
	AutoRotate    *bool  `json:"autoRotate,omitempty"`
	RotationSpeed *int   `json:"rotationSpeed,omitempty"`
	Interactive   *bool  `json:"interactive,omitempty"`
	FPS           int    `json:"fps,omitempty"`
	MIMEType      string `json:"mimeType,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}

// clientEvent is a browser-to-server message.
type clientEvent struct {
	Event         string `json:"event"`
	Error         string `json:"error,omitempty"`
	AutoRotate    bool   `json:"autoRotate"`
	RotationSpeed int    `json:"rotationSpeed"`
	Interactive   bool   `json:"interactive"`
}

// Remote drives a <model-viewer> element in a browser page over a WebSocket.
// The page reports load progress, opens canvas capture streams and runs the
// browser's media recorder, sending encoded chunks back as binary frames.
type Remote struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	status      Status
	autoRotate  bool
	speed       int
	interactive bool
	streamReply chan clientEvent
	rec         *remoteRecording

	closed    chan struct{}
	closeOnce sync.Once
}

// NewRemote wraps an upgraded connection. Serve must be called to process
// messages from the page.
func NewRemote(conn *websocket.Conn) *Remote {
	return &Remote{
		conn:        conn,
		status:      StatusLoading,
		speed:       BaselineSpeed,
		interactive: true,
		closed:      make(chan struct{}),
	}
}

// Serve reads messages from the page until the connection closes or ctx is
// canceled. It returns nil on a normal close.
func (r *Remote) Serve(ctx context.Context) error {
	r.conn.SetReadLimit(readLimit)
	_ = r.conn.SetReadDeadline(time.Now().Add(readDeadline))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	go r.keepAlive(ctx)

	for {
		mt, data, err := r.conn.ReadMessage()
		if err != nil {
			r.shutdown(err)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading from viewer: %w", err)
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch mt {
		case websocket.BinaryMessage:
			r.pushChunk(data)
		case websocket.TextMessage:
			var ev clientEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Warn("ignoring malformed viewer message", "error", err)
				continue
			}
			r.handle(ev)
		}
	}
}

func (r *Remote) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-r.closed:
			return
		case <-ticker.C:
			r.writeMu.Lock()
			err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			r.writeMu.Unlock()
			if err != nil {
				r.Close()
				return
			}
		}
	}
}

func (r *Remote) handle(ev clientEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Event {
	case "hello":
		r.autoRotate = ev.AutoRotate
		if ev.RotationSpeed > 0 {
			r.speed = ev.RotationSpeed
		}
		r.interactive = ev.Interactive
	case "loaded":
		r.status = StatusReady
	case "load.failed":
		r.status = StatusFailed
		slog.Warn("model failed to load, showing poster", "error", ev.Error)
	case "stream.opened", "stream.error":
		if r.streamReply != nil {
			r.streamReply <- ev
			r.streamReply = nil
		}
	case "record.stopped":
		if r.rec != nil {
			r.rec.finish(nil)
			r.rec = nil
		}
	case "record.error":
		if r.rec != nil {
			r.rec.finish(errors.New(ev.Error))
			r.rec = nil
		}
	default:
		slog.Debug("unknown viewer event", "event", ev.Event)
	}
}

// pushChunk runs on the read loop, which is the only goroutine that sends on
// or closes a recording's chunk channel.
func (r *Remote) pushChunk(data []byte) {
	r.mu.Lock()
	rec := r.rec
	r.mu.Unlock()
	if rec == nil {
		return
	}

	timer := time.NewTimer(chunkTimeout)
	defer timer.Stop()
	select {
	case rec.chunks <- data:
	case <-timer.C:
		slog.Warn("dropping recorder chunk, consumer stalled", "bytes", len(data))
	}
}

func (r *Remote) shutdown(err error) {
	r.mu.Lock()
	if r.rec != nil {
		r.rec.finish(fmt.Errorf("%w: %v", ErrClosed, err))
		r.rec = nil
	}
	if r.streamReply != nil {
		r.streamReply <- clientEvent{Event: "stream.error", Error: ErrClosed.Error()}
		r.streamReply = nil
	}
	r.mu.Unlock()
	r.Close()
}

// Close closes the connection. It is safe to call more than once.
func (r *Remote) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.conn.Close()
	})
	return err
}

// Done is closed once the connection has been closed.
func (r *Remote) Done() <-chan struct{} {
	return r.closed
}

func (r *Remote) send(cmd command) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := r.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("writing %s to viewer: %w", cmd.Op, err)
	}
	return nil
}

// Notify pushes an application event (capture progress, results) to the page.
func (r *Remote) Notify(payload any) error {
	return r.send(command{Op: "notify", Payload: payload})
}

// Load implements Viewer.
func (r *Remote) Load(ctx context.Context, src, poster string) error {
	r.mu.Lock()
	r.status = StatusLoading
	r.mu.Unlock()
	return r.send(command{Op: "load", Src: src, Poster: poster})
}

// Status implements Viewer.
func (r *Remote) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AutoRotate implements Viewer.
func (r *Remote) AutoRotate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoRotate
}

// SetAutoRotate implements Viewer.
func (r *Remote) SetAutoRotate(on bool) error {
	if err := r.send(command{Op: "set", AutoRotate: &on}); err != nil {
		return err
	}
	r.mu.Lock()
	r.autoRotate = on
	r.mu.Unlock()
	return nil
}

// RotationSpeed implements Viewer.
func (r *Remote) RotationSpeed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed
}

// SetRotationSpeed implements Viewer.
func (r *Remote) SetRotationSpeed(percent int) error {
	if percent <= 0 {
		return fmt.Errorf("invalid rotation speed %d", percent)
	}
	if err := r.send(command{Op: "set", RotationSpeed: &percent}); err != nil {
		return err
	}
	r.mu.Lock()
	r.speed = percent
	r.mu.Unlock()
	return nil
}

// Interactive implements Viewer.
func (r *Remote) Interactive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interactive
}

// SetInteractive implements Viewer.
func (r *Remote) SetInteractive(on bool) error {
	if err := r.send(command{Op: "set", Interactive: &on}); err != nil {
		return err
	}
	r.mu.Lock()
	r.interactive = on
	r.mu.Unlock()
	return nil
}

// CaptureStream implements Viewer. The page answers with stream.opened once
// its canvas stream is live.
func (r *Remote) CaptureStream(ctx context.Context, fps int) (Stream, error) {
	r.mu.Lock()
	if r.status != StatusReady {
		r.mu.Unlock()
		return nil, ErrNotReady
	}
	if r.streamReply != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	reply := make(chan clientEvent, 1)
	r.streamReply = reply
	r.mu.Unlock()

	abandon := func() {
		r.mu.Lock()
		if r.streamReply == reply {
			r.streamReply = nil
		}
		r.mu.Unlock()
	}

	if err := r.send(command{Op: "stream.open", FPS: fps}); err != nil {
		abandon()
		return nil, err
	}

	timer := time.NewTimer(streamOpenTimeout)
	defer timer.Stop()

	select {
	case ev := <-reply:
		if ev.Event != "stream.opened" {
			return nil, fmt.Errorf("opening capture stream: %s", ev.Error)
		}
		return &remoteStream{r: r, fps: fps}, nil
	case <-timer.C:
		abandon()
		return nil, errors.New("opening capture stream: timed out")
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}
}

// Record implements Recorder using the page's media recorder.
func (r *Remote) Record(ctx context.Context, stream Stream, mimeType string) (Recording, error) {
	if _, ok := stream.(*remoteStream); !ok {
		return nil, fmt.Errorf("stream %T does not belong to this viewer", stream)
	}

	r.mu.Lock()
	if r.rec != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	rec := &remoteRecording{r: r, chunks: make(chan []byte, 64)}
	r.rec = rec
	r.mu.Unlock()

	if err := r.send(command{Op: "record.start", MIMEType: mimeType}); err != nil {
		r.mu.Lock()
		if r.rec == rec {
			r.rec = nil
		}
		r.mu.Unlock()
		return nil, err
	}
	return rec, nil
}

type remoteStream struct {
	r   *Remote
	fps int
}

func (s *remoteStream) FPS() int { return s.fps }

func (s *remoteStream) Close() error {
	err := s.r.send(command{Op: "stream.close"})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

type remoteRecording struct {
	r      *Remote
	chunks chan []byte

	mu       sync.Mutex
	err      error
	finished bool
	stopOnce sync.Once
}

func (rr *remoteRecording) Chunks() <-chan []byte { return rr.chunks }

func (rr *remoteRecording) Stop() {
	rr.stopOnce.Do(func() {
		if err := rr.r.send(command{Op: "record.stop"}); err != nil {
			rr.mu.Lock()
			if rr.err == nil {
				rr.err = err
			}
			rr.mu.Unlock()
			// The read loop notices the broken connection and closes chunks.
			rr.r.Close()
		}
	})
}

func (rr *remoteRecording) Err() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.err
}

// finish is only called from the read loop goroutine.
func (rr *remoteRecording) finish(err error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.finished {
		return
	}
	rr.finished = true
	if rr.err == nil {
		rr.err = err
	}
	close(rr.chunks)
}
