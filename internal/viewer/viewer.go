// Package viewer is the seam between Objectory and the 3D viewer widget that
// renders an item's model. The widget itself runs in the browser; this
// package describes what the rest of the server may ask of it.
package viewer

import (
	"context"
	"errors"
)

// Status is the load state of the viewer's model.
type Status string

// Load states. A viewer whose model failed to load keeps showing the poster
// indefinitely.
const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// BaselineSpeed is the rotation speed, in percent, of the widget's default
// auto-rotation.
const BaselineSpeed = 100

var (
	// ErrNotReady is returned when the render surface is requested before
	// the model has loaded.
	ErrNotReady = errors.New("viewer not ready")
	// ErrClosed is returned once the viewer's connection has gone away.
	ErrClosed = errors.New("viewer closed")
	// ErrBusy is returned when a stream or recording is already open.
	ErrBusy = errors.New("viewer busy")
)

// Viewer controls one rendered model.
type Viewer interface {
	// Load starts loading the model at src, showing poster until it is
	// ready. It returns once the request has been dispatched.
	Load(ctx context.Context, src, poster string) error
	Status() Status

	AutoRotate() bool
	SetAutoRotate(on bool) error
	// RotationSpeed is the auto-rotation speed in percent of BaselineSpeed.
	RotationSpeed() int
	SetRotationSpeed(percent int) error
	Interactive() bool
	SetInteractive(on bool) error

	// CaptureStream exposes the render surface as a live frame stream.
	CaptureStream(ctx context.Context, fps int) (Stream, error)
}

// Stream is a live, capturable frame stream of a render surface.
type Stream interface {
	FPS() int
	Close() error
}

// Recorder encodes a frame stream into video.
type Recorder interface {
	Record(ctx context.Context, stream Stream, mimeType string) (Recording, error)
}

// Recording is an in-progress encoding. Chunks delivers encoded data as it
// is produced and is closed once the recorder has flushed everything after
// Stop, or on failure. Err reports the failure, if any, after Chunks is
// closed.
type Recording interface {
	Chunks() <-chan []byte
	Stop()
	Err() error
}
