// Package capture owns the microphone recording lifecycle. The hardware
// device sits behind a port so the controller can be driven in tests, and
// the duration it reports is canonical: it comes from the controller's own
// 1-second counter, never from the decoded artifact.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/consulmed/consulmed/internal/domain"
)

// State of the recording lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateReviewing State = "reviewing"
)

// ErrInvalidState is returned when an operation is called outside the state
// it is valid in.
var ErrInvalidState = errors.New("operation not valid in current capture state")

// Device opens the microphone. Open must return
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable when access
// fails; both leave the controller in Idle.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open hardware capture.
type Stream interface {
	// Finalize stops capturing and folds the buffered audio into a single
	// artifact. It releases the hardware device.
	Finalize() (domain.BlobHandle, error)
	// Close releases the hardware device without producing an artifact.
	Close()
}

// Ticker abstracts time.Ticker so tests can emit ticks manually.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock produces tickers.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

type wallClock struct{}

func (wallClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

// WallClock returns the real-time clock.
func WallClock() Clock { return wallClock{} }

// Artifact is the atomic unit Send emits: the finalized audio and its
// canonical duration.
type Artifact struct {
	Blob            domain.BlobHandle
	DurationSeconds int
}

// Controller is the recording state machine:
//
//	Idle -> Recording -> Reviewing -> {sent | discarded} -> Idle
//
// Only one capture may be open at a time; every transition out of Recording
// or Reviewing releases the hardware stream.
type Controller struct {
	device Device
	clock  Clock

	mu       sync.Mutex
	state    State
	stream   Stream
	ticker   Ticker
	tickDone chan struct{}
	duration int
	artifact domain.BlobHandle
	playing  bool
}

func NewController(device Device, clock Clock) *Controller {
	if clock == nil {
		clock = WallClock()
	}
	return &Controller{
		device: device,
		clock:  clock,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration returns the counter's current value in seconds.
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// StartRecording requests microphone access and starts the duration counter
// at zero. Access failures are recoverable: the controller stays in Idle.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, c.state)
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		return err
	}

	c.stream = stream
	c.state = StateRecording
	c.duration = 0
	c.ticker = c.clock.NewTicker(time.Second)
	c.tickDone = make(chan struct{})

	go c.countTicks(c.ticker, c.tickDone)

	return nil
}

func (c *Controller) countTicks(t Ticker, done chan struct{}) {
	for {
		select {
		case <-t.C():
			c.mu.Lock()
			if c.state == StateRecording {
				c.duration++
			}
			c.mu.Unlock()
		case <-done:
			return
		}
	}
}

// StopRecording finalizes the buffered audio and freezes the counter at its
// last emitted tick. That frozen value is the canonical duration; anything
// read later from decoded playback is presentational only.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, c.state)
	}

	c.stopCounterLocked()

	blob, err := c.stream.Finalize()
	c.stream = nil
	if err != nil {
		c.state = StateIdle
		return fmt.Errorf("finalizing capture: %w", err)
	}

	c.artifact = blob
	c.state = StateReviewing
	return nil
}

// Play starts the local preview. Reviewing only; session state is untouched.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing {
		return fmt.Errorf("%w: play from %s", ErrInvalidState, c.state)
	}
	c.playing = true
	return nil
}

// Pause pauses the local preview.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReviewing {
		return fmt.Errorf("%w: pause from %s", ErrInvalidState, c.state)
	}
	c.playing = false
	return nil
}

// Playing reports whether the preview is running.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Send emits the finalized artifact and its canonical duration as one atomic
// unit, hands ownership of the blob to the caller and returns to Idle.
func (c *Controller) Send() (*Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReviewing {
		return nil, fmt.Errorf("%w: send from %s", ErrInvalidState, c.state)
	}

	out := &Artifact{Blob: c.artifact, DurationSeconds: c.duration}
	c.artifact = nil
	c.playing = false
	c.state = StateIdle
	return out, nil
}

// Discard drops the reviewed artifact, revokes its blob handle and returns
// to Idle. Nothing is emitted to the caller.
func (c *Controller) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReviewing {
		return fmt.Errorf("%w: discard from %s", ErrInvalidState, c.state)
	}

	if c.artifact != nil {
		c.artifact.Release()
		c.artifact = nil
	}
	c.playing = false
	c.state = StateIdle
	return nil
}

// Close tears the controller down from any state: stops the counter,
// releases an open hardware stream and revokes an unreviewed artifact.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopCounterLocked()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.artifact != nil {
		c.artifact.Release()
		c.artifact = nil
	}
	c.playing = false
	c.state = StateIdle
}

func (c *Controller) stopCounterLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.tickDone != nil {
		close(c.tickDone)
		c.tickDone = nil
	}
}
