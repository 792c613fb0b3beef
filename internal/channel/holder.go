// Package channel holds the handle to the child frame and lets callers wait
// for the frame handshake to complete.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/juju/clock"
)

const DefaultWaitTimeout = 10 * time.Second

var ErrTimeout = errors.New("connection to iframe channel could not be established")

// Channel is the established endpoint to the child frame.
type Channel interface {
	RestRequest(ctx context.Context, req request.Descriptor) (protocol.Response, error)
	FetchRequest(ctx context.Context, req request.Descriptor) (protocol.Response, error)
}

// Holder owns the component's single channel handle. The handle is written
// once and read by every call afterwards.
type Holder struct {
	clock   clock.Clock
	timeout time.Duration

	mu    sync.RWMutex
	ch    Channel
	ready chan struct{}
}

type Option func(*Holder)

func WithClock(c clock.Clock) Option {
	return func(h *Holder) {
		if c != nil {
			h.clock = c
		}
	}
}

func WithWaitTimeout(d time.Duration) Option {
	return func(h *Holder) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHolder(options ...Option) *Holder {
	h := &Holder{
		clock:   clock.WallClock,
		timeout: DefaultWaitTimeout,
		ready:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// Set stores ch if no channel is held yet. It reports whether ch was stored.
func (h *Holder) Set(ch Channel) bool {
	if ch == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch != nil {
		return false
	}
	h.ch = ch
	close(h.ready)
	return true
}

// Get returns the held channel, or nil before the handshake.
func (h *Holder) Get() Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ch
}

// Await returns the channel as soon as it is held. If it is not held yet the
// call waits up to the holder's timeout, measured from the call, and then
// fails with ErrTimeout.
func (h *Holder) Await(ctx context.Context) (Channel, error) {
	if ch := h.Get(); ch != nil {
		return ch, nil
	}

	timer := h.clock.NewTimer(h.timeout)
	defer timer.Stop()

	select {
	case <-h.ready:
		return h.Get(), nil
	case <-timer.Chan():
		// Set may have raced the deadline.
		if ch := h.Get(); ch != nil {
			return ch, nil
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
