// Package scope tracks whether the component that started an asynchronous
// call is still alive when the call resumes.
package scope

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("component scope closed")

// Scope is valid from creation until Close.
type Scope struct {
	once sync.Once
	done chan struct{}
}

func New() *Scope {
	return &Scope{done: make(chan struct{})}
}

func (s *Scope) IsValid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Close invalidates the scope. Safe to call more than once.
func (s *Scope) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the scope is closed.
func (s *Scope) Done() <-chan struct{} {
	return s.done
}

// Run executes fn only while the scope is valid and returns ErrClosed
// otherwise.
func (s *Scope) Run(fn func() error) error {
	if !s.IsValid() {
		return ErrClosed
	}
	return fn()
}

// Bind returns a copy of ctx that is cancelled when the scope closes.
func (s *Scope) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Context reports validity as long as its context is not done.
type Context struct {
	ctx context.Context
}

// FromContext ties caller validity to ctx, e.g. an inbound HTTP request.
func FromContext(ctx context.Context) Context {
	return Context{ctx: ctx}
}

func (c Context) IsValid() bool {
	return c.ctx.Err() == nil
}
