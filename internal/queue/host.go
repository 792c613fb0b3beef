// Package queue is an in-process managed action host. Foreground actions run
// one at a time in submission order; background actions run on a bounded
// worker pool.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/HsiangNianian/framebridge/internal/action"
	"github.com/HsiangNianian/framebridge/internal/store"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

type Host struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	pending  []*Action
	closed   bool

	store    store.Store
	cacheTTL time.Duration
	logger   *zap.Logger

	maxJobs int
	sem     chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	notify    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(options ...Option) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		handlers: make(map[string]HandlerFunc),
		cacheTTL: 5 * time.Minute,
		logger:   zap.NewNop(),
		maxJobs:  10,
		ctx:      ctx,
		cancel:   cancel,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(h)
	}
	h.sem = make(chan struct{}, h.maxJobs)
	return h
}

// Register installs the handler for name, replacing any previous one.
func (h *Host) Register(name string, fn HandlerFunc) {
	h.mu.Lock()
	h.handlers[name] = fn
	h.mu.Unlock()
}

// Get builds a new action for name.
func (h *Host) Get(name string) (action.Action, error) {
	h.mu.Lock()
	fn, ok := h.handlers[name]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return &Action{name: name, handler: fn}, nil
}

// Enqueue submits an action built by Get. Its callback is invoked exactly once.
func (h *Host) Enqueue(a action.Action) error {
	act, ok := a.(*Action)
	if !ok {
		return ErrForeignAction
	}
	if act.callback == nil {
		return ErrNoCallback
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	h.logger.Debug("action queued",
		zap.String("action", act.name),
		zap.Bool("background", act.background),
		zap.Bool("storable", act.storable))

	if act.background {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			select {
			case h.sem <- struct{}{}:
			case <-h.ctx.Done():
				h.abandon(act)
				return
			}
			defer func() { <-h.sem }()
			if h.ctx.Err() != nil {
				h.abandon(act)
				return
			}
			h.execute(act)
		}()
		return nil
	}

	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.runForeground()
	})
	h.pending = append(h.pending, act)
	select {
	case h.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run blocks until ctx is done and then closes the host.
func (h *Host) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	_ = h.Close()
}

// Close stops accepting actions, cancels running handlers and completes
// actions still waiting for a foreground turn or a background slot as
// INCOMPLETE.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		h.cancel()
		h.wg.Wait()

		h.mu.Lock()
		left := h.pending
		h.pending = nil
		h.mu.Unlock()
		for _, a := range left {
			h.abandon(a)
		}
		if len(left) > 0 {
			h.logger.Sugar().Infof("queue closed with %d foreground actions not run", len(left))
		}
	})
	return nil
}

func (h *Host) runForeground() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.notify:
		}
		for h.ctx.Err() == nil {
			a := h.pop()
			if a == nil {
				break
			}
			h.execute(a)
		}
	}
}

func (h *Host) pop() *Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.pending) == 0 {
		return nil
	}
	a := h.pending[0]
	h.pending[0] = nil
	h.pending = h.pending[1:]
	return a
}

// abandon completes an action that never ran.
func (h *Host) abandon(a *Action) {
	a.callback(&Response{state: action.StateIncomplete, errors: ErrClosed.Error()})
}

func (h *Host) execute(a *Action) {
	a.callback(h.run(a))
}

func (h *Host) run(a *Action) *Response {
	var key string
	if a.storable && h.store != nil {
		key = cacheKey(a.name, a.params)
		cached, ok, err := h.store.GetResponse(h.ctx, key)
		if err != nil {
			h.logger.Warn("read cached response failed", zap.String("action", a.name), zap.Error(err))
		} else if ok {
			return &Response{state: action.StateSuccess, value: cached, cached: true}
		}
	}

	value, err := h.call(a)
	if err != nil {
		return failure(err)
	}

	raw, err := encode(value)
	if err != nil {
		return failure(fmt.Errorf("encode return value: %w", err))
	}

	if key != "" {
		if err := h.store.SetResponse(h.ctx, key, raw, h.cacheTTL); err != nil {
			h.logger.Warn("store response failed", zap.String("action", a.name), zap.Error(err))
		}
	}
	return &Response{state: action.StateSuccess, value: raw}
}

func (h *Host) call(a *Action) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("action handler panicked", zap.String("action", a.name), zap.Any("panic", r))
			err = fmt.Errorf("action %s panicked: %v", a.name, r)
		}
	}()
	return a.handler(h.ctx, a.params)
}

func failure(err error) *Response {
	var list Errors
	if errors.As(err, &list) {
		return &Response{state: action.StateError, errors: []action.ErrorEntry(list)}
	}
	return &Response{state: action.StateError, errors: []action.ErrorEntry{{Message: err.Error()}}}
}

func encode(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case json.RawMessage:
		return t, nil
	case nil:
		return json.RawMessage("null"), nil
	default:
		return json.Marshal(v)
	}
}

// cacheKey identifies a storable response by action name and parameters.
// encoding/json sorts map keys, so equal params give equal keys.
func cacheKey(name string, params map[string]any) string {
	p, _ := json.Marshal(params)
	d := xxhash.New()
	_, _ = d.WriteString(name)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(p)
	return name + ":" + strconv.FormatUint(d.Sum64(), 16)
}
