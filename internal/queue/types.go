package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/HsiangNianian/framebridge/internal/action"
)

// HandlerFunc runs a managed action. The returned value is JSON encoded as the
// action's return value unless it already is a json.RawMessage.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoCallback    = errors.New("action has no callback")
	ErrForeignAction = errors.New("action was not created by this queue")
	ErrClosed        = errors.New("queue closed")
)

// Errors lets a handler report several error entries at once.
type Errors []action.ErrorEntry

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, entry := range e {
		msgs = append(msgs, entry.Message)
	}
	return strings.Join(msgs, "; ")
}

// Action is an action built by Host.Get.
type Action struct {
	name       string
	handler    HandlerFunc
	params     map[string]any
	background bool
	storable   bool
	callback   func(action.Response)
}

func (a *Action) Name() string { return a.name }

func (a *Action) SetParams(params map[string]any) { a.params = params }

func (a *Action) SetBackground() { a.background = true }

func (a *Action) SetStorable() { a.storable = true }

// SetCallback sets the completion callback. Caller validity is checked by
// the callback itself when it fires.
func (a *Action) SetCallback(_ action.CallerContext, fn func(action.Response)) {
	a.callback = fn
}

// Response is the completion handed to an action's callback.
type Response struct {
	state  action.State
	value  json.RawMessage
	errors any
	cached bool
}

func (r *Response) State() action.State { return r.state }

func (r *Response) ReturnValue() json.RawMessage { return r.value }

func (r *Response) Errors() any { return r.errors }

// Cached reports whether the response was served from the store.
func (r *Response) Cached() bool { return r.cached }
