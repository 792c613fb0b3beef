// Package action invokes named managed actions on a host queue and turns their
// completion state into a return value or an error.
package action

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is the completion state a host reports for an action.
type State string

const (
	StateSuccess    State = "SUCCESS"
	StateError      State = "ERROR"
	StateIncomplete State = "INCOMPLETE"
	StateAborted    State = "ABORTED"
)

// ErrorEntry is one structured error reported by the host.
type ErrorEntry struct {
	Message string `json:"message"`
}

// Response is what a host hands to an action's callback.
type Response interface {
	State() State
	ReturnValue() json.RawMessage
	// Errors is nil, a string or a []ErrorEntry.
	Errors() any
}

// CallerContext reports whether the caller that submitted an action is still
// alive.
type CallerContext interface {
	IsValid() bool
}

// Action is a host-side action being prepared for submission.
type Action interface {
	Name() string
	SetParams(params map[string]any)
	SetBackground()
	SetStorable()
	SetCallback(caller CallerContext, fn func(Response))
}

// Host looks up actions and queues them for execution.
type Host interface {
	Get(name string) (Action, error)
	Enqueue(a Action) error
}

// Options are the execution flags of a single invocation.
type Options struct {
	// Background runs the action off the interactive queue.
	Background bool `json:"background"`
	// Storable lets the host serve and store a cached response.
	Storable bool `json:"storable"`
}

// Error is a failed action. Payload is the host's error value as reported.
type Error struct {
	Action  string
	State   State
	Payload any
}

func (e *Error) Error() string {
	msgs := errorMessages(e.Payload)
	if len(msgs) == 0 {
		return fmt.Sprintf("action %q failed with state %s", e.Action, e.State)
	}
	return fmt.Sprintf("action %q failed with state %s: %s", e.Action, e.State, strings.Join(msgs, "; "))
}

// errorMessages flattens a host error payload into its messages. An empty
// result means the host gave no usable error.
func errorMessages(payload any) []string {
	switch v := payload.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []ErrorEntry:
		msgs := make([]string, 0, len(v))
		for _, e := range v {
			msgs = append(msgs, e.Message)
		}
		return msgs
	case []any:
		msgs := make([]string, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				msgs = append(msgs, fmt.Sprint(m["message"]))
				continue
			}
			msgs = append(msgs, fmt.Sprint(e))
		}
		return msgs
	case error:
		return []string{v.Error()}
	default:
		return []string{fmt.Sprint(v)}
	}
}
