package action

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

type Invoker struct {
	host   Host
	logger *zap.Logger
}

type Option func(*Invoker)

func WithLogger(l *zap.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

func NewInvoker(host Host, options ...Option) *Invoker {
	i := &Invoker{host: host, logger: zap.NewNop()}
	for _, opt := range options {
		opt(i)
	}
	return i
}

type result struct {
	value json.RawMessage
	err   error
}

// Invoke submits the named action once and waits for its callback. params and
// opts are optional. The action succeeds only if the host reports SUCCESS and
// caller is non-nil and still valid when the callback fires; any other outcome is logged
// and returned as *Error carrying the host's raw error payload.
//
// Cancelling ctx stops the wait; the submitted action still runs.
func (i *Invoker) Invoke(ctx context.Context, caller CallerContext, name string, params map[string]any, opts *Options) (json.RawMessage, error) {
	a, err := i.host.Get(name)
	if err != nil {
		return nil, fmt.Errorf("get action %q: %w", name, err)
	}

	if params != nil {
		a.SetParams(params)
	}
	if opts != nil {
		if opts.Background {
			a.SetBackground()
		}
		if opts.Storable {
			a.SetStorable()
		}
	}

	done := make(chan result, 1)
	a.SetCallback(caller, func(resp Response) {
		r := i.complete(caller, name, resp)
		select {
		case done <- r:
		default:
		}
	})

	if err := i.host.Enqueue(a); err != nil {
		return nil, fmt.Errorf("enqueue action %q: %w", name, err)
	}

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *Invoker) complete(caller CallerContext, name string, resp Response) result {
	state := resp.State()
	if caller != nil && caller.IsValid() && state == StateSuccess {
		return result{value: resp.ReturnValue()}
	}

	payload := resp.Errors()
	log := i.logger.Sugar()
	log.Errorf("Error calling action %q with state: %s", name, state)
	logErrors(log, payload)

	return result{err: &Error{Action: name, State: state, Payload: payload}}
}

func logErrors(log *zap.SugaredLogger, payload any) {
	msgs := errorMessages(payload)
	if len(msgs) == 0 {
		log.Error("Unknown error")
		return
	}
	for _, m := range msgs {
		log.Errorf("Error: %s", m)
	}
}
