// Package bridge is the entry point the embedding component uses: REST and
// fetch requests through the child frame, and managed action calls.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/HsiangNianian/framebridge/internal/action"
	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/dispatch"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/HsiangNianian/framebridge/internal/scope"
	"go.uber.org/zap"
)

type Bridge struct {
	holder  *channel.Holder
	invoker *action.Invoker
	scope   *scope.Scope
	logger  *zap.Logger
}

type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithScope ties the bridge to an existing component scope.
func WithScope(s *scope.Scope) Option {
	return func(b *Bridge) {
		if s != nil {
			b.scope = s
		}
	}
}

func New(holder *channel.Holder, host action.Host, options ...Option) *Bridge {
	b := &Bridge{
		holder: holder,
		scope:  scope.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(b)
	}
	b.invoker = action.NewInvoker(host, action.WithLogger(b.logger))
	return b
}

// RestRequest sends req to the child frame's REST operation.
func (b *Bridge) RestRequest(ctx context.Context, req request.Descriptor) (json.RawMessage, error) {
	return b.send(ctx, dispatch.KindRest, req)
}

// FetchRequest sends req to the child frame's fetch operation.
func (b *Bridge) FetchRequest(ctx context.Context, req request.Descriptor) (json.RawMessage, error) {
	return b.send(ctx, dispatch.KindFetch, req)
}

// ApexRequest invokes the managed action name on behalf of caller.
func (b *Bridge) ApexRequest(ctx context.Context, caller action.CallerContext, name string, params map[string]any, opts *action.Options) (json.RawMessage, error) {
	return b.invoker.Invoke(ctx, caller, name, params, opts)
}

// Close invalidates the component scope. Requests waiting for the channel
// stop waiting and fail with scope.ErrClosed instead of being sent.
func (b *Bridge) Close() {
	b.scope.Close()
}

func (b *Bridge) send(ctx context.Context, kind dispatch.Kind, req request.Descriptor) (json.RawMessage, error) {
	req = request.Normalize(req)

	waitCtx, cancel := b.scope.Bind(ctx)
	ch, err := b.holder.Await(waitCtx)
	cancel()
	if err != nil {
		if !b.scope.IsValid() {
			return nil, scope.ErrClosed
		}
		b.logger.Warn("channel not available", zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}

	var data json.RawMessage
	err = b.scope.Run(func() error {
		var err error
		data, err = dispatch.Dispatch(ctx, kind, ch, req)
		return err
	})
	return data, err
}
