// Package dispatch routes a request to the child frame and unwraps the
// {success, data} envelope it answers with.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/HsiangNianian/framebridge/internal/request"
)

// Kind selects the remote operation a request is sent to.
type Kind string

const (
	KindRest  Kind = "rest"
	KindFetch Kind = "fetch"
)

var ErrInvalidKind = errors.New("invalid request type")

// EnvelopeError is a failed envelope. Data is the remote side's error payload,
// passed on without interpretation.
type EnvelopeError struct {
	Kind Kind
	Data json.RawMessage

	invalidKind bool
}

func (e *EnvelopeError) Error() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	if len(e.Data) == 0 {
		return fmt.Sprintf("%s request failed", e.Kind)
	}
	return string(e.Data)
}

func (e *EnvelopeError) Unwrap() error {
	if e.invalidKind {
		return ErrInvalidKind
	}
	return nil
}

// Dispatch sends req through ch using the operation named by kind and returns
// the envelope's data on success. An unknown kind never reaches ch.
func Dispatch(ctx context.Context, kind Kind, ch channel.Channel, req request.Descriptor) (json.RawMessage, error) {
	var (
		resp protocol.Response
		err  error
	)
	switch kind {
	case KindRest:
		resp, err = ch.RestRequest(ctx, req)
	case KindFetch:
		resp, err = ch.FetchRequest(ctx, req)
	default:
		msg, _ := json.Marshal(fmt.Sprintf("%s: %s", ErrInvalidKind, kind))
		return nil, &EnvelopeError{Kind: kind, Data: msg, invalidKind: true}
	}
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", kind, err)
	}
	return unwrap(kind, resp)
}

func unwrap(kind Kind, resp protocol.Response) (json.RawMessage, error) {
	if !resp.Success {
		return nil, &EnvelopeError{Kind: kind, Data: resp.Data}
	}
	return resp.Data, nil
}
