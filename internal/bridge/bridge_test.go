package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HsiangNianian/framebridge/internal/action"
	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/dispatch"
	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/HsiangNianian/framebridge/internal/queue"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/HsiangNianian/framebridge/internal/scope"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu    sync.Mutex
	reqs  []request.Descriptor
	kinds []string
	rest  protocol.Response
	fetch protocol.Response
}

func (c *fakeChannel) RestRequest(_ context.Context, req request.Descriptor) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	c.kinds = append(c.kinds, "rest")
	return c.rest, nil
}

func (c *fakeChannel) FetchRequest(_ context.Context, req request.Descriptor) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	c.kinds = append(c.kinds, "fetch")
	return c.fetch, nil
}

func newBridge(t *testing.T, ch channel.Channel) (*Bridge, *queue.Host) {
	t.Helper()
	holder := channel.NewHolder()
	if ch != nil {
		holder.Set(ch)
	}
	host := queue.New()
	t.Cleanup(func() { _ = host.Close() })
	return New(holder, host), host
}

func TestRestRequestNormalizes(t *testing.T) {
	ch := &fakeChannel{rest: protocol.Response{Success: true, Data: json.RawMessage(`{"totalSize":2}`)}}
	b, _ := newBridge(t, ch)

	data, err := b.RestRequest(context.Background(), request.Descriptor{
		"url":     "/services/data/v45.0/query?q=SELECT+Id+FROM+Account",
		"headers": map[string]string{"X-Trace": "1"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalSize":2}`, string(data))

	require.Len(t, ch.reqs, 1)
	sent := ch.reqs[0]
	assert.Equal(t, []string{"rest"}, ch.kinds)
	assert.Equal(t, "get", sent.Method())
	assert.Equal(t, map[string]string{"Content-Type": "application/json", "X-Trace": "1"}, sent.Headers())
}

func TestFetchRequestFailure(t *testing.T) {
	ch := &fakeChannel{fetch: protocol.Response{Data: json.RawMessage(`"not found"`)}}
	b, _ := newBridge(t, ch)

	_, err := b.FetchRequest(context.Background(), request.Descriptor{"url": "https://api.example.com/x", "method": "post"})
	var envErr *dispatch.EnvelopeError
	require.ErrorAs(t, err, &envErr)
	assert.Equal(t, "not found", err.Error())
	assert.Equal(t, []string{"fetch"}, ch.kinds)
	assert.Equal(t, "post", ch.reqs[0].Method())
}

func TestRequestWaitsForChannel(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	holder := channel.NewHolder(channel.WithClock(clk))
	b := New(holder, queue.New())

	ch := &fakeChannel{rest: protocol.Response{Success: true, Data: json.RawMessage(`1`)}}
	done := make(chan error, 1)
	go func() {
		_, err := b.RestRequest(context.Background(), nil)
		done <- err
	}()

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	holder.Set(ch)
	require.NoError(t, <-done)
	assert.Len(t, ch.reqs, 1)
}

func TestRequestTimesOut(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	b := New(channel.NewHolder(channel.WithClock(clk)), queue.New())

	done := make(chan error, 1)
	go func() {
		_, err := b.FetchRequest(context.Background(), nil)
		done <- err
	}()
	require.NoError(t, clk.WaitAdvance(channel.DefaultWaitTimeout, time.Second, 1))
	assert.ErrorIs(t, <-done, channel.ErrTimeout)
}

func TestClosedBridgeDoesNotDispatch(t *testing.T) {
	ch := &fakeChannel{rest: protocol.Response{Success: true}}
	b, _ := newBridge(t, ch)
	b.Close()

	_, err := b.RestRequest(context.Background(), nil)
	assert.ErrorIs(t, err, scope.ErrClosed)
	assert.Empty(t, ch.reqs)
}

func TestCloseReleasesWaitingRequest(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	holder := channel.NewHolder(channel.WithClock(clk))
	host := queue.New()
	t.Cleanup(func() { _ = host.Close() })
	b := New(holder, host)

	done := make(chan error, 1)
	go func() {
		_, err := b.RestRequest(context.Background(), nil)
		done <- err
	}()
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	b.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, scope.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("request still waiting after Close")
	}

	ch := &fakeChannel{rest: protocol.Response{Success: true}}
	holder.Set(ch)
	assert.Empty(t, ch.reqs)
}

func TestSharedScope(t *testing.T) {
	s := scope.New()
	holder := channel.NewHolder()
	ch := &fakeChannel{rest: protocol.Response{Success: true}}
	holder.Set(ch)
	b := New(holder, queue.New(), WithScope(s))

	s.Close()
	_, err := b.RestRequest(context.Background(), nil)
	assert.ErrorIs(t, err, scope.ErrClosed)
}

func TestApexRequest(t *testing.T) {
	b, host := newBridge(t, nil)
	host.Group("c").Register("getAccounts", func(_ context.Context, p map[string]any) (any, error) {
		return []map[string]any{{"Id": "001", "Name": p["name"]}}, nil
	})
	host.Group("c").Register("failing", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("bad input")
	})

	caller := scope.New()
	data, err := b.ApexRequest(context.Background(), caller, "c.getAccounts", map[string]any{"name": "Acme"}, &action.Options{Storable: true})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Id":"001","Name":"Acme"}]`, string(data))

	_, err = b.ApexRequest(context.Background(), caller, "c.failing", nil, nil)
	var actErr *action.Error
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, []action.ErrorEntry{{Message: "bad input"}}, actErr.Payload)

	caller.Close()
	_, err = b.ApexRequest(context.Background(), caller, "c.getAccounts", nil, nil)
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, action.StateSuccess, actErr.State)
}
