package channel

import (
	"context"
	"testing"
	"time"

	"github.com/HsiangNianian/framebridge/internal/protocol"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChannel struct{ name string }

func (stubChannel) RestRequest(context.Context, request.Descriptor) (protocol.Response, error) {
	return protocol.Response{Success: true}, nil
}

func (stubChannel) FetchRequest(context.Context, request.Descriptor) (protocol.Response, error) {
	return protocol.Response{Success: true}, nil
}

type awaitResult struct {
	ch  Channel
	err error
}

func awaitAsync(ctx context.Context, h *Holder) <-chan awaitResult {
	out := make(chan awaitResult, 1)
	go func() {
		ch, err := h.Await(ctx)
		out <- awaitResult{ch, err}
	}()
	return out
}

func TestAwaitReturnsHeldChannelWithoutTimer(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHolder(WithClock(clk))
	want := stubChannel{"a"}
	require.True(t, h.Set(want))

	ch, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, ch)

	// no timer was started, so there is nothing to advance
	assert.Error(t, clk.WaitAdvance(time.Second, 10*time.Millisecond, 1))
}

func TestAwaitResolvesWhenSet(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHolder(WithClock(clk))
	res := awaitAsync(context.Background(), h)

	// wait for the waiter to arm its timer, then complete the handshake
	require.NoError(t, clk.WaitAdvance(3*time.Second, time.Second, 1))
	want := stubChannel{"late"}
	require.True(t, h.Set(want))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, want, r.ch)
	case <-time.After(time.Second):
		t.Fatal("await did not resolve after Set")
	}
}

func TestAwaitTimesOutAtDeadline(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHolder(WithClock(clk))
	res := awaitAsync(context.Background(), h)

	require.NoError(t, clk.WaitAdvance(9999*time.Millisecond, time.Second, 1))
	select {
	case r := <-res:
		t.Fatalf("await returned before deadline: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Advance(time.Millisecond)
	select {
	case r := <-res:
		assert.ErrorIs(t, r.err, ErrTimeout)
		assert.Nil(t, r.ch)
	case <-time.After(time.Second):
		t.Fatal("await did not time out")
	}
}

func TestTimeoutDoesNotAffectLaterCalls(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHolder(WithClock(clk), WithWaitTimeout(time.Second))
	res := awaitAsync(context.Background(), h)
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	assert.ErrorIs(t, (<-res).err, ErrTimeout)

	require.True(t, h.Set(stubChannel{"b"}))
	ch, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stubChannel{"b"}, ch)
}

func TestAwaitConcurrentWaiters(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	h := NewHolder(WithClock(clk))

	const n = 5
	results := make([]<-chan awaitResult, n)
	for i := range results {
		results[i] = awaitAsync(context.Background(), h)
	}
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, n))
	h.Set(stubChannel{"shared"})

	for _, res := range results {
		r := <-res
		require.NoError(t, r.err)
		assert.Equal(t, stubChannel{"shared"}, r.ch)
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	h := NewHolder()
	ctx, cancel := context.WithCancel(context.Background())
	res := awaitAsync(ctx, h)
	cancel()
	r := <-res
	assert.ErrorIs(t, r.err, context.Canceled)
}

func TestSetIsWriteOnce(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Get())
	assert.False(t, h.Set(nil))
	assert.True(t, h.Set(stubChannel{"first"}))
	assert.False(t, h.Set(stubChannel{"second"}))
	assert.Equal(t, stubChannel{"first"}, h.Get())
}
