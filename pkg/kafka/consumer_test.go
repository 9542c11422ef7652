package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applogger "QuantLens/pkg/logger"
)

type flakyHandler struct {
	failures int
	calls    int
	err      error
}

func (h *flakyHandler) Topic() string { return "chains" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.failures {
		return h.err
	}
	return nil
}

func testConsumer(retries int) *Consumer {
	consumerMetricsOnce.Do(registerConsumerMetrics)
	return &Consumer{
		cfg: ConsumerConfig{
			RetryMax:   retries,
			BackoffMin: time.Millisecond,
			BackoffMax: 2 * time.Millisecond,
		},
		l:    applogger.Nop(),
		hook: HookChain(nil),
	}
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c := testConsumer(3)
	h := &flakyHandler{failures: 2, err: errors.New("transient")}

	err := c.handle(context.Background(), h, kafka.Message{Topic: "chains"})
	require.NoError(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestHandleGivesUpAfterRetryMax(t *testing.T) {
	c := testConsumer(2)
	h := &flakyHandler{failures: 10, err: errors.New("transient")}

	err := c.handle(context.Background(), h, kafka.Message{Topic: "chains"})
	require.Error(t, err)
	assert.Equal(t, 3, h.calls)
}

func TestHandleDoesNotRetryPermanent(t *testing.T) {
	c := testConsumer(5)
	h := &flakyHandler{failures: 10, err: Permanent(errors.New("bad payload"))}

	err := c.handle(context.Background(), h, kafka.Message{Topic: "chains"})
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, h.calls)
}

func TestHandleRunsHooks(t *testing.T) {
	c := testConsumer(1)
	var before, after int
	c.SetHook(NewHookChain(HookFuncs{
		Before: func(ctx context.Context, _ kafka.Message) context.Context {
			before++
			return WithTraceID(ctx, "abc")
		},
		After: func(ctx context.Context, _ kafka.Message, _ time.Duration, _ error) {
			after++
			assert.Equal(t, "abc", TraceID(ctx))
		},
	}))
	h := &flakyHandler{failures: 1, err: errors.New("once")}

	require.NoError(t, c.handle(context.Background(), h, kafka.Message{Topic: "chains"}))
	assert.Equal(t, 2, before)
	assert.Equal(t, 2, after)
}

func TestHookChainRecoversPanics(t *testing.T) {
	var reached bool
	chain := NewHookChain(
		HookFuncs{Err: func(context.Context, kafka.Message, error) { panic("boom") }},
		nil,
		HookFuncs{Err: func(context.Context, kafka.Message, error) { reached = true }},
	)

	assert.NotPanics(t, func() {
		chain.OnError(context.Background(), kafka.Message{}, errors.New("x"))
	})
	assert.True(t, reached)
	assert.Len(t, chain, 2)
}

func TestBackoffIsBounded(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(min, max, attempt)
		assert.GreaterOrEqual(t, d, min)
		assert.Less(t, d, max+max/5+time.Millisecond)
	}
	assert.Less(t, backoff(min, max, 1), 2*min)
}

func TestLaneForIsStable(t *testing.T) {
	for p := 0; p < 16; p++ {
		lane := laneFor("chains", p, 4)
		assert.Equal(t, lane, laneFor("chains", p, 4))
		assert.GreaterOrEqual(t, lane, 0)
		assert.Less(t, lane, 4)
	}
	assert.Equal(t, 0, laneFor("chains", 7, 1))
}

func TestTraceFromHeaders(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: traceHeader, Value: []byte("t-1")}}}
	assert.Equal(t, "t-1", traceFromHeaders(msg))
	assert.Empty(t, traceFromHeaders(kafka.Message{}))
	assert.Empty(t, TraceID(context.Background()))
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	raw, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(raw))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{}, nil)
	assert.Error(t, err)
	_, err = NewProducer(ProducerConfig{})
	assert.Error(t, err)
}
