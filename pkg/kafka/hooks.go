package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const traceHeader = "trace_id"

// ConsumerHook observes message handling. OnError fires once per message,
// after the last attempt has failed.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, msg kafka.Message) context.Context
	AfterHandle(ctx context.Context, msg kafka.Message, elapsed time.Duration, err error)
	OnError(ctx context.Context, msg kafka.Message, err error)
}

// HookFuncs adapts plain functions to ConsumerHook. Nil fields are skipped.
type HookFuncs struct {
	Before func(ctx context.Context, msg kafka.Message) context.Context
	After  func(ctx context.Context, msg kafka.Message, elapsed time.Duration, err error)
	Err    func(ctx context.Context, msg kafka.Message, err error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, msg kafka.Message) context.Context {
	if h.Before == nil {
		return ctx
	}
	if next := h.Before(ctx, msg); next != nil {
		return next
	}
	return ctx
}

func (h HookFuncs) AfterHandle(ctx context.Context, msg kafka.Message, elapsed time.Duration, err error) {
	if h.After != nil {
		h.After(ctx, msg, elapsed, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, msg kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, msg, err)
	}
}

// HookChain runs hooks in order. A panicking hook is recovered and does not
// stop the rest of the chain or the consumer.
type HookChain []ConsumerHook

func NewHookChain(hooks ...ConsumerHook) HookChain {
	out := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (c HookChain) BeforeHandle(ctx context.Context, msg kafka.Message) context.Context {
	for _, h := range c {
		_ = guard(func() { ctx = h.BeforeHandle(ctx, msg) })
	}
	return ctx
}

func (c HookChain) AfterHandle(ctx context.Context, msg kafka.Message, elapsed time.Duration, err error) {
	for _, h := range c {
		_ = guard(func() { h.AfterHandle(ctx, msg, elapsed, err) })
	}
}

func (c HookChain) OnError(ctx context.Context, msg kafka.Message, err error) {
	for _, h := range c {
		_ = guard(func() { h.OnError(ctx, msg, err) })
	}
}

func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panic: %v", r)
		}
	}()
	fn()
	return nil
}

type traceKey struct{}

// WithTraceID stores a trace id that Producer.Publish forwards as a header.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func traceFromHeaders(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == traceHeader {
			return string(h.Value)
		}
	}
	return ""
}
