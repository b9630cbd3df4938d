package router

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "loungebot/internal/transport"
	logx "loungebot/pkg/logx"
)

func testRequest() *Request {
	return &Request{
		In:      kit.Interaction{GuildID: "g1", ChannelID: "c1", UserID: "u1"},
		Command: "test",
		ReqID:   "req-1",
	}
}

func TestChainWrapsInOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) error {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	h := Chain(func(ctx context.Context, req *Request) error {
		order = append(order, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	if err := h(context.Background(), testRequest()); err != nil {
		t.Fatalf("chain: %v", err)
	}
	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestMWTimeoutAppliesDeadline(t *testing.T) {
	h := MWTimeout(50 * time.Millisecond)(func(ctx context.Context, req *Request) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("expected a deadline")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("timeout never fired")
		}
	})

	err := h(context.Background(), testRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestMWTimeoutZeroIsNoop(t *testing.T) {
	h := MWTimeout(0)(func(ctx context.Context, req *Request) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("zero timeout must not set a deadline")
		}
		return nil
	})
	if err := h(context.Background(), testRequest()); err != nil {
		t.Fatalf("h: %v", err)
	}
}

func TestMWPanicRecoverConvertsPanic(t *testing.T) {
	h := MWPanicRecover(logx.Nop())(func(ctx context.Context, req *Request) error {
		panic("kaboom")
	})

	err := h(context.Background(), testRequest())
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}
	if got := err.Error(); got != "panic: kaboom" {
		t.Fatalf("err = %q", got)
	}
}

func TestMWRequestLogPassesErrorThrough(t *testing.T) {
	sentinel := errors.New("handler failed")
	h := MWRequestLog(logx.Nop())(func(ctx context.Context, req *Request) error {
		return sentinel
	})

	if err := h(context.Background(), testRequest()); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}
