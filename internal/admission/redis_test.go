package admission

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"flashsale/internal/clock"
)

type fakeScripter struct {
	calls []struct {
		script string
		keys   []string
		args   []interface{}
	}
	reply     interface{}
	returnErr error
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f.calls = append(f.calls, struct {
		script string
		keys   []string
		args   []interface{}
	}{script: script, keys: append([]string{}, keys...), args: append([]interface{}{}, args...)})
	if f.reply == nil {
		return int64(1), nil
	}
	return f.reply, nil
}

func TestBucketKeyHelper(t *testing.T) {
	if got, want := BucketKey("10.0.0.7"), "rate_limit:10.0.0.7"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRedisLimiter_Allow_CallShape(t *testing.T) {
	fake := &fakeScripter{}
	now := time.Unix(1700000000, 0)
	l := NewRedisLimiter(fake, Policy{Capacity: 5, RefillPerSec: 1}, time.Hour).WithClock(clock.NewFixed(now))

	allowed, err := l.Allow(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected admit on reply 1")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.calls))
	}
	c := fake.calls[0]
	if c.script == "" {
		t.Fatalf("expected lua script to be non-empty")
	}
	wantKeys := []string{BucketKey("client-a")}
	if !reflect.DeepEqual(c.keys, wantKeys) {
		t.Fatalf("keys mismatch: got %v want %v", c.keys, wantKeys)
	}
	wantArgs := []interface{}{5.0, 1.0, now.Unix(), int(time.Hour.Seconds())}
	if !reflect.DeepEqual(c.args, wantArgs) {
		t.Fatalf("args mismatch: got %v want %v", c.args, wantArgs)
	}
}

func TestRedisLimiter_Allow_Throttled(t *testing.T) {
	fake := &fakeScripter{reply: int64(0)}
	l := NewRedisLimiter(fake, Policy{Capacity: 5, RefillPerSec: 1}, time.Hour)
	allowed, err := l.Allow(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected throttle on reply 0")
	}
}

func TestRedisLimiter_Allow_ClientErrorPropagates(t *testing.T) {
	fake := &fakeScripter{returnErr: errors.New("boom")}
	l := NewRedisLimiter(fake, Policy{Capacity: 5, RefillPerSec: 1}, time.Hour)
	_, err := l.Allow(context.Background(), "k")
	if err == nil || err.Error() != "redis eval key=k: boom" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisLimiter_Allow_UnexpectedReply(t *testing.T) {
	fake := &fakeScripter{reply: "OK"}
	l := NewRedisLimiter(fake, Policy{Capacity: 5, RefillPerSec: 1}, time.Hour)
	_, err := l.Allow(context.Background(), "k")
	if err == nil {
		t.Fatalf("expected error on non-integer reply")
	}
}

func TestRedisLimiter_Allow_ContextCanceled(t *testing.T) {
	fake := &fakeScripter{}
	l := NewRedisLimiter(fake, Policy{Capacity: 5, RefillPerSec: 1}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Allow(ctx, "k")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRedisLimiter_DefaultTTL(t *testing.T) {
	l := NewRedisLimiter(&fakeScripter{}, Policy{Capacity: 5, RefillPerSec: 1}, 0)
	if l.bucketTTL != time.Hour {
		t.Fatalf("expected default TTL 1h, got %v", l.bucketTTL)
	}
}
