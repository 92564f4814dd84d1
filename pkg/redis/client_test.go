package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/furnishly-backend/pkg/config"
)

func TestIncrWithTTLStartsWindowOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{cmd: mock}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, "furnishly:rl:login:ip:1.2.3.4", time.Minute)
		if err != nil {
			t.Fatalf("incr %d: %v", want, err)
		}
		if got != want {
			t.Fatalf("expected count %d, got %d", want, got)
		}
	}
	if ttl := mock.ttls["furnishly:rl:login:ip:1.2.3.4"]; ttl != time.Minute {
		t.Fatalf("expected one minute window, got %s", ttl)
	}
	if mock.evalFallbacks != 1 {
		t.Fatalf("expected a single EVAL fallback before the script is cached, got %d", mock.evalFallbacks)
	}
}

func TestDeleteIfValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{cmd: mock}
	mock.data["furnishly:lock:cron-worker"] = "owner-a"

	deleted, err := client.DeleteIfValue(ctx, "furnishly:lock:cron-worker", "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.DeleteIfValue(ctx, "furnishly:lock:cron-worker", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner should delete: deleted=%v err=%v", deleted, err)
	}
	if _, ok := mock.data["furnishly:lock:cron-worker"]; ok {
		t.Fatal("key still present")
	}
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMockCmdable()}

	key := client.AccessSessionKey("jti-1")
	if err := client.Set(ctx, key, "refresh-value", 10*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	token, err := client.Get(ctx, key)
	if err != nil || token != "refresh-value" {
		t.Fatalf("expected stored token, got %q err=%v", token, err)
	}
	if ok, _ := client.SetNX(ctx, key, "other", time.Minute); ok {
		t.Fatal("setnx overwrote an existing key")
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	if err := client.Ping(ctx); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.IncrWithTTL(ctx, "k", time.Second); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.DeleteIfValue(ctx, "k", "v"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw client should be a no-op, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@cache:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.Password != "secret" || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 3 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "furnishly:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("cron-worker", "prod"); got != "furnishly:lock:cron-worker:prod" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.LockKey("cron-worker", " "); got != "furnishly:lock:cron-worker" {
		t.Fatalf("lock key should skip blank parts, got %s", got)
	}
	if got := client.AccessSessionKey("jti"); got != "furnishly:session:access:jti" {
		t.Fatalf("unexpected session key %s", got)
	}
}

// serverError satisfies redis.Error so Script.Run recognises NOSCRIPT replies.
type serverError string

func (e serverError) Error() string { return string(e) }
func (serverError) RedisError()     {}

// mockCmdable emulates the two Lua scripts by hash so Script.Run works without a server.
type mockCmdable struct {
	data          map[string]string
	counters      map[string]int64
	ttls          map[string]time.Duration
	loaded        map[string]bool
	evalFallbacks int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     map[string]string{},
		counters: map[string]int64{},
		ttls:     map[string]time.Duration{},
		loaded:   map[string]bool{},
	}
}

func (m *mockCmdable) runScript(sha string, keys []string, args []any) *redis.Cmd {
	key := keys[0]
	switch sha {
	case incrWithTTLScript.Hash():
		m.counters[key]++
		if m.counters[key] == 1 {
			if ms, ok := args[0].(int64); ok && ms > 0 {
				m.ttls[key] = time.Duration(ms) * time.Millisecond
			}
		}
		return redis.NewCmdResult(m.counters[key], nil)
	case deleteIfValueScript.Hash():
		if v, ok := m.data[key]; ok && v == fmt.Sprint(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if !m.loaded[sha] {
		return redis.NewCmdResult(nil, serverError("NOSCRIPT No matching script. Please use EVAL."))
	}
	return m.runScript(sha, keys, args)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evalFallbacks++
	sha := redis.NewScript(script).Hash()
	m.loaded[sha] = true
	return m.runScript(sha, keys, args)
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		out[i] = m.loaded[h]
	}
	return redis.NewBoolSliceResult(out, nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	sha := redis.NewScript(script).Hash()
	m.loaded[sha] = true
	return redis.NewStringResult(sha, nil)
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
