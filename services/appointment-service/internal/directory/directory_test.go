package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gobarber/appointments/libs/grpcx"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/redis/go-redis/v9"
)

var testUsers = Static{
	1: {ID: 1, Name: "Ana Cliente", Email: "ana@example.com"},
	2: {ID: 2, Name: "Bruno Barbeiro", Email: "bruno@example.com", Provider: true, AvatarPath: "bruno.png"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStaticLookup(t *testing.T) {
	u, err := testUsers.Lookup(context.Background(), 2)
	if err != nil || !u.Provider {
		t.Fatalf("unexpected lookup result %+v (%v)", u, err)
	}
	if _, err := testUsers.Lookup(context.Background(), 99); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestGRPCLookup(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	srv := grpcx.NewServer()
	Register(srv, testUsers)
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	conn, err := grpcx.Dial(lis.Addr().String(), grpcx.DialOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := NewGRPC(conn)
	u, err := client.Lookup(ctx, 2)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u != testUsers[2] {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := client.Lookup(ctx, 42); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser over rpc, got %v", err)
	}
}

type fakeRedis struct {
	redis.Cmdable
	data   map[string]string
	getErr error
	sets   int
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	f.sets++
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	cmd.SetVal("OK")
	return cmd
}

type countingDirectory struct {
	Directory
	calls int
}

func (c *countingDirectory) Lookup(ctx context.Context, id int64) (model.User, error) {
	c.calls++
	return c.Directory.Lookup(ctx, id)
}

func TestCachedReadThrough(t *testing.T) {
	backend := &countingDirectory{Directory: testUsers}
	rdb := &fakeRedis{data: map[string]string{}}
	cached := NewCached(backend, rdb, time.Minute, discardLogger())

	for i := 0; i < 3; i++ {
		u, err := cached.Lookup(context.Background(), 2)
		if err != nil || u != testUsers[2] {
			t.Fatalf("lookup %d: %+v (%v)", i, u, err)
		}
	}
	if backend.calls != 1 {
		t.Fatalf("expected one backend call, got %d", backend.calls)
	}
	if rdb.sets != 1 {
		t.Fatalf("expected one cache write, got %d", rdb.sets)
	}
}

func TestCachedDoesNotCacheUnknownUsers(t *testing.T) {
	backend := &countingDirectory{Directory: testUsers}
	rdb := &fakeRedis{data: map[string]string{}}
	cached := NewCached(backend, rdb, time.Minute, discardLogger())

	for i := 0; i < 2; i++ {
		if _, err := cached.Lookup(context.Background(), 77); !errors.Is(err, ErrUnknownUser) {
			t.Fatalf("expected ErrUnknownUser, got %v", err)
		}
	}
	if backend.calls != 2 || rdb.sets != 0 {
		t.Fatalf("unexpected calls=%d sets=%d", backend.calls, rdb.sets)
	}
}

func TestCachedFallsBackWhenRedisDown(t *testing.T) {
	backend := &countingDirectory{Directory: testUsers}
	rdb := &fakeRedis{data: map[string]string{}, getErr: errors.New("connection refused")}
	cached := NewCached(backend, rdb, time.Minute, discardLogger())

	u, err := cached.Lookup(context.Background(), 1)
	if err != nil || u.Name != "Ana Cliente" {
		t.Fatalf("expected backend result, got %+v (%v)", u, err)
	}
}

func TestCachedFreshLookupBypassesStaleEntry(t *testing.T) {
	users := Static{2: {ID: 2, Name: "Bruno Barbeiro", Provider: true}}
	backend := &countingDirectory{Directory: users}
	rdb := &fakeRedis{data: map[string]string{}}
	cached := NewCached(backend, rdb, time.Minute, discardLogger())

	if _, err := cached.Lookup(context.Background(), 2); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	users[2] = model.User{ID: 2, Name: "Bruno Barbeiro"}

	if u, _ := cached.Lookup(context.Background(), 2); !u.Provider {
		t.Fatal("plain lookup should still be served from the cache")
	}
	u, err := cached.Lookup(WithFresh(context.Background()), 2)
	if err != nil || u.Provider {
		t.Fatalf("fresh lookup must see the demotion, got %+v (%v)", u, err)
	}
	if u, _ := cached.Lookup(context.Background(), 2); u.Provider {
		t.Fatal("fresh lookup should have refreshed the cached entry")
	}
	if backend.calls != 2 {
		t.Fatalf("expected two backend calls, got %d", backend.calls)
	}
}
