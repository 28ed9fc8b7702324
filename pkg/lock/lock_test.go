package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	m := NewManager()
	counter := 0

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return m.WithLock(ctx, "j1", func(context.Context) error {
				counter++
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("with lock: %v", err)
	}
	if counter != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", counter)
	}
}

func TestWithLockAllowsDifferentKeysConcurrently(t *testing.T) {
	m := NewManager()
	holding := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = m.WithLock(context.Background(), "j1", func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	done := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "j2", func(context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock on j2 blocked behind unrelated key j1")
	}
	close(release)
	wg.Wait()
}

func TestWithLockDropsEntriesWhenIdle(t *testing.T) {
	m := NewManager()
	for i := 0; i < 3; i++ {
		if err := m.WithLock(context.Background(), "j1", func(context.Context) error { return nil }); err != nil {
			t.Fatalf("with lock: %v", err)
		}
	}

	m.mu.Lock()
	remaining := len(m.locks)
	m.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected empty lock map after release, got %d entries", remaining)
	}
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	err      error
}

func (r *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.locked = append(r.locked, key)
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.unlocked++
		return nil
	}, nil
}

func TestWithLockTakesAndReleasesDistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	m := NewManager(WithLocker(locker))

	err := m.WithLock(context.Background(), "j1", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("with lock: %v", err)
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	if len(locker.locked) != 1 || locker.locked[0] != "j1" {
		t.Fatalf("expected distributed lock on j1, got %v", locker.locked)
	}
	if locker.unlocked != 1 {
		t.Fatalf("expected one unlock, got %d", locker.unlocked)
	}
}

func TestWithLockSurfacesDistributedLockFailure(t *testing.T) {
	locker := &recordingLocker{err: errors.New("redis down")}
	m := NewManager(WithLocker(locker))

	ran := false
	err := m.WithLock(context.Background(), "j1", func(context.Context) error {
		ran = true
		return nil
	})
	if err == nil {
		t.Fatalf("expected error when distributed lock cannot be acquired")
	}
	if ran {
		t.Fatalf("callback must not run without the distributed lock")
	}
}
