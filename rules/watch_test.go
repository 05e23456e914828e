package rules_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veildb/veil/rls"
	"github.com/veildb/veil/rules"
)

// registryBox collects registries applied by Watch from its goroutine.
type registryBox struct {
	mu   sync.Mutex
	regs []rls.Registry
}

func (b *registryBox) apply(reg rls.Registry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs = append(b.regs, reg)
}

func (b *registryBox) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.regs)
}

func (b *registryBox) last() rls.Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.regs) == 0 {
		return nil
	}
	return b.regs[len(b.regs)-1]
}

func TestWatchReloads(t *testing.T) {
	t.Parallel()

	path := writePolicy(t, `
tables:
  notes:
    owner_field: owner
`)
	var box registryBox
	var errs registryBox // reuse the counter shape for errors
	onError := func(error) { errs.apply(nil) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rules.Watch(ctx, path, box.apply, onError) }()

	// Initial load applies before Watch starts blocking.
	require.Eventually(t, func() bool { return box.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	reg := box.last()
	require.Contains(t, reg, "notes")
	assert.NotContains(t, reg, "audit")

	// Rewrite the policy; the watcher recompiles and re-applies.
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  notes:
    owner_field: owner
  audit:
    public_read: true
`), 0o600))
	require.Eventually(t, func() bool {
		_, ok := box.last()["audit"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	// A broken rewrite reports through onError and keeps the last good
	// registry.
	before := box.count()
	require.NoError(t, os.WriteFile(path, []byte("tables: ["), 0o600))
	require.Eventually(t, func() bool { return errs.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, before, box.count())
	assert.Contains(t, box.last(), "audit")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

// TestWatchStartupRewrite rewrites the policy immediately after starting the
// watcher, without waiting for the initial apply. The rewrite must still take
// effect: the watch is registered before the initial load, so nothing lands
// in between unseen.
func TestWatchStartupRewrite(t *testing.T) {
	t.Parallel()

	path := writePolicy(t, `
tables:
  notes:
    owner_field: owner
`)
	var box registryBox
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rules.Watch(ctx, path, box.apply, nil) }()

	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  audit:
    public_read: true
`), 0o600))

	require.Eventually(t, func() bool {
		_, ok := box.last()["audit"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchInitialLoadError(t *testing.T) {
	t.Parallel()

	err := rules.Watch(context.Background(), "/nonexistent/policy.yaml", func(rls.Registry) {}, nil)
	assert.Error(t, err)
}
