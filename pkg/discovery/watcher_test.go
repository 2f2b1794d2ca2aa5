package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPollInterval = 20 * time.Millisecond

func startWatcher(t *testing.T, registry *Registry) chan ChangeEvent {
	t.Helper()

	events := make(chan ChangeEvent, 32)
	registry.Bus().Subscribe(func(_ context.Context, event ChangeEvent) error {
		events <- event
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	watcher := registry.Watcher()
	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop after cancellation")
		}
	})

	return events
}

func nextEvent(t *testing.T, events chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, events chan ChangeEvent) {
	t.Helper()
	select {
	case event := <-events:
		t.Fatalf("unexpected event: %+v", event)
	case <-time.After(10 * testPollInterval):
	}
}

// rewriteDefinition replaces a definition file in a single visible transition:
// the new content is staged with a modification time strictly greater than the
// original's and renamed into place, so the watcher observes exactly one change.
func rewriteDefinition(t *testing.T, path, content string) {
	t.Helper()
	staged := path + ".staged"
	require.NoError(t, os.WriteFile(staged, []byte(content), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(staged, future, future))
	require.NoError(t, os.Rename(staged, path))
}

func TestWatcherDetectsAddition(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval))
	commandsDir := filepath.Join(base, "commands")
	require.NoError(t, os.MkdirAll(commandsDir, 0o755))

	events := startWatcher(t, registry)

	path := writeDefinition(t, commandsDir, "a.md", "---\nid: a\n---\n")

	event := nextEvent(t, events)
	assert.Equal(t, ChangeAdded, event.Kind)
	assert.Equal(t, "a", event.ID)
	assert.Equal(t, CategoryCommand, event.Category)
	assert.Equal(t, path, event.Path)

	assertNoEvent(t, events)
}

func TestWatcherDetectsModification(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval))
	commandsDir := filepath.Join(base, "commands")
	path := writeDefinition(t, commandsDir, "a.md", "---\nid: a\nname: One\n---\n")

	events := startWatcher(t, registry)

	// The first cycle diffs against an empty snapshot, so the pre-existing
	// file surfaces as an addition.
	added := nextEvent(t, events)
	require.Equal(t, ChangeAdded, added.Kind)
	require.Equal(t, "a", added.ID)

	rewriteDefinition(t, path, "---\nid: a\nname: Two\n---\n")

	modified := nextEvent(t, events)
	assert.Equal(t, ChangeModified, modified.Kind)
	assert.Equal(t, "a", modified.ID)
	assert.Equal(t, path, modified.Path)

	assertNoEvent(t, events)
}

func TestWatcherDetectsRemoval(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval))
	commandsDir := filepath.Join(base, "commands")
	path := writeDefinition(t, commandsDir, "a.md", "---\nid: custom-id\n---\n")

	events := startWatcher(t, registry)

	added := nextEvent(t, events)
	require.Equal(t, ChangeAdded, added.Kind)

	require.NoError(t, os.Remove(path))

	removed := nextEvent(t, events)
	assert.Equal(t, ChangeRemoved, removed.Kind)
	assert.Equal(t, "custom-id", removed.ID, "removal must report the last-known identifier")
	assert.Equal(t, path, removed.Path)

	_, ok := registry.cache.Peek(path)
	assert.False(t, ok, "removed file must not linger in the cache")
}

func TestWatcherRemovalFallsBackToStem(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval))
	commandsDir := filepath.Join(base, "commands")
	// Invalid UTF-8 is never cached, so the removal can only use the stem.
	require.NoError(t, os.MkdirAll(commandsDir, 0o755))
	path := filepath.Join(commandsDir, "binary.md")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe}, 0o644))

	events := startWatcher(t, registry)

	// Allow at least one cycle to observe the path, then delete it.
	time.Sleep(5 * testPollInterval)
	require.NoError(t, os.Remove(path))

	removed := nextEvent(t, events)
	assert.Equal(t, ChangeRemoved, removed.Kind)
	assert.Equal(t, "binary", removed.ID)
}

func TestWatcherCoversNestedCategory(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval))
	skillsDir := filepath.Join(base, "skills")
	require.NoError(t, os.MkdirAll(skillsDir, 0o755))

	events := startWatcher(t, registry)

	writeSkill(t, skillsDir, "golang", "---\nid: golang\n---\n")

	event := nextEvent(t, events)
	assert.Equal(t, ChangeAdded, event.Kind)
	assert.Equal(t, "golang", event.ID)
	assert.Equal(t, CategorySkill, event.Category)
}

func TestWatcherRejectsConcurrentRuns(t *testing.T) {
	registry, _ := newTestRegistry(t, WithPollInterval(testPollInterval))
	watcher := registry.Watcher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- watcher.Watch(ctx) }()

	require.Eventually(t, watcher.Running, time.Second, time.Millisecond)

	err := watcher.Watch(ctx)
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.False(t, watcher.Running())
}

func TestWatcherWithNotifyKeepsSemantics(t *testing.T) {
	registry, base := newTestRegistry(t, WithPollInterval(testPollInterval), WithNotify(true))
	commandsDir := filepath.Join(base, "commands")
	require.NoError(t, os.MkdirAll(commandsDir, 0o755))

	events := startWatcher(t, registry)

	writeDefinition(t, commandsDir, "a.md", "---\nid: a\n---\n")

	event := nextEvent(t, events)
	assert.Equal(t, ChangeAdded, event.Kind)
	assert.Equal(t, "a", event.ID)
}
