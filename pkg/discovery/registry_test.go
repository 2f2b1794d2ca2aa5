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

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, string) {
	t.Helper()
	base := t.TempDir()
	registry, err := NewRegistry(append([]Option{WithBaseDir(base)}, opts...)...)
	require.NoError(t, err)
	return registry, base
}

func TestNewRegistryDefaults(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(DefaultBaseDir, "commands"), registry.commandsDir)
	assert.Equal(t, filepath.Join(DefaultBaseDir, "skills"), registry.skillsDir)
	assert.Equal(t, filepath.Join(DefaultBaseDir, "agents"), registry.agentsDir)
	assert.Equal(t, DefaultPollInterval, registry.interval)
	assert.Len(t, registry.scanners, 3)
}

func TestNewRegistryOverrides(t *testing.T) {
	registry, err := NewRegistry(
		WithBaseDir("/srv/deck"),
		WithAgentsDir("/elsewhere/agents"),
		WithCacheMaxEntries(5),
		WithPollInterval(250*time.Millisecond),
	)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/deck", "commands"), registry.commandsDir)
	assert.Equal(t, "/elsewhere/agents", registry.agentsDir)
	assert.Equal(t, 250*time.Millisecond, registry.interval)
}

func TestNewRegistryInvalidOptions(t *testing.T) {
	_, err := NewRegistry(WithCacheMaxEntries(0))
	assert.Error(t, err)

	_, err = NewRegistry(WithPollInterval(0))
	assert.Error(t, err)

	_, err = NewRegistry(WithBaseDir(""))
	assert.Error(t, err)
}

func TestScanAllMergesCategories(t *testing.T) {
	ctx := context.Background()
	registry, base := newTestRegistry(t)

	writeDefinition(t, filepath.Join(base, "commands"), "fix.md", "---\nid: fix\nname: Fixer\n---\n")
	writeSkill(t, filepath.Join(base, "skills"), "golang", "---\nid: golang\n---\n")
	writeDefinition(t, filepath.Join(base, "agents"), "helper.md", "---\nid: helper\n---\n")

	descriptors, err := registry.ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, descriptors, 3)

	categories := make(map[string]Category)
	for _, d := range descriptors {
		categories[d.ID] = d.Category
	}
	assert.Equal(t, CategoryCommand, categories["fix"])
	assert.Equal(t, CategorySkill, categories["golang"])
	assert.Equal(t, CategoryAgent, categories["helper"])
}

func TestScanAllWithMissingCategory(t *testing.T) {
	ctx := context.Background()
	registry, base := newTestRegistry(t)

	// Only two of the three roots exist.
	writeDefinition(t, filepath.Join(base, "commands"), "fix.md", "---\nid: fix\n---\n")
	writeDefinition(t, filepath.Join(base, "agents"), "helper.md", "---\nid: helper\n---\n")

	descriptors, err := registry.ScanAll(ctx)
	require.NoError(t, err, "a missing root is not a scan failure")
	assert.Len(t, descriptors, 2)
}

func TestScanAllIdempotent(t *testing.T) {
	ctx := context.Background()
	registry, base := newTestRegistry(t)

	writeDefinition(t, filepath.Join(base, "commands"), "fix.md", "---\nid: fix\n---\n")
	writeSkill(t, filepath.Join(base, "skills"), "golang", "---\nid: golang\n---\n")

	first, err := registry.ScanAll(ctx)
	require.NoError(t, err)
	sizeAfterFirst := registry.cache.Len()

	second, err := registry.ScanAll(ctx)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	firstIDs := make(map[string]bool)
	for _, d := range first {
		firstIDs[d.ID] = true
	}
	for _, d := range second {
		assert.True(t, firstIDs[d.ID])
	}
	assert.Equal(t, sizeAfterFirst, registry.cache.Len(), "repeated scans must not grow the cache")
}

func TestReloadOne(t *testing.T) {
	ctx := context.Background()
	registry, base := newTestRegistry(t)

	path := writeDefinition(t, filepath.Join(base, "agents"), "helper.md", "---\nid: helper\nname: Helper\n---\n")

	var events []ChangeEvent
	registry.Bus().Subscribe(func(_ context.Context, event ChangeEvent) error {
		events = append(events, event)
		return nil
	})

	t.Run("uncached definition emits added", func(t *testing.T) {
		descriptor, err := registry.ReloadOne(ctx, "helper")
		require.NoError(t, err)
		assert.Equal(t, "helper", descriptor.ID)
		assert.Equal(t, "Helper", descriptor.Name)

		require.Len(t, events, 1)
		assert.Equal(t, ChangeAdded, events[0].Kind)
		assert.Equal(t, CategoryAgent, events[0].Category)
		assert.Equal(t, path, events[0].Path)
	})

	t.Run("cached definition emits modified", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("---\nid: helper\nname: Helper v2\n---\n"), 0o644))

		descriptor, err := registry.ReloadOne(ctx, "helper")
		require.NoError(t, err)
		assert.Equal(t, "Helper v2", descriptor.Name)

		require.Len(t, events, 2)
		assert.Equal(t, ChangeModified, events[1].Kind)
		assert.Equal(t, "helper", events[1].ID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := registry.ReloadOne(ctx, "nobody")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.Len(t, events, 2)
	})
}

func TestReloadOneSearchesAllCategories(t *testing.T) {
	ctx := context.Background()
	registry, base := newTestRegistry(t)

	writeSkill(t, filepath.Join(base, "skills"), "golang", "---\nid: golang\nname: Go Expert\n---\n")

	descriptor, err := registry.ReloadOne(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, CategorySkill, descriptor.Category)
	assert.Equal(t, "Go Expert", descriptor.Name)
}
