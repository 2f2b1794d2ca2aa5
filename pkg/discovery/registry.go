package discovery

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentdeck/pkg/logger"
	"github.com/jingkaihe/agentdeck/pkg/metacache"
)

// DefaultBaseDir is the conventional location of the three category roots.
const DefaultBaseDir = ".agentdeck"

// DefaultPollInterval is the watcher's default poll interval.
const DefaultPollInterval = time.Second

// Registry owns the category scanners, the shared metadata cache, and the
// event bus. It is the single entry point for one-shot scans, targeted
// reloads, and watcher construction.
type Registry struct {
	baseDir     string
	commandsDir string
	skillsDir   string
	agentsDir   string
	maxEntries  int
	interval    time.Duration
	notify      bool

	cache    *metacache.Cache
	bus      *EventBus
	scanners []*Scanner
}

// Option configures a Registry.
type Option func(*Registry) error

// WithBaseDir sets the base directory whose commands/, skills/, and agents/
// subdirectories are the default category roots.
func WithBaseDir(dir string) Option {
	return func(r *Registry) error {
		if dir == "" {
			return errors.New("base directory must not be empty")
		}
		r.baseDir = dir
		return nil
	}
}

// WithCommandsDir overrides the command category root.
func WithCommandsDir(dir string) Option {
	return func(r *Registry) error {
		r.commandsDir = dir
		return nil
	}
}

// WithSkillsDir overrides the skill category root.
func WithSkillsDir(dir string) Option {
	return func(r *Registry) error {
		r.skillsDir = dir
		return nil
	}
}

// WithAgentsDir overrides the agent category root.
func WithAgentsDir(dir string) Option {
	return func(r *Registry) error {
		r.agentsDir = dir
		return nil
	}
}

// WithCacheMaxEntries bounds the metadata cache.
func WithCacheMaxEntries(n int) Option {
	return func(r *Registry) error {
		if n <= 0 {
			return errors.New("cache max entries must be positive")
		}
		r.maxEntries = n
		return nil
	}
}

// WithPollInterval sets the watcher's poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Registry) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		r.interval = interval
		return nil
	}
}

// WithNotify enables the filesystem-notification accelerator on the watcher.
// Change semantics are unaffected; notifications only wake the poll loop early.
func WithNotify(enabled bool) Option {
	return func(r *Registry) error {
		r.notify = enabled
		return nil
	}
}

// NewRegistry creates a registry with the given options applied over defaults.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		baseDir:    DefaultBaseDir,
		maxEntries: metacache.DefaultMaxEntries,
		interval:   DefaultPollInterval,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.Wrap(err, "failed to apply registry option")
		}
	}

	if r.commandsDir == "" {
		r.commandsDir = filepath.Join(r.baseDir, "commands")
	}
	if r.skillsDir == "" {
		r.skillsDir = filepath.Join(r.baseDir, "skills")
	}
	if r.agentsDir == "" {
		r.agentsDir = filepath.Join(r.baseDir, "agents")
	}

	r.cache = metacache.New(r.maxEntries)
	r.bus = NewEventBus()
	r.scanners = []*Scanner{
		newScanner(CategoryCommand, r.commandsDir, "", r.cache),
		newScanner(CategorySkill, r.skillsDir, skillFileName, r.cache),
		newScanner(CategoryAgent, r.agentsDir, "", r.cache),
	}

	return r, nil
}

// Bus returns the registry's event bus for subscriber registration.
func (r *Registry) Bus() *EventBus {
	return r.bus
}

type scanOutcome struct {
	category    Category
	descriptors []Descriptor
	err         error
}

// ScanAll runs the three category scanners concurrently and merges their
// results. A failed category contributes an empty list; its fault is logged
// and aggregated into the returned error, which is advisory and nil when all
// categories scanned cleanly. No ordering is guaranteed across categories.
func (r *Registry) ScanAll(ctx context.Context) ([]Descriptor, error) {
	outcomes := make([]scanOutcome, len(r.scanners))

	var wg sync.WaitGroup
	for i, scanner := range r.scanners {
		wg.Add(1)
		go func(i int, scanner *Scanner) {
			defer wg.Done()
			descriptors, err := runScan(ctx, scanner)
			outcomes[i] = scanOutcome{category: scanner.category, descriptors: descriptors, err: err}
		}(i, scanner)
	}
	wg.Wait()

	var merged []Descriptor
	var merr *multierror.Error
	for _, outcome := range outcomes {
		if outcome.err != nil {
			logger.G(ctx).WithField("category", outcome.category).WithError(outcome.err).Error("Category scan failed")
			merr = multierror.Append(merr, errors.Wrapf(outcome.err, "scanning %s category", outcome.category))
			continue
		}
		merged = append(merged, outcome.descriptors...)
	}

	logger.G(ctx).WithField("count", len(merged)).Info("Scanned definitions")
	return merged, merr.ErrorOrNil()
}

// runScan confines a scanner fault, panics included, to its own category.
func runScan(ctx context.Context, scanner *Scanner) (descriptors []Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scan panicked: %v", r)
		}
	}()
	return scanner.Scan(ctx)
}

// ReloadOne searches every category for the definition whose identifier
// matches, unconditionally invalidates its cache entry, re-parses it, and
// emits a modified event (or added, when the file was not previously cached).
// It returns an error when no definition currently resolves to the identifier.
func (r *Registry) ReloadOne(ctx context.Context, id string) (Descriptor, error) {
	for _, scanner := range r.scanners {
		paths, err := scanner.Candidates(ctx)
		if err != nil {
			logger.G(ctx).WithField("category", scanner.category).WithError(err).Warn("Skipping category during reload")
			continue
		}

		for _, path := range paths {
			// Capture this before identifier resolution, which can evict a
			// stale cache entry as a side effect.
			_, wasKnown := r.cache.Peek(path)

			current, err := scanner.identifier(ctx, path)
			if err != nil {
				logger.G(ctx).WithField("path", path).WithError(err).Debug("Skipping unreadable candidate during reload")
				continue
			}
			if current != id {
				continue
			}

			r.cache.Invalidate(path)

			descriptor, err := scanner.load(ctx, path)
			if err != nil {
				return Descriptor{}, errors.Wrapf(err, "failed to reload '%s'", id)
			}

			kind := ChangeAdded
			if wasKnown {
				kind = ChangeModified
			}
			r.bus.Emit(ctx, ChangeEvent{Kind: kind, ID: descriptor.ID, Category: scanner.category, Path: path})

			logger.G(ctx).WithFields(map[string]interface{}{
				"id":       descriptor.ID,
				"category": scanner.category,
			}).Info("Reloaded definition")
			return descriptor, nil
		}
	}

	return Descriptor{}, errors.Errorf("definition '%s' not found in any category", id)
}

// Watcher creates a change watcher over this registry's categories. The
// watcher shares the registry's cache and event bus.
func (r *Registry) Watcher() *Watcher {
	return &Watcher{
		scanners: r.scanners,
		cache:    r.cache,
		bus:      r.bus,
		interval: r.interval,
		notify:   r.notify,
	}
}
