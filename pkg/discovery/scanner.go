package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentdeck/pkg/frontmatter"
	"github.com/jingkaihe/agentdeck/pkg/logger"
	"github.com/jingkaihe/agentdeck/pkg/metacache"
)

const (
	definitionExt = ".md"
	skillFileName = "SKILL.md"
)

// Scanner discovers the definition files of a single category and resolves
// them into descriptors through the shared metadata cache.
type Scanner struct {
	category   Category
	root       string
	nestedFile string // non-empty selects the nested layout rule
	cache      *metacache.Cache

	// readFile is swapped out in tests to count reads.
	readFile func(string) ([]byte, error)
}

func newScanner(category Category, root, nestedFile string, cache *metacache.Cache) *Scanner {
	return &Scanner{
		category:   category,
		root:       root,
		nestedFile: nestedFile,
		cache:      cache,
		readFile:   os.ReadFile,
	}
}

// Candidates enumerates the definition file paths of this category. A missing
// root directory yields an empty result; any other enumeration failure is an
// error for the caller to isolate.
func (s *Scanner) Candidates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			logger.G(ctx).WithField("dir", s.root).Debug("Category root does not exist, skipping")
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to enumerate %s", s.root)
	}

	var paths []string
	for _, entry := range entries {
		entryPath := filepath.Join(s.root, entry.Name())

		if s.nestedFile == "" {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), definitionExt) {
				continue
			}
			paths = append(paths, entryPath)
			continue
		}

		// Nested rule: immediate subdirectories (following symlinks) that
		// contain the required file.
		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}
		nestedPath := filepath.Join(entryPath, s.nestedFile)
		if _, err := os.Stat(nestedPath); err != nil {
			continue
		}
		paths = append(paths, nestedPath)
	}

	return paths, nil
}

// Scan discovers all definitions of this category. Unreadable candidates are
// logged and skipped without aborting the rest of the scan.
func (s *Scanner) Scan(ctx context.Context) ([]Descriptor, error) {
	paths, err := s.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	var descriptors []Descriptor
	for _, path := range paths {
		descriptor, err := s.load(ctx, path)
		if err != nil {
			logger.G(ctx).WithField("path", path).WithError(err).Warn("Failed to load definition, skipping")
			continue
		}
		descriptors = append(descriptors, descriptor)
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"category": s.category,
		"count":    len(descriptors),
	}).Debug("Scanned category")
	return descriptors, nil
}

// load resolves one definition file into a descriptor, reading and parsing it
// only when the cache has no fresh entry for its current modification time.
func (s *Scanner) load(ctx context.Context, path string) (Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, errors.Wrapf(err, "failed to stat '%s'", path)
	}

	metadata, ok := s.cache.Get(path, info.ModTime())
	if !ok {
		metadata, err = s.parse(ctx, path)
		if err != nil {
			return Descriptor{}, err
		}
		s.cache.Put(path, metadata, info.ModTime())
	}

	return s.buildDescriptor(ctx, path, metadata), nil
}

// parse reads and parses one definition file. A file without a usable header
// parses to an empty mapping so that repeated scans do not re-read it.
func (s *Scanner) parse(ctx context.Context, path string) (map[string]any, error) {
	content, err := s.readFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", path)
	}
	if !utf8.Valid(content) {
		return nil, errors.Errorf("'%s' is not valid UTF-8", path)
	}

	metadata, found := frontmatter.Parse(ctx, content)
	if !found {
		logger.G(ctx).WithField("path", path).Debug("No usable frontmatter, using defaults")
		metadata = map[string]any{}
	}
	return metadata, nil
}

// identifier resolves the definition's identifier from the cached or freshly
// parsed header, falling back to the file stem. It never writes to the cache.
func (s *Scanner) identifier(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat '%s'", path)
	}

	metadata, ok := s.cache.Get(path, info.ModTime())
	if !ok {
		metadata, err = s.parse(ctx, path)
		if err != nil {
			return "", err
		}
	}

	if id, ok := metadata["id"].(string); ok && id != "" {
		return id, nil
	}
	return stem(path), nil
}

func (s *Scanner) buildDescriptor(ctx context.Context, path string, metadata map[string]any) Descriptor {
	fallback := stem(path)

	id := stringField(ctx, metadata, "id", fallback, path)
	name := stringField(ctx, metadata, "name", fallback, path)

	description := ""
	if raw, present := metadata["description"]; present && raw != nil {
		if v, ok := raw.(string); ok {
			description = v
		} else {
			logger.G(ctx).WithField("path", path).Warn("Description is not a string, using empty string")
		}
	}

	extra := make(map[string]any)
	for key, value := range metadata {
		switch key {
		case "id", "name", "description":
		default:
			extra[key] = value
		}
	}

	pres := presentations[s.category]
	return Descriptor{
		ID:          id,
		Category:    s.category,
		Name:        name,
		Description: description,
		Path:        path,
		Icon:        pres.icon,
		Color:       pres.color,
		Enabled:     true,
		Extra:       extra,
	}
}

// stringField returns the header value for key when it is a non-empty string,
// and the fallback otherwise. A warning is logged only when the field was
// present but unusable.
func stringField(ctx context.Context, metadata map[string]any, key, fallback, path string) string {
	raw, present := metadata[key]
	if !present {
		return fallback
	}
	if v, ok := raw.(string); ok && v != "" {
		return v
	}
	logger.G(ctx).WithFields(map[string]interface{}{
		"path":  path,
		"field": key,
	}).Warnf("Invalid %s in frontmatter, using fallback '%s'", key, fallback)
	return fallback
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
