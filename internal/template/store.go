package template

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Store is the durable mapping from template name to template plus the
// last-used pointer. Mutations write the whole document before they
// become visible, so a failed write leaves the store unchanged.
type Store struct {
	fs        afero.Fs
	path      string
	templates map[string]*Template
	lastUsed  string
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithFs replaces the OS filesystem, typically with afero.NewMemMapFs in tests.
func WithFs(fsys afero.Fs) Option { return func(s *Store) { s.fs = fsys } }

// WithLogger sets the logger used for recovery warnings.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock sets the clock stamping created_at.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// Load reads the store at path. A missing file yields an empty store; an
// unreadable or unparsable file is logged and also yields an empty store.
func Load(path string, opts ...Option) *Store {
	s := &Store{
		fs:        afero.NewOsFs(),
		path:      path,
		templates: make(map[string]*Template),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("template store unreadable, starting empty",
				"path", path, "error", fmt.Errorf("%w: %v", ErrCorruptStore, err))
		}
		return s
	}
	if strings.TrimSpace(string(raw)) == "" {
		return s
	}

	templates, lastUsed, skipped, err := decodeStore(raw)
	if err != nil {
		s.logger.Warn("template store corrupt, starting empty", "path", path, "error", err)
		return s
	}
	for _, name := range skipped {
		s.logger.Warn("skipping invalid template entry", "path", path, "template", name)
	}
	s.templates = templates
	s.lastUsed = lastUsed
	return s
}

// Path is the backing file.
func (s *Store) Path() string { return s.path }

// Len is the number of templates.
func (s *Store) Len() int { return len(s.templates) }

// Names returns the template names sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeName is applied to every name entering the store, so lookups
// match what Upsert saved.
func normalizeName(name string) string { return strings.TrimSpace(name) }

// Get returns a copy of the named template.
func (s *Store) Get(name string) (*Template, bool) {
	t, ok := s.templates[normalizeName(name)]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Save writes the current state to disk.
func (s *Store) Save() error {
	return s.write(s.templates, s.lastUsed)
}

// Upsert inserts or fully replaces the named template. The name must be
// non-empty, the resolution positive and regions must cover the catalog.
func (s *Store) Upsert(name string, dpi float64, regions Regions) (*Template, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrIncompleteTemplate)
	}
	if name == metaKey {
		return nil, fmt.Errorf("%w: %q is reserved", ErrMalformedTemplate, name)
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("%w: resolution must be positive, got %g", ErrIncompleteTemplate, dpi)
	}
	if dpi > MaxDPI {
		return nil, fmt.Errorf("%w: resolution %g exceeds %d", ErrMalformedTemplate, dpi, MaxDPI)
	}
	if err := regions.validate(); err != nil {
		return nil, err
	}

	t := &Template{Name: name, DPI: dpi, Regions: regions.Clone(), CreatedAt: s.now()}
	if err := t.CheckComplete(); err != nil {
		return nil, err
	}

	next := s.copyTemplates()
	next[name] = t
	if err := s.write(next, s.lastUsed); err != nil {
		return nil, err
	}
	s.templates = next
	return t.clone(), nil
}

// SetLastUsed records name as the template to auto-load next time.
func (s *Store) SetLastUsed(name string) error {
	name = normalizeName(name)
	if _, ok := s.templates[name]; !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	if err := s.write(s.templates, name); err != nil {
		return err
	}
	s.lastUsed = name
	return nil
}

// LastUsed returns the last-used template, or false when the pointer is
// unset or names a template that no longer exists.
func (s *Store) LastUsed() (*Template, bool) {
	if s.lastUsed == "" {
		return nil, false
	}
	return s.Get(s.lastUsed)
}

// LastUsedName returns the raw pointer, which may be dangling.
func (s *Store) LastUsedName() string { return s.lastUsed }

// Delete removes the named template, clearing the last-used pointer if it
// referenced it.
func (s *Store) Delete(name string) error {
	name = normalizeName(name)
	if _, ok := s.templates[name]; !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	next := s.copyTemplates()
	delete(next, name)

	lastUsed := s.lastUsed
	if lastUsed == name {
		lastUsed = ""
	}
	if err := s.write(next, lastUsed); err != nil {
		return err
	}
	s.templates = next
	s.lastUsed = lastUsed
	return nil
}

func (s *Store) copyTemplates() map[string]*Template {
	next := make(map[string]*Template, len(s.templates)+1)
	for k, v := range s.templates {
		next[k] = v
	}
	return next
}

// write renders the document to a temp file beside the target and renames
// it into place.
func (s *Store) write(templates map[string]*Template, lastUsed string) error {
	data, err := encodeStore(templates, lastUsed)
	if err != nil {
		return fmt.Errorf("encode template store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace template store: %w", err)
	}

	s.logger.Debug("template store written", "path", s.path, "templates", len(templates))
	return nil
}
