// Package store persists entity documents as YAML files.
//
// A store root looks like:
//
//	system/defaults.yaml
//	services/<name>.yaml
//	environments/<name>.yaml
//	tenants/<name>.yaml
//
// The file name is the entity name. Reads of missing documents return
// errors matching model.ErrNotFound. Writes are atomic and publish a
// notify.Change.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/archctx/internal/engine/value"
	"github.com/dshills/archctx/internal/model"
	"github.com/dshills/archctx/internal/notify"
)

// Extensions recognised for documents, in lookup order.
var Extensions = []string{".yaml", ".yml"}

// NotifySource identifies changes published by the store.
const NotifySource = "store"

// Validator checks a document before it is returned or written.
type Validator interface {
	Validate(kind model.Kind, name string, doc *value.Map) error
}

// FileStore reads and writes entity documents under a root directory. It is
// safe for concurrent use; writes are serialised.
type FileStore struct {
	root      string
	validator Validator
	notifier  *notify.Notifier
	log       logr.Logger
	parallel  int

	writeMu sync.Mutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithValidator checks every document on load and save.
func WithValidator(v Validator) Option {
	return func(s *FileStore) {
		s.validator = v
	}
}

// WithNotifier publishes a change for every write.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *FileStore) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(s *FileStore) {
		s.log = l
	}
}

// WithParallelism bounds concurrent file reads in List calls.
func WithParallelism(n int) Option {
	return func(s *FileStore) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// New creates a store rooted at root. The directory need not exist until
// the first write.
func New(root string, opts ...Option) *FileStore {
	s := &FileStore{
		root:     filepath.Clean(root),
		log:      logr.Discard(),
		parallel: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the store root.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the canonical file path of an entity document.
func (s *FileStore) Path(kind model.Kind, name string) string {
	if kind == model.KindDefaults {
		name = model.DefaultsName
	}
	return filepath.Join(s.root, kind.Collection(), name+Extensions[0])
}

// ValidName reports whether name can be stored as a file name.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

// find locates an existing document file.
func (s *FileStore) find(kind model.Kind, name string) (string, error) {
	base := strings.TrimSuffix(s.Path(kind, name), Extensions[0])
	for _, ext := range Extensions {
		p := base + ext
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", &model.NotFoundError{Kind: kind, Name: name}
}

// Load reads and decodes one document.
func (s *FileStore) Load(ctx context.Context, kind model.Kind, name string) (*value.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	p, err := s.find(kind, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &model.NotFoundError{Kind: kind, Name: name}
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	doc, err := value.DecodeYAML(data)
	if err != nil {
		return nil, &DecodeError{Path: p, Err: err}
	}
	if s.validator != nil {
		if err := s.validator.Validate(kind, name, doc); err != nil {
			return nil, err
		}
	}

	s.log.V(1).Info("document loaded", "kind", kind.Collection(), "name", name)
	return doc, nil
}

// SystemDefaults loads system/defaults.yaml.
func (s *FileStore) SystemDefaults(ctx context.Context) (*model.Defaults, error) {
	doc, err := s.Load(ctx, model.KindDefaults, model.DefaultsName)
	if err != nil {
		return nil, err
	}
	return model.NewDefaults(doc), nil
}

// Service loads one service.
func (s *FileStore) Service(ctx context.Context, name string) (*model.Service, error) {
	doc, err := s.Load(ctx, model.KindService, name)
	if err != nil {
		return nil, err
	}
	return model.NewService(name, doc), nil
}

// Environment loads one environment.
func (s *FileStore) Environment(ctx context.Context, name string) (*model.Environment, error) {
	doc, err := s.Load(ctx, model.KindEnvironment, name)
	if err != nil {
		return nil, err
	}
	return model.NewEnvironment(name, doc), nil
}

// Tenant loads one tenant.
func (s *FileStore) Tenant(ctx context.Context, name string) (*model.Tenant, error) {
	doc, err := s.Load(ctx, model.KindTenant, name)
	if err != nil {
		return nil, err
	}
	return model.NewTenant(name, doc), nil
}

// Names returns the sorted entity names of a collection. A missing
// collection directory is empty.
func (s *FileStore) Names(ctx context.Context, kind model.Kind) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == model.KindDefaults {
		if _, err := s.find(kind, model.DefaultsName); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []string{model.DefaultsName}, nil
	}

	dir := filepath.Join(s.root, kind.Collection())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	seen := make(map[string]bool, len(entries))
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := entityName(e.Name())
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// entityName strips a document extension from a file name.
func entityName(file string) (string, bool) {
	ext := filepath.Ext(file)
	for _, known := range Extensions {
		if ext == known {
			name := strings.TrimSuffix(file, ext)
			return name, ValidName(name)
		}
	}
	return "", false
}

// loadAll reads every document of a collection concurrently, keeping name
// order.
func loadAll[T any](ctx context.Context, s *FileStore, kind model.Kind, get func(context.Context, string) (T, error)) ([]T, error) {
	names, err := s.Names(ctx, kind)
	if err != nil {
		return nil, err
	}

	out := make([]T, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, name := range names {
		g.Go(func() error {
			v, err := get(gctx, name)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListServices loads every service, sorted by name.
func (s *FileStore) ListServices(ctx context.Context) ([]*model.Service, error) {
	return loadAll(ctx, s, model.KindService, s.Service)
}

// ListEnvironments loads every environment, sorted by name.
func (s *FileStore) ListEnvironments(ctx context.Context) ([]*model.Environment, error) {
	return loadAll(ctx, s, model.KindEnvironment, s.Environment)
}

// ListTenants loads every tenant, sorted by name.
func (s *FileStore) ListTenants(ctx context.Context) ([]*model.Tenant, error) {
	return loadAll(ctx, s, model.KindTenant, s.Tenant)
}

// Save validates doc and writes it atomically, replacing any existing
// document of that name.
func (s *FileStore) Save(ctx context.Context, kind model.Kind, name string, doc *value.Map) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if kind == model.KindDefaults {
		name = model.DefaultsName
	}
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if s.validator != nil {
		if err := s.validator.Validate(kind, name, doc); err != nil {
			return err
		}
	}

	data, err := value.EncodeYAML(doc)
	if err != nil {
		return fmt.Errorf("encoding %s %q: %w", kind.Singular(), name, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	target := s.Path(kind, name)
	if existing, err := s.find(kind, name); err == nil {
		target = existing
	}
	if err := writeAtomic(target, data); err != nil {
		return err
	}

	s.log.Info("document saved", "kind", kind.Collection(), "name", name)
	if s.notifier != nil {
		s.notifier.PublishSet(kind, name, NotifySource)
	}
	return nil
}

// Delete removes a document. Deleting a missing document returns a
// NotFoundError.
func (s *FileStore) Delete(ctx context.Context, kind model.Kind, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, err := s.find(kind, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}

	s.log.Info("document deleted", "kind", kind.Collection(), "name", name)
	if s.notifier != nil {
		s.notifier.PublishDelete(kind, name, NotifySource)
	}
	return nil
}

// SaveService writes a service document.
func (s *FileStore) SaveService(ctx context.Context, svc *model.Service) error {
	return s.Save(ctx, model.KindService, svc.Name, svc.Doc)
}

// DeleteService removes a service document.
func (s *FileStore) DeleteService(ctx context.Context, name string) error {
	return s.Delete(ctx, model.KindService, name)
}

// writeAtomic writes data to a hidden temp file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	tmpName = ""
	return nil
}

// Classify maps a file path under root to the entity it stores.
func Classify(root, path string) (model.Kind, string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 {
		return "", "", false
	}

	name, ok := entityName(parts[1])
	if !ok {
		return "", "", false
	}
	for _, kind := range model.Kinds {
		if parts[0] != kind.Collection() {
			continue
		}
		if kind == model.KindDefaults && name != model.DefaultsName {
			return "", "", false
		}
		return kind, name, true
	}
	return "", "", false
}
