// Package app wires the archctx components together. It owns their
// lifecycles: storage, caching, change watching, schema validation, the
// resolution engine and the dependency manager.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dshills/archctx/internal/engine/resolve"
	"github.com/dshills/archctx/internal/logging"
	"github.com/dshills/archctx/internal/manager"
	"github.com/dshills/archctx/internal/model"
	"github.com/dshills/archctx/internal/notify"
	"github.com/dshills/archctx/internal/schema"
	"github.com/dshills/archctx/internal/settings"
	"github.com/dshills/archctx/internal/store"
	"github.com/dshills/archctx/internal/store/watcher"
)

// Application is the central coordinator for all archctx components.
type Application struct {
	mu     sync.Mutex
	closed bool

	settings *settings.Settings
	log      logr.Logger

	notifier  *notify.Notifier
	validator *schema.Validator
	store     *store.FileStore
	cache     *store.Cache
	watcher   *watcher.Watcher
	engine    *resolve.Engine
	manager   *manager.Manager

	opts Options
}

// Options configures the application.
type Options struct {
	// Settings holds the tool settings. Defaults are used when nil.
	Settings *settings.Settings

	// Logger overrides the logger built from the settings.
	Logger logr.Logger

	// Clock overrides the resolution clock.
	Clock func() time.Time

	// IDGenerator overrides resolution ID generation.
	IDGenerator func() string
}

// New creates an Application and initializes every component. On failure
// the components started so far are closed again.
func New(opts Options) (*Application, error) {
	if opts.Settings == nil {
		s := settings.Default()
		opts.Settings = &s
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, &InitError{Component: "settings", Err: err}
	}

	app := &Application{
		settings: opts.Settings,
		log:      opts.Logger,
		opts:     opts,
	}
	if app.log.GetSink() == nil {
		cfg := logging.DefaultConfig()
		cfg.Level = opts.Settings.LogLevel()
		app.log = logging.New(cfg)
	}

	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Close stops the watcher and releases subscriptions. It is safe to call
// more than once.
func (app *Application) Close() error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.closed {
		return nil
	}
	app.closed = true

	var err error
	if app.watcher != nil {
		err = app.watcher.Close()
		ws := app.watcher.Stats()
		app.log.V(1).Info("watcher stats", "events", ws.TotalEvents, "errors", ws.Errors, "paths", ws.WatchedPaths)
	}
	if app.cache != nil {
		app.cache.Close()
		cs := app.cache.Stats()
		app.log.V(1).Info("cache stats", "hits", cs.Hits, "misses", cs.Misses, "entries", cs.Entries)
	}
	if app.notifier != nil {
		app.notifier.Close()
	}
	app.log.V(1).Info("application closed")
	return err
}

// Settings returns the effective settings.
func (app *Application) Settings() *settings.Settings {
	return app.settings
}

// Logger returns the root logger.
func (app *Application) Logger() logr.Logger {
	return app.log
}

// Notifier returns the change notifier.
func (app *Application) Notifier() *notify.Notifier {
	return app.notifier
}

// Store returns the file store.
func (app *Application) Store() *store.FileStore {
	return app.store
}

// Reader returns the read path used by the engine: the cache when enabled,
// the store otherwise.
func (app *Application) Reader() store.Reader {
	if app.cache != nil {
		return app.cache
	}
	return app.store
}

// Cache returns the document cache, or nil when caching is disabled.
func (app *Application) Cache() *store.Cache {
	return app.cache
}

// Watcher returns the file watcher, or nil when watching is disabled.
func (app *Application) Watcher() *watcher.Watcher {
	return app.watcher
}

// Engine returns the resolution engine.
func (app *Application) Engine() *resolve.Engine {
	return app.engine
}

// Manager returns the dependency manager.
func (app *Application) Manager() *manager.Manager {
	return app.manager
}

// Problem is one invalid document found by Validate.
type Problem struct {
	Kind model.Kind `json:"kind" yaml:"kind"`
	Name string     `json:"name" yaml:"name"`
	Err  error      `json:"-" yaml:"-"`
	// Message is Err rendered for serialisation.
	Message string `json:"message" yaml:"message"`
}

// Validate loads every stored document through the schema validator,
// regardless of the store.validate setting, and reports the documents that
// fail. The returned error is reserved for failures to list documents.
func (app *Application) Validate(ctx context.Context) ([]Problem, error) {
	checker := store.New(app.store.Root(),
		store.WithValidator(app.validator),
		store.WithLogger(logging.WithComponent(app.log, "validate")),
	)

	var problems []Problem
	for _, kind := range model.Kinds {
		names, err := checker.Names(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", kind.Collection(), err)
		}
		for _, name := range names {
			if _, err := checker.Load(ctx, kind, name); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				problems = append(problems, Problem{Kind: kind, Name: name, Err: err, Message: err.Error()})
			}
		}
	}
	return problems, nil
}

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
