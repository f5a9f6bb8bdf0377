package app

import (
	"path/filepath"

	"github.com/dshills/archctx/internal/engine/resolve"
	"github.com/dshills/archctx/internal/logging"
	"github.com/dshills/archctx/internal/manager"
	"github.com/dshills/archctx/internal/notify"
	"github.com/dshills/archctx/internal/schema"
	"github.com/dshills/archctx/internal/store"
	"github.com/dshills/archctx/internal/store/watcher"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	initOrder []string
}

func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		initOrder: make([]string, 0, 7),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initNotifier,
		b.initValidator,
		b.initStore,
		b.initCache,
		b.initWatcher,
		b.initEngine,
		b.initManager,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	b.app.log.V(1).Info("application ready", "root", b.app.store.Root(), "components", b.initOrder)
	return nil
}

func (b *bootstrapper) initNotifier() error {
	b.app.notifier = notify.New()
	b.initOrder = append(b.initOrder, "notifier")
	return nil
}

// initValidator compiles the embedded schemas. The validator is always
// built so Validate works even when load-time validation is off.
func (b *bootstrapper) initValidator() error {
	v, err := schema.New()
	if err != nil {
		return &InitError{Component: "schema", Err: err}
	}
	b.app.validator = v
	b.initOrder = append(b.initOrder, "validator")
	return nil
}

func (b *bootstrapper) initStore() error {
	root, err := filepath.Abs(b.app.settings.Root)
	if err != nil {
		return &InitError{Component: "store", Err: err}
	}

	opts := []store.Option{
		store.WithNotifier(b.app.notifier),
		store.WithLogger(logging.WithComponent(b.app.log, "store")),
	}
	if b.app.settings.ValidateDocuments() {
		opts = append(opts, store.WithValidator(b.app.validator))
	}
	b.app.store = store.New(root, opts...)
	b.initOrder = append(b.initOrder, "store")
	return nil
}

func (b *bootstrapper) initCache() error {
	if !b.app.settings.CacheEnabled() {
		return nil
	}
	b.app.cache = store.NewCache(b.app.store, b.app.notifier)
	b.initOrder = append(b.initOrder, "cache")
	return nil
}

// initWatcher starts the file watcher. Watching only makes sense with a
// cache to invalidate, so it is skipped without one.
func (b *bootstrapper) initWatcher() error {
	if !b.app.settings.WatchEnabled() || b.app.cache == nil {
		return nil
	}
	w, err := watcher.New(b.app.store.Root(), b.app.notifier,
		watcher.WithDebounce(b.app.settings.Debounce()),
		watcher.WithLogger(logging.WithComponent(b.app.log, "watcher")),
	)
	if err != nil {
		return &InitError{Component: "watcher", Err: err}
	}
	b.app.watcher = w
	b.initOrder = append(b.initOrder, "watcher")
	return nil
}

func (b *bootstrapper) initEngine() error {
	opts := []resolve.Option{
		resolve.WithLogger(logging.WithComponent(b.app.log, "resolve")),
		resolve.WithMergeOptions(b.app.settings.MergeOptions()...),
	}
	if b.app.opts.Clock != nil {
		opts = append(opts, resolve.WithClock(b.app.opts.Clock))
	}
	if b.app.opts.IDGenerator != nil {
		opts = append(opts, resolve.WithIDGenerator(b.app.opts.IDGenerator))
	}
	b.app.engine = resolve.NewEngine(b.app.Reader(), opts...)
	b.initOrder = append(b.initOrder, "engine")
	return nil
}

func (b *bootstrapper) initManager() error {
	opts := []manager.Option{
		manager.WithLogger(logging.WithComponent(b.app.log, "manager")),
	}
	if b.app.cache != nil {
		opts = append(opts, manager.WithReader(b.app.cache))
	}
	b.app.manager = manager.New(b.app.store, opts...)
	b.initOrder = append(b.initOrder, "manager")
	return nil
}

// cleanup closes initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "notifier":
		if b.app.notifier != nil {
			b.app.notifier.Close()
			b.app.notifier = nil
		}
	case "watcher":
		if b.app.watcher != nil {
			if err := b.app.watcher.Close(); err != nil {
				b.app.log.Error(err, "closing watcher")
			}
			b.app.watcher = nil
		}
	case "cache":
		if b.app.cache != nil {
			b.app.cache.Close()
			b.app.cache = nil
		}
	case "validator":
		b.app.validator = nil
	case "store":
		b.app.store = nil
	case "engine":
		b.app.engine = nil
	case "manager":
		b.app.manager = nil
	}
}
