// Package runtime wires configuration, plugin instances, the plugin registry
// and the chain dispatcher into one process-wide interception runtime.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leeforge/interception/chain"
	"github.com/leeforge/interception/codegen"
	"github.com/leeforge/interception/config"
	"github.com/leeforge/interception/diagnostics"
	"github.com/leeforge/interception/intercept"
	"github.com/leeforge/interception/logging"
	"github.com/leeforge/interception/plugin"
	"github.com/leeforge/interception/pluginlist"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds configuration for creating a new Runtime.
type Config struct {
	// Settings are used as is when set; otherwise Bootstrap loads them with
	// Options.
	Settings *config.Settings
	Options  config.Options

	// ManifestDir holds the *.manifest.json files written by interceptgen.
	// Defaults to Settings.Generator.Output.
	ManifestDir string

	// Logger defaults to a logger built from Settings.Logging.
	Logger *zap.Logger

	// Telemetry enables the OpenTelemetry observer. Nil Tracer or
	// MeterProvider fall back to the global providers.
	Telemetry     bool
	Tracer        trace.Tracer
	MeterProvider metric.MeterProvider

	// Observers are notified after the built-in ones.
	Observers []chain.Observer

	EventBuffer int // default 64
}

// Runtime owns the registry and dispatcher that generated interceptors use.
type Runtime struct {
	cfg        Config
	logger     *zap.Logger
	ownsLogger bool

	instances *plugin.InstanceRegistry
	catalog   *pluginlist.Catalog
	loader    *config.Loader
	events    *events

	mu         sync.RWMutex
	settings   *config.Settings
	registry   *pluginlist.Registry
	dispatcher *chain.Dispatcher
	booted     bool

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
}

// NewRuntime creates a new runtime instance.
func NewRuntime(cfg Config) *Runtime {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	rt := &Runtime{
		cfg:         cfg,
		logger:      logger,
		ownsLogger:  cfg.Logger == nil,
		instances:   plugin.NewInstanceRegistry(),
		catalog:     pluginlist.NewCatalog(),
		events:      newEvents(cfg.EventBuffer, logger),
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}

	if cfg.Settings == nil {
		opts := cfg.Options
		onChange := opts.OnChange
		opts.OnChange = func(s *config.Settings) {
			rt.applySettings(s)
			if onChange != nil {
				onChange(s)
			}
		}
		if opts.Logger == nil {
			opts.Logger = cfg.Logger
		}
		rt.loader = config.NewLoader(opts)
	}
	return rt
}

// Register adds a plugin instance under ref. Descriptors name it through
// their instance field. Registering after Bootstrap invalidates cached chains.
func (r *Runtime) Register(ref string, p plugin.Plugin) error {
	if err := r.instances.Register(ref, p); err != nil {
		return err
	}

	r.mu.RLock()
	registry := r.registry
	r.mu.RUnlock()
	if registry != nil {
		registry.Invalidate()
	}

	r.Logger().Info("plugin instance registered", zap.String("ref", ref), zap.String("plugin", pluginName(p)))
	return nil
}

// RegisterManifest adds the type hierarchy of a subject. Manifests found in
// ManifestDir are registered by Bootstrap.
func (r *Runtime) RegisterManifest(m *intercept.TypeManifest) {
	r.catalog.Register(m)

	r.mu.RLock()
	registry := r.registry
	r.mu.RUnlock()
	if registry != nil {
		registry.Invalidate()
	}
}

// Bootstrap loads settings and manifests, validates the plugin scopes and
// builds the dispatcher.
func (r *Runtime) Bootstrap(ctx context.Context) error {
	startTime := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.booted {
		return errors.New("runtime already bootstrapped")
	}

	// Phase 1: Settings
	settings := r.cfg.Settings
	if settings == nil {
		loaded, err := r.loader.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		settings = loaded
	}
	if len(settings.Scopes) == 0 && len(settings.Plugins) > 0 {
		settings.Scopes = []plugin.Scope{{Name: settings.Scope, Descriptors: settings.Plugins}}
	}
	if r.ownsLogger {
		r.logger = logging.New(settings.Logging)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 2: Manifests
	manifestDir := r.cfg.ManifestDir
	if manifestDir == "" {
		manifestDir = settings.Generator.Output
	}
	if manifestDir != "" {
		manifests, err := codegen.LoadManifests(manifestDir)
		if err != nil {
			return fmt.Errorf("load manifests: %w", err)
		}
		for _, m := range manifests {
			r.catalog.Register(m)
		}
	}

	// Phase 3: Registry
	registry := pluginlist.New(pluginlist.Config{
		Scopes:    settings.Scopes,
		Instances: r.instances,
		Hierarchy: r.catalog,
		Logger:    r.logger,
	})
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("validate plugin scopes: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 4: Dispatcher
	observers := chain.Observers{diagnostics.NewLogObserver(r.logger)}
	if r.cfg.Telemetry {
		otelObserver, err := diagnostics.NewOTelObserver(diagnostics.OTelConfig{
			Tracer:        r.cfg.Tracer,
			MeterProvider: r.cfg.MeterProvider,
		})
		if err != nil {
			return fmt.Errorf("create telemetry observer: %w", err)
		}
		observers = append(observers, otelObserver)
	}
	observers = append(observers, r.cfg.Observers...)

	r.settings = settings
	r.registry = registry
	r.dispatcher = chain.New(chain.Config{
		Source:   registry,
		Observer: observers,
		Logger:   r.logger,
	})

	// Phase 5: Watch
	if r.loader != nil && r.cfg.Options.WatchAble {
		if err := r.loader.Watch(r.shutdownCtx); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
	}

	r.booted = true
	r.publish(Event{Topic: TopicBootstrapped, Scopes: scopeNames(settings.Scopes), Generation: registry.Stats().Generation})

	r.logger.Info("bootstrap completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("scopes", len(settings.Scopes)),
		zap.Int("instances", len(r.instances.Refs())),
	)
	return nil
}

// Reload replaces the plugin scopes. On error the previous scopes stay in
// effect.
func (r *Runtime) Reload(scopes []plugin.Scope) error {
	r.mu.RLock()
	registry := r.registry
	r.mu.RUnlock()
	if registry == nil {
		return errors.New("runtime is not bootstrapped")
	}

	if err := registry.Reload(scopes); err != nil {
		r.Logger().Warn("plugin reload failed, keeping previous scopes", zap.Error(err))
		r.publish(Event{Topic: TopicReloadFailed, Scopes: scopeNames(scopes), Err: err, Generation: registry.Stats().Generation})
		return err
	}
	r.publish(Event{Topic: TopicReloaded, Scopes: scopeNames(scopes), Generation: registry.Stats().Generation})
	return nil
}

func (r *Runtime) applySettings(s *config.Settings) {
	if err := r.Reload(s.Scopes); err != nil {
		return
	}
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
}

// Subscribe registers handler for a lifecycle topic and returns a function
// removing it.
func (r *Runtime) Subscribe(topic string, handler EventHandler) func() {
	return r.events.subscribe(topic, handler)
}

func (r *Runtime) publish(event Event) {
	ctx, cancel := context.WithTimeout(r.shutdownCtx, time.Second)
	defer cancel()
	if err := r.events.publish(ctx, event); err != nil {
		r.events.logger.Debug("lifecycle event dropped", zap.String("topic", event.Topic), zap.Error(err))
	}
}

// Shutdown stops the config watcher, delivers pending events and flushes
// the logger it built.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.publish(Event{Topic: TopicShutdown})
	r.shutdownFn()
	logger := r.Logger()

	done := make(chan struct{})
	go func() {
		r.events.close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown timed out waiting for event handlers")
	}

	logger.Info("shutdown completed")
	if r.ownsLogger {
		_ = logger.Sync()
		return logging.CloseAllWriters()
	}
	return nil
}

// Registry returns the plugin registry, nil before Bootstrap.
func (r *Runtime) Registry() *pluginlist.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry
}

// Dispatcher returns the chain dispatcher, nil before Bootstrap.
func (r *Runtime) Dispatcher() *chain.Dispatcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatcher
}

// Settings returns the settings in effect.
func (r *Runtime) Settings() *config.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Instances returns the plugin instance registry.
func (r *Runtime) Instances() *plugin.InstanceRegistry {
	return r.instances
}

// Catalog returns the subject type hierarchy.
func (r *Runtime) Catalog() *pluginlist.Catalog {
	return r.catalog
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

func pluginName(p plugin.Plugin) string {
	if n, ok := p.(plugin.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

func scopeNames(scopes []plugin.Scope) []string {
	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = s.Name
	}
	return names
}
