// Package config loads interception settings and plugin scopes with viper.
//
// The base file (interception.yaml) declares logging and generator settings
// and the plugins of the broadest scope. Every further scope lives in its own
// file, interception.<scope>.yaml, holding a plugins list; scopes are merged
// by the registry in the order they are listed. Environment variables
// prefixed with EnvPrefix override base file values.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/plugin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader reads settings and keeps the latest successfully loaded version.
type Loader struct {
	opts     Options
	logger   *zap.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	current *Settings
	files   []string
}

// NewLoader creates a loader. Empty options fall back to DefaultOptions.
func NewLoader(opts Options) *Loader {
	def := DefaultOptions()
	if opts.BasePath == "" {
		opts.BasePath = def.BasePath
	}
	if opts.FileName == "" {
		opts.FileName = def.FileName
	}
	if opts.FileType == "" {
		opts.FileType = def.FileType
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Loader{
		opts:     opts,
		logger:   opts.Logger.Named("config"),
		validate: validator.New(),
	}
}

// Load reads the configuration once.
func Load(opts Options) (*Settings, error) {
	return NewLoader(opts).Load()
}

// Load reads every configuration file and replaces the current settings.
func (l *Loader) Load() (*Settings, error) {
	settings, files, err := l.read()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = settings
	l.files = files
	l.mu.Unlock()
	return settings, nil
}

// Current returns the last successfully loaded settings, or nil.
func (l *Loader) Current() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Files returns the files the current settings were read from.
func (l *Loader) Files() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.files...)
}

func (l *Loader) path(name string) string {
	return filepath.Join(l.opts.BasePath, name+"."+l.opts.FileType)
}

func (l *Loader) read() (*Settings, []string, error) {
	basePath := l.path(l.opts.FileName)
	v, err := l.readFile(basePath)
	if err != nil {
		return nil, nil, err
	}
	applyEnvOverrides(v, l.opts.EnvPrefix)

	settings := &Settings{}
	if err := defaults.Set(settings); err != nil {
		return nil, nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to set defaults")
	}
	if err := v.Unmarshal(settings); err != nil {
		return nil, nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to decode "+basePath)
	}
	if err := defaults.Set(settings); err != nil {
		return nil, nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to set defaults after decode")
	}

	files := []string{basePath}
	settings.Scopes = []plugin.Scope{{Name: settings.Scope, Descriptors: settings.Plugins}}

	names := l.opts.Scopes
	if len(names) == 0 {
		names = settings.ScopeNames
	}
	for _, name := range names {
		scope, path, err := l.readScope(name)
		if err != nil {
			return nil, nil, err
		}
		if path == "" {
			continue
		}
		settings.Scopes = append(settings.Scopes, scope)
		files = append(files, path)
	}

	if err := l.check(settings); err != nil {
		return nil, nil, err
	}
	return settings, files, nil
}

// readScope reads interception.<name>.yaml. A missing scope file is not an
// error; it yields an empty path.
func (l *Loader) readScope(name string) (plugin.Scope, string, error) {
	path := l.path(l.opts.FileName + "." + name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		l.logger.Debug("scope file not found", zap.String("scope", name), zap.String("path", path))
		return plugin.Scope{}, "", nil
	}

	v, err := l.readFile(path)
	if err != nil {
		return plugin.Scope{}, "", err
	}

	scope := plugin.Scope{Name: name}
	if err := v.UnmarshalKey("plugins", &scope.Descriptors); err != nil {
		return plugin.Scope{}, "", apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to decode "+path)
	}
	for i := range scope.Descriptors {
		if err := defaults.Set(&scope.Descriptors[i]); err != nil {
			return plugin.Scope{}, "", apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to set defaults")
		}
	}
	return scope, path, nil
}

func (l *Loader) readFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(l.opts.FileType)
	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to read "+path).
			WithCode(apperrors.CodeInvalidConfig).
			WithDetail("path", path)
	}
	return v, nil
}

func (l *Loader) check(settings *Settings) error {
	errs := apperrors.NewErrorChain()
	addValidation(errs, l.validate.Struct(settings))
	for _, scope := range settings.Scopes[1:] {
		addValidation(errs, l.validate.Struct(scope))
	}
	return errs.ErrOrNil()
}

func addValidation(errs *apperrors.ErrorChain, err error) {
	if err == nil {
		return
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.Add(apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "validation failed"))
		return
	}
	for _, fe := range validationErrors {
		if fe.Tag() == "required" {
			errs.Add(apperrors.NewRequired(fe.Namespace()))
			continue
		}
		errs.Add(apperrors.NewConfiguration(fe.Namespace()+" fails "+fe.Tag()).
			WithDetail("field", fe.Namespace()).
			WithDetail("rule", fe.Tag()).
			WithDetail("value", fe.Value()))
	}
}

// applyEnvOverrides overrides every known key with its environment variable:
// logging.level -> <PREFIX>_LOGGING_LEVEL.
func applyEnvOverrides(v *viper.Viper, envPrefix string) {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	v.SetEnvKeyReplacer(replacer)
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.AutomaticEnv()

	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(replacer.Replace(key))
		if envPrefix != "" {
			envKey = envPrefix + "_" + envKey
		}
		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			v.Set(key, envValue)
		}
	}
}

// Watch reloads the configuration whenever one of its files is written,
// created or renamed, until ctx is done. Reloads that fail keep the previous
// settings and are logged; successful ones are passed to Options.OnChange.
// Load must have succeeded before Watch is called.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to create watcher")
	}
	if err := watcher.Add(l.opts.BasePath); err != nil {
		_ = watcher.Close()
		return apperrors.WrapWithType(err, apperrors.ErrorTypeConfiguration, "failed to watch "+l.opts.BasePath)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !l.relevant(event) {
					continue
				}
				l.reload(event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (l *Loader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	return strings.HasPrefix(name, l.opts.FileName+".") && strings.HasSuffix(name, "."+l.opts.FileType)
}

func (l *Loader) reload(event fsnotify.Event) {
	settings, err := l.Load()
	if err != nil {
		l.logger.Warn("config reload failed, keeping previous settings",
			zap.String("file", event.Name),
			zap.Error(err),
		)
		return
	}

	l.logger.Info("config reloaded", zap.String("file", event.Name), zap.Int("scopes", len(settings.Scopes)))
	if l.opts.OnChange != nil {
		l.opts.OnChange(settings)
	}
}
