package config

import (
	"os"

	"github.com/leeforge/interception/logging"
	"github.com/leeforge/interception/plugin"
	"go.uber.org/zap"
)

// DefaultScope names the scope declared by the base file.
const DefaultScope = "global"

// Settings is the content of interception.yaml.
type Settings struct {
	Logging logging.Config `mapstructure:"logging" json:"logging" yaml:"logging"`

	// Scope names the scope of Plugins.
	Scope string `mapstructure:"scope" json:"scope" yaml:"scope" default:"global" validate:"required"`

	// Plugins are the descriptors of the base scope.
	Plugins []plugin.Descriptor `mapstructure:"plugins" json:"plugins" yaml:"plugins" validate:"dive"`

	// ScopeNames lists the scope files to load after the base file, broadest
	// first. Options.Scopes takes precedence when set.
	ScopeNames []string `mapstructure:"scopes" json:"scopes" yaml:"scopes" validate:"dive,required"`

	Generator GeneratorSettings `mapstructure:"generator" json:"generator" yaml:"generator"`

	// Scopes holds the base scope followed by every loaded scope file.
	Scopes []plugin.Scope `mapstructure:"-" json:"-" yaml:"-"`
}

// GeneratorSettings configures cmd/interceptgen.
type GeneratorSettings struct {
	// Output is the directory manifests are written to. Generated sources
	// always sit next to their subject, in the subject's package.
	Output   string            `mapstructure:"output" json:"output" yaml:"output"`
	Manifest bool              `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
	Workers  int               `mapstructure:"workers" json:"workers" yaml:"workers" default:"4" validate:"min=1"`
	Subjects []SubjectSettings `mapstructure:"subjects" json:"subjects" yaml:"subjects" validate:"dive"`
}

// SubjectSettings points the generator at one subject type.
type SubjectSettings struct {
	Dir  string `mapstructure:"dir" json:"dir" yaml:"dir" validate:"required"`
	Type string `mapstructure:"type" json:"type" yaml:"type" validate:"required"`
}

// Options controls where configuration is read from.
type Options struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string

	// Scopes overrides the scope files listed in the base file.
	Scopes []string

	// WatchAble reloads the configuration when any loaded file changes.
	WatchAble bool
	// OnChange receives every successfully reloaded configuration.
	OnChange func(*Settings)

	Logger *zap.Logger
}

// DefaultOptions reads config/interception.yaml, or the directory named by
// CONFIG_PATH, with INTERCEPTION_ prefixed environment overrides.
func DefaultOptions() Options {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}

	return Options{
		BasePath:  basePath,
		FileName:  "interception",
		FileType:  "yaml",
		EnvPrefix: "INTERCEPTION",
	}
}
