// Command interceptgen writes interceptors for subject types.
//
// For a single type, typically from a go:generate directive:
//
//	//go:generate go run github.com/leeforge/interception/cmd/interceptgen -type InvoiceManagement
//
// Without -type, the subjects listed under generator.subjects in
// interception.yaml are generated concurrently. The exit status is 2 for
// configuration errors and 1 for any other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leeforge/interception/codegen"
	"github.com/leeforge/interception/config"
	apperrors "github.com/leeforge/interception/errors"
	"github.com/leeforge/interception/intercept"
	"github.com/leeforge/interception/logging"
	"go.uber.org/zap"
)

type options struct {
	configPath  string
	typeName    string
	dir         string
	manifestDir string
	workers     int
	verbose     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter := apperrors.NewErrorFormatter(opts.verbose)

	subjects, genSettings, logger, err := resolve(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", formatter.Format(err))
		return exitCode(err)
	}
	defer func() {
		_ = logger.Sync()
		_ = logging.CloseAllWriters()
	}()

	manifests := make([]*intercept.TypeManifest, 0, len(subjects))
	for _, s := range subjects {
		m, err := codegen.Discover(s.Dir, s.Type)
		if err != nil {
			logger.Error("discovery failed", zap.String("dir", s.Dir), zap.String("type", s.Type), zap.String("error", formatter.Format(err)))
			return exitCode(err)
		}
		logger.Debug("subject discovered", zap.String("type", m.Type), zap.Strings("methods", m.MethodNames()))
		manifests = append(manifests, m)
	}

	gen := codegen.New(codegen.Config{Logger: logger})
	defs, err := gen.GenerateAll(ctx, manifests, genSettings.Workers)
	if err != nil {
		logger.Error("generation failed", zap.String("error", formatter.Format(err)))
		return exitCode(err)
	}

	manifestDir := ""
	if genSettings.Manifest {
		manifestDir = genSettings.Output
	}
	for i, def := range defs {
		written, err := codegen.Write(def, subjects[i].Dir, manifestDir)
		if err != nil {
			logger.Error("write failed", zap.String("type", def.SubjectType), zap.Error(err))
			return 1
		}
		logger.Info("interceptor written", zap.String("type", def.SubjectType), zap.Strings("files", written))
	}
	return 0
}

// exitCode is 2 when err stems from the configuration, 1 otherwise.
func exitCode(err error) int {
	var chain *apperrors.ErrorChain
	if errors.As(err, &chain) {
		if chain.HasType(apperrors.ErrorTypeConfiguration) {
			return 2
		}
		return 1
	}
	if apperrors.FromError(err).Type == apperrors.ErrorTypeConfiguration {
		return 2
	}
	return 1
}

func parseFlags() options {
	var opts options

	flag.StringVar(&opts.configPath, "config", "", "Directory holding interception.yaml (default $CONFIG_PATH or ./config)")
	flag.StringVar(&opts.typeName, "type", "", "Subject type to generate; skips the configuration file")
	flag.StringVar(&opts.dir, "dir", ".", "Package directory of -type")
	flag.StringVar(&opts.manifestDir, "manifest-dir", "", "Also write the JSON manifest of -type into this directory")
	flag.IntVar(&opts.workers, "workers", 4, "Concurrent generations")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	flag.Parse()

	return opts
}

// resolve returns the subjects to generate, either from flags or from the
// configuration file, together with a logger.
func resolve(opts options) ([]config.SubjectSettings, config.GeneratorSettings, *zap.Logger, error) {
	if opts.typeName != "" {
		logCfg := logging.DefaultConfig()
		if opts.verbose {
			logCfg.Level = "debug"
		}
		gen := config.GeneratorSettings{
			Output:   opts.manifestDir,
			Manifest: opts.manifestDir != "",
			Workers:  opts.workers,
		}
		return []config.SubjectSettings{{Dir: opts.dir, Type: opts.typeName}}, gen, logging.New(logCfg), nil
	}

	loadOpts := config.DefaultOptions()
	if opts.configPath != "" {
		loadOpts.BasePath = opts.configPath
	}
	settings, err := config.Load(loadOpts)
	if err != nil {
		return nil, config.GeneratorSettings{}, nil, err
	}
	if opts.verbose {
		settings.Logging.Level = "debug"
	}
	if len(settings.Generator.Subjects) == 0 {
		return nil, config.GeneratorSettings{}, nil, fmt.Errorf("no generator.subjects configured in %s", loadOpts.BasePath)
	}
	return settings.Generator.Subjects, settings.Generator, logging.New(settings.Logging), nil
}
