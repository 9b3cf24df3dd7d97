package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger from config. Lines go to stderr, to a rotated file
// under config.Director, or both. Entries at error level and above are also
// copied to a separate "<file-name>.error.log".
//
// With neither output enabled New returns a no-op logger.
func New(config Config) *zap.Logger {
	config.applyDefaults()

	cores := getZapCores(config)
	if len(cores) == 0 {
		return zap.NewNop()
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if config.ShowLineNumber {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger
}

func getZapCores(config Config) []zapcore.Core {
	level := config.TransportLevel()
	atLeast := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level })

	var cores []zapcore.Core
	if config.LogInTerminal {
		cores = append(cores, zapcore.NewCore(GetEncoder(config), zapcore.Lock(os.Stderr), atLeast))
	}
	if config.LogToFile {
		fileEncoder := config
		fileEncoder.Format = "json"
		fileEncoder.EncodeLevel = "LowercaseLevelEncoder"

		cores = append(cores, zapcore.NewCore(GetEncoder(fileEncoder),
			zapcore.AddSync(registerWriter(newRotatingWriter(config, config.FileName))), atLeast))

		errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && l >= level
		})
		cores = append(cores, zapcore.NewCore(GetEncoder(fileEncoder),
			zapcore.AddSync(registerWriter(newRotatingWriter(config, config.FileName+".error"))), errorsOnly))
	}
	return cores
}
