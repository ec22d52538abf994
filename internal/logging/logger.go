package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   = zap.NewNop()
	sugar    = logger.Sugar()
	loggerMu sync.RWMutex
)

func init() {
	l, err := New(isLocal(os.Getenv("LOCAL")), os.Getenv("LOG_LEVEL"))
	if err != nil {
		return
	}
	SetLogger(l)
}

func isLocal(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

// New builds a zap logger. Local mode uses the colored development encoder
// at debug level; otherwise JSON at info. A non-empty level overrides both.
func New(local bool, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if local {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	return cfg.Build()
}

// SetLogger replaces the process-wide logger
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// L returns the process-wide structured logger
func L() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func s() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return sugar
}

// Sync flushes buffered log entries
func Sync() {
	_ = L().Sync()
}

func Debugf(format string, v ...interface{}) {
	s().Debugf(format, v...)
}

func Infof(format string, v ...interface{}) {
	s().Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	s().Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	s().Errorf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	s().Fatalf(format, v...)
}
