package mlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap.SugaredLogger to the Logger interface, the way
// the teacher's common/mzap.ZapWithTraceLogger wraps otelzap.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production or development zap config depending
// on NODE_ENV, matching the teacher's mzap.InitializeLogger.
func NewZapLogger(env string) *ZapLogger {
	var cfg zap.Config

	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		var l zapcore.Level
		if err := l.Set(lvl); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(l)
		}
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Info(args ...any)                  { l.sugar.Info(redactAll(args)...) }
func (l *ZapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, redactAll(args)...) }
func (l *ZapLogger) Error(args ...any)                 { l.sugar.Error(redactAll(args)...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, redactAll(args)...) }
func (l *ZapLogger) Warn(args ...any)                  { l.sugar.Warn(redactAll(args)...) }
func (l *ZapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, redactAll(args)...) }
func (l *ZapLogger) Debug(args ...any)                 { l.sugar.Debug(redactAll(args)...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, redactAll(args)...) }
func (l *ZapLogger) Fatal(args ...any)                 { l.sugar.Fatal(redactAll(args)...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, redactAll(args)...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.sugar.Sync() }
