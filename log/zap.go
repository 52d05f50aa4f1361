// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"context"
	"log/slog"

	luxlog "github.com/luxfi/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLog is a log.Logger backed by a real *zap.Logger, used by the
// validator server for production logging (NoLog remains the test and
// benchmark default).
type ZapLog struct {
	z *zap.Logger
}

// NewProductionLogger builds a JSON-encoded, info-level zap logger
// suitable for a running validator shard.
func NewProductionLogger() (luxlog.Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLog{z: z}, nil
}

// NewDevelopmentLogger builds a console-encoded, debug-level zap
// logger suitable for local testing.
func NewDevelopmentLogger() (luxlog.Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLog{z: z}, nil
}

func fields(ctx []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, ctx[i+1]))
	}
	return out
}

func (l *ZapLog) With(ctx ...interface{}) luxlog.Logger {
	return &ZapLog{z: l.z.With(fields(ctx)...)}
}

func (l *ZapLog) New(ctx ...interface{}) luxlog.Logger { return l.With(ctx...) }

func (l *ZapLog) Log(level slog.Level, msg string, ctx ...interface{}) {
	switch {
	case level >= slog.LevelError:
		l.z.Error(msg, fields(ctx)...)
	case level >= slog.LevelWarn:
		l.z.Warn(msg, fields(ctx)...)
	case level >= slog.LevelInfo:
		l.z.Info(msg, fields(ctx)...)
	default:
		l.z.Debug(msg, fields(ctx)...)
	}
}

func (l *ZapLog) Trace(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *ZapLog) Debug(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *ZapLog) Info(msg string, ctx ...interface{})  { l.z.Info(msg, fields(ctx)...) }
func (l *ZapLog) Warn(msg string, ctx ...interface{})  { l.z.Warn(msg, fields(ctx)...) }
func (l *ZapLog) Error(msg string, ctx ...interface{}) { l.z.Error(msg, fields(ctx)...) }
func (l *ZapLog) Crit(msg string, ctx ...interface{})  { l.z.Error(msg, fields(ctx)...) }

func (l *ZapLog) WriteLog(level slog.Level, msg string, attrs ...any) {
	l.Log(level, msg, attrs...)
}

func (l *ZapLog) Enabled(_ context.Context, level slog.Level) bool {
	return l.z.Core().Enabled(zapLevel(level))
}

func (l *ZapLog) Handler() slog.Handler { return nil }

func (l *ZapLog) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }
func (l *ZapLog) Verbo(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }

func (l *ZapLog) WithFields(fields ...zap.Field) luxlog.Logger {
	return &ZapLog{z: l.z.With(fields...)}
}

func (l *ZapLog) WithOptions(opts ...zap.Option) luxlog.Logger {
	return &ZapLog{z: l.z.WithOptions(opts...)}
}

func (l *ZapLog) SetLevel(slog.Level)          {}
func (l *ZapLog) GetLevel() slog.Level         { return slog.LevelInfo }
func (l *ZapLog) EnabledLevel(slog.Level) bool { return true }

func (l *ZapLog) StopOnPanic() {}
func (l *ZapLog) RecoverAndPanic(f func()) {
	defer l.z.Sync()
	f()
}
func (l *ZapLog) RecoverAndExit(f, exit func()) {
	defer l.z.Sync()
	f()
	exit()
}
func (l *ZapLog) Stop() { _ = l.z.Sync() }

func (l *ZapLog) Write(p []byte) (int, error) {
	l.z.Info(string(p))
	return len(p), nil
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
