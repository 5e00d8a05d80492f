// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogType - type of logging, used in flow package
type LogType uint8

const (
	// No - no output even after fatal errors
	No LogType = 1 << iota
	// Initialization - output during system initialization
	Initialization = 2
	// Debug - output during execution one time per time period (scheduler ticks)
	Debug = 4
	// Verbose - output during execution as soon as something happens. Can influence performance
	Verbose = 8
)

var currentLogType = No | Initialization | Debug

var logger atomic.Pointer[zap.Logger]

func init() {
	lg, _, _ := NewLogger(LogConfig{})
	logger.Store(lg)
}

// LogConfig selects encoder and level of the process logger.
type LogConfig struct {
	JSON      bool `envconfig:"LOG_JSON" ini:"json" yaml:"json"`
	NoColor   bool `envconfig:"LOG_NO_COLOR" ini:"no_color" yaml:"no_color"`
	Verbose   int  `envconfig:"LOG_VERBOSE" ini:"verbose" yaml:"verbose"`
	Quiet     bool `envconfig:"LOG_QUIET" ini:"quiet" yaml:"quiet"`
	AddCaller bool `envconfig:"LOG_CALLER" ini:"caller" yaml:"caller"`
}

// LogTypeFor maps logger verbosity onto the nff LogType mask.
func (cfg LogConfig) LogTypeFor() LogType {
	switch {
	case cfg.Quiet:
		return No
	case cfg.Verbose > 1:
		return No | Initialization | Debug | Verbose
	default:
		return No | Initialization | Debug
	}
}

// NewLogger builds a zap logger writing to stderr. The returned cleanup
// function flushes buffered entries.
func NewLogger(cfg LogConfig) (*zap.Logger, func(context.Context) error, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	if cfg.JSON {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		if cfg.NoColor {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		} else {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stderr)

	level := zapcore.InfoLevel
	if cfg.Quiet {
		level = zapcore.WarnLevel
	}
	if cfg.Verbose > 0 && !cfg.Quiet {
		level = zapcore.DebugLevel
	}

	opts := []zap.Option{
		zap.ErrorOutput(ws),
		zap.AddStacktrace(zapcore.DPanicLevel),
	}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	lg := zap.New(zapcore.NewCore(enc, ws, level), opts...)

	cleanup := func(_ context.Context) error {
		if err := lg.Sync(); err != nil {
			// stderr usually refuses fsync
			if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP) || errors.Is(err, syscall.EBADF) {
				return nil
			}
			return err
		}
		return nil
	}
	return lg, cleanup, nil
}

// SetLogger replaces the process logger used by all Log functions.
func SetLogger(lg *zap.Logger) {
	if lg == nil {
		lg = zap.NewNop()
	}
	logger.Store(lg)
}

// Logger returns the process logger, for structured logging with fields.
func Logger() *zap.Logger {
	return logger.Load()
}

func sprint(v []interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(v...), "\n")
}

// LogFatal internal, used in all packages
func LogFatal(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Error(sprint(v))
		_ = Logger().Sync()
	}
	os.Exit(1)
}

// LogFatalf is a wrapper at LogFatal which makes formatting before logger.
func LogFatalf(logType LogType, format string, v ...interface{}) {
	LogFatal(logType, fmt.Sprintf(format, v...))
}

// LogError internal, used in all packages
func LogError(logType LogType, v ...interface{}) string {
	if logType&currentLogType != 0 {
		t := sprint(v)
		Logger().Error(t)
		return t
	}
	return ""
}

// LogWarning internal, used in all packages
func LogWarning(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Warn(sprint(v))
	}
}

// LogDebug internal, used in all packages
func LogDebug(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Debug(sprint(v))
	}
}

// LogInfo internal, used in all packages
func LogInfo(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Info(sprint(v))
	}
}

// LogDrop internal, used in all packages
func LogDrop(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Warn(sprint(v), zap.Bool("drop", true))
	}
}

// LogTitle internal, used in all packages
func LogTitle(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		Logger().Info(fmt.Sprint(v...))
	}
}

// SetLogType internal, used in flow package
func SetLogType(logType LogType) {
	currentLogType = logType
}

// GetLogType returns the active LogType mask.
func GetLogType() LogType {
	return currentLogType
}
