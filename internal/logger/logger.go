// Package logger builds the process logger.
package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level maps a numeric verbosity to a zap level: zero and below is info,
// anything higher is debug.
func Level(verbosity int) zapcore.Level {
	if verbosity <= 0 {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// TimeEncoder formats timestamps with millisecond precision.
func TimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// New returns a console logger writing to stderr at the level for the
// verbosity.
func New(verbosity int) *zap.Logger {
	return NewWithSink(verbosity, zapcore.Lock(os.Stderr))
}

// NewWithSink is New writing to the provided sink.
func NewWithSink(verbosity int, w zapcore.WriteSyncer) *zap.Logger {
	encoder := zap.NewProductionEncoderConfig()
	encoder.EncodeTime = TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoder),
		w,
		zap.NewAtomicLevelAt(Level(verbosity)))

	return zap.New(core, zap.AddCaller())
}
