package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is a no-op logger until InitLogger runs,
// so packages may log safely from tests.
var Log = zap.NewNop()

// FileOptions controls optional rotation of the log output to disk.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// InitLogger builds the global logger with the given level ("debug", "info",
// "warn", "error") and format ("json" or "console").
func InitLogger(level, format string, file ...FileOptions) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	sink := zapcore.AddSync(os.Stdout)
	if len(file) > 0 && file[0].Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   file[0].Path,
			MaxSize:    file[0].MaxSizeMB,
			MaxBackups: file[0].MaxBackups,
			MaxAge:     file[0].MaxAgeDays,
		}
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rotator))
	}

	Log = zap.New(zapcore.NewCore(encoder, sink, lvl), zap.AddCaller())
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
