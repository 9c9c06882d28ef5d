package logger

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log   *zap.Logger
	Sugar *zap.SugaredLogger
)

func init() {
	// stderr until Setup is called, so tests and library users get output without a logs/ dir
	core := zapcore.NewCore(newEncoder(), zapcore.Lock(os.Stderr), LevelFromEnv(zapcore.InfoLevel))
	replace(zap.New(core, zap.AddCaller()))
}

// Setup redirects logging into the file at path, creating its directory.
// An empty level falls back to P2P_LOG_LEVEL, then LOG_LEVEL, then info.
func Setup(path string, level string) error {
	lvl := LevelFromEnv(zapcore.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(file), lvl)

	// AddCaller ensures the log includes filename and line number
	replace(zap.New(core, zap.AddCaller()))
	return nil
}

// LevelFromEnv reads P2P_LOG_LEVEL or LOG_LEVEL, returning def when neither parses.
func LevelFromEnv(def zapcore.Level) zapcore.Level {
	level := def
	levelStr := strings.TrimSpace(os.Getenv("P2P_LOG_LEVEL"))
	if levelStr == "" {
		levelStr = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if levelStr != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(levelStr))); err != nil {
			return def
		}
	}
	return level
}

// Sync flushes buffered entries.
func Sync() {
	_ = Log.Sync()
}

func newEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006/01/02 15:04:05"))
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Use ConsoleEncoder for human-readable output in file
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func replace(l *zap.Logger) {
	Log = l
	Sugar = l.Sugar()
}
