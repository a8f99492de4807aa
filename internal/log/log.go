package log

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	logger = zap.Must(zap.NewProduction())
)

// L returns the process-wide logger.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Replace swaps the process-wide logger, returning the previous one.
func Replace(l *zap.Logger) *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	old := logger
	logger = l
	return old
}

// Options controls construction of the process logger.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// Path, when set, writes to a size-rotated file instead of stderr.
	Path string
	// MaxSizeMB caps a single log file before rotation. Zero means 100.
	MaxSizeMB int
	// MaxBackups caps retained rotated files. Zero means 10.
	MaxBackups int
}

// New builds a zap logger per the options. File output rotates via
// lumberjack; console output uses the production JSON encoder.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	var sink zapcore.WriteSyncer
	if opts.Path != "" {
		_ = os.MkdirAll(filepath.Dir(opts.Path), 0o755)
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 10
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			LocalTime:  true,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	return zap.New(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level),
		zap.Fields(zap.Int("pid", os.Getpid())),
	)
}
