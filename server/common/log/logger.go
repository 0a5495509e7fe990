package log

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultService      = "s4"
	defaultMaxSizeMB    = 20
	defaultMaxBackups   = 5
	defaultMaxAgeDays   = 14
	envLogFilePath      = "LOG_FILE_PATH"
	envLogMaxSizeMB     = "LOG_MAX_SIZE_MB"
	envLogFormat        = "LOG_FORMAT"
	envLogLevel         = "LOG_LEVEL"
	logFormatText       = "text"
	logFormatJSON       = "json"
	logFileDisabledFlag = "-"
)

// FileSinkDisabled as Config.FilePath turns the rotating file sink off.
const FileSinkDisabled = logFileDisabledFlag

// Config controls the process-wide logger. Zero values fall back to defaults; an empty
// FilePath writes to ./logs/<Service>.log.
type Config struct {
	Service   string
	Level     string
	Format    string
	FilePath  string
	MaxSizeMB int
}

var (
	mu     sync.RWMutex
	global = newLogger(ConfigFromEnv(defaultService))
)

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_FILE_PATH and LOG_MAX_SIZE_MB.
func ConfigFromEnv(service string) Config {
	cfg := Config{
		Service:  service,
		Level:    strings.ToLower(strings.TrimSpace(os.Getenv(envLogLevel))),
		Format:   strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat))),
		FilePath: strings.TrimSpace(os.Getenv(envLogFilePath)),
	}
	if raw := strings.TrimSpace(os.Getenv(envLogMaxSizeMB)); raw != "" {
		if sizeMB, err := strconv.Atoi(raw); err == nil && sizeMB > 0 {
			cfg.MaxSizeMB = sizeMB
		}
	}
	return cfg
}

func newLogger(cfg Config) *zap.SugaredLogger {
	level := parseLevel(cfg.Level)
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= level })

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339Nano),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var consoleEncoder zapcore.Encoder
	if cfg.Format == logFormatJSON {
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		colored := encCfg
		colored.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(colored)
	}
	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), enabler)}

	if path := cfg.filePath(); path != logFileDisabledFlag {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = defaultMaxSizeMB
		}
		// lumberjack creates the directory and file on first write.
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: defaultMaxBackups,
			MaxAge:     defaultMaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), enabler))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

func (c Config) filePath() string {
	if c.FilePath != "" {
		return c.FilePath
	}
	service := c.Service
	if service == "" {
		service = defaultService
	}
	return filepath.Join("logs", service+".log")
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init rebuilds the global logger from cfg. Each main calls it once before serving.
func Init(cfg Config) {
	replace(newLogger(cfg))
}

// Replace swaps the global logger and returns a func restoring the previous one.
// Tests use it with zaptest loggers.
func Replace(l *zap.Logger) func() {
	prev := current()
	replace(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
	return func() { replace(prev) }
}

// Sync flushes buffered entries; call on shutdown.
func Sync() {
	_ = current().Sync()
}

func replace(l *zap.SugaredLogger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Debugf(format string, args ...any) {
	current().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	current().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	current().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	current().Errorf(format, args...)
}

// Infow logs msg with structured key/value pairs.
func Infow(msg string, keysAndValues ...any) {
	current().Infow(msg, keysAndValues...)
}

// Warnw logs msg with structured key/value pairs.
func Warnw(msg string, keysAndValues ...any) {
	current().Warnw(msg, keysAndValues...)
}

// Errorw logs msg with structured key/value pairs.
func Errorw(msg string, keysAndValues ...any) {
	current().Errorw(msg, keysAndValues...)
}
