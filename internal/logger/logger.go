// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Поддерживается логирование времени выполнения функций.
// Запись идёт через zap с буферизованным WriteSyncer.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	asyncBufferSize    = 256 * 1024
	asyncFlushInterval = time.Second
	slowCallThreshold  = 100 * time.Millisecond
)

var (
	prefix string
	debug  bool
	level  zap.AtomicLevel
	base   *zap.SugaredLogger
	ws     *zapcore.BufferedWriteSyncer
	once   sync.Once
	mu     sync.RWMutex
)

func parseLevel(v string) zapcore.Level {
	switch v {
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func initCore() {
	lvl := parseLevel(os.Getenv("LOG_LEVEL"))
	debug = lvl == zapcore.DebugLevel
	level = zap.NewAtomicLevelAt(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	ws = &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(os.Stderr),
		Size:          asyncBufferSize,
		FlushInterval: asyncFlushInterval,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
	base = zap.New(core).Sugar()
}

func sugar() *zap.SugaredLogger {
	once.Do(initCore)
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return base
	}
	return base.Named(prefix)
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "push").
func SetPrefix(p string) {
	once.Do(initCore)
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel переключает уровень после загрузки конфигурации (LOG_LEVEL из YAML).
func SetLevel(v string) {
	once.Do(initCore)
	mu.Lock()
	defer mu.Unlock()
	lvl := parseLevel(v)
	debug = lvl == zapcore.DebugLevel
	level.SetLevel(lvl)
}

// Sync сбрасывает буфер; вызывать при остановке процесса.
func Sync() {
	once.Do(initCore)
	_ = base.Sync()
	_ = ws.Stop()
}

// Info пишет в лог с префиксом (асинхронно).
func Info(v ...any) {
	sugar().Info(v...)
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	sugar().Infof(format, v...)
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	sugar().Error(v...)
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	sugar().Errorf(format, v...)
}

// Infow пишет сообщение со структурированными полями.
func Infow(msg string, kv ...any) {
	sugar().Infow(msg, kv...)
}

// Errorw пишет ошибку со структурированными полями.
func Errorw(msg string, kv ...any) {
	sugar().Errorw(msg, kv...)
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	mu.RLock()
	all := debug
	mu.RUnlock()
	if all || elapsed >= slowCallThreshold {
		sugar().Infow(fmt.Sprintf("fn=%s", fn), "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
