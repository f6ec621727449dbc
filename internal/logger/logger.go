package logger

import (
	"fmt"
	"sync"
)

var (
	defaultLogger *SlogLogger
	mu            sync.RWMutex
)

// Init 初始化全域 logger
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil {
		return fmt.Errorf("logger already initialized; call Shutdown() before re-initializing")
	}

	l, err := NewSlogLogger(config)
	if err != nil {
		return fmt.Errorf("failed to create slog logger: %w", err)
	}
	defaultLogger = l
	return nil
}

// Get 取得全域 logger
func Get() Logger {
	mu.RLock()
	defer mu.RUnlock()

	if defaultLogger == nil {
		// 未初始化時回傳 null logger（避免 panic）
		return &NullLogger{}
	}
	return defaultLogger
}

// With 建立帶 context 的子 logger
func With(args ...any) Logger {
	return Get().With(args...)
}

// Sync 強制 flush
func Sync() error {
	return Get().Sync()
}

// Shutdown 優雅關閉
func Shutdown() error {
	mu.Lock()
	l := defaultLogger
	defaultLogger = nil
	mu.Unlock() // Release lock before closing writers

	if l == nil {
		return nil
	}
	return l.Shutdown()
}

// SetLevel 動態調整日誌級別
func SetLevel(level Level) {
	mu.RLock()
	defer mu.RUnlock()

	if defaultLogger != nil {
		defaultLogger.SetLevel(level)
	}
}

// NullLogger 空 logger（不做任何事）
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }
