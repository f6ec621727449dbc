package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SlogLogger slog 實作
type SlogLogger struct {
	logger    *slog.Logger
	level     *slog.LevelVar
	sanitizer *Sanitizer

	// writers 需要關閉的 writers；子 logger 為 nil，避免重復關閉
	writers []io.WriteCloser
}

// NewSlogLogger 建立新的 slog logger
func NewSlogLogger(config Config) (*SlogLogger, error) {
	level := new(slog.LevelVar)
	level.Set(config.Level.slogLevel())

	var handlers []slog.Handler
	var closeable []io.WriteCloser

	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStdout, OutputStderr:
			w := output.Writer
			if w == nil {
				w = os.Stdout
				if output.Type == OutputStderr {
					w = os.Stderr
				}
			}
			if wc, ok := w.(io.WriteCloser); ok && !isStdStream(w) {
				closeable = append(closeable, wc)
			}
			handlers = append(handlers, consoleHandler(w, config, level))
		case OutputFile:
			fw, err := createFileWriter(config.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			closeable = append(closeable, fw)
			handlers = append(handlers, plainHandler(fw, config.Format, level))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, consoleHandler(os.Stdout, config, level))
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = NewMultiHandler(handlers...)
	}

	return &SlogLogger{
		logger:    slog.New(handler),
		level:     level,
		sanitizer: NewSanitizer(),
		writers:   closeable,
	}, nil
}

// consoleHandler 終端機使用 tint 彩色輸出
func consoleHandler(w io.Writer, config Config, level slog.Leveler) slog.Handler {
	if config.Format == FormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: consoleTimeFormat,
		NoColor:    config.NoColor || !isTerminal(w),
	})
}

func plainHandler(w io.Writer, format Format, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr || w == os.Stdin
}

// createFileWriter 建立檔案 writer（使用 lumberjack 支援 rotation）
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

// SetLevel 調整級別，子 logger 共用同一個 LevelVar
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(level.slogLevel())
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

// With 建立帶 context 的子 logger
// 子 logger 不擁有 writers
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{
		logger:    l.logger.With(l.sanitizer.SanitizeArgs(args)...),
		level:     l.level,
		sanitizer: l.sanitizer,
	}
}

// Sync lumberjack 寫入即落盤，無緩衝需要 flush
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown 關閉所有 writers，重複呼叫安全
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	l.writers = nil
	return lastErr
}

// Slog exposes the underlying *slog.Logger for libraries that want one
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

// Elapsed is a convenience attribute for durations in milliseconds
func Elapsed(start time.Time) slog.Attr {
	return slog.Int64("elapsed_ms", time.Since(start).Milliseconds())
}
