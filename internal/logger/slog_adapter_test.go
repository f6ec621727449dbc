package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSlogLogger_Basic(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewSlogLogger(bufferConfig(buf, LevelDebug))
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	defer logger.Shutdown()

	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("log output missing message: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("log output missing key-value: %s", output)
	}
}

func TestSlogLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		logFunc   func(*SlogLogger)
		shouldLog bool
	}{
		{"debug at debug level", LevelDebug, func(l *SlogLogger) { l.Debug("msg") }, true},
		{"debug at info level", LevelInfo, func(l *SlogLogger) { l.Debug("msg") }, false},
		{"warn at info level", LevelInfo, func(l *SlogLogger) { l.Warn("msg") }, true},
		{"info at error level", LevelError, func(l *SlogLogger) { l.Info("msg") }, false},
		{"error at error level", LevelError, func(l *SlogLogger) { l.Error("msg") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := NewSlogLogger(bufferConfig(buf, tt.level))
			if err != nil {
				t.Fatalf("NewSlogLogger() error = %v", err)
			}
			tt.logFunc(logger)

			if logged := buf.Len() > 0; logged != tt.shouldLog {
				t.Errorf("logged = %v, want %v (output %q)", logged, tt.shouldLog, buf.String())
			}
		})
	}
}

func TestSlogLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	config := bufferConfig(buf, LevelInfo)
	config.Format = FormatJSON

	logger, err := NewSlogLogger(config)
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	logger.Info("json message", "peer", "alpha")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record["msg"] != "json message" || record["peer"] != "alpha" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestSlogLogger_EscapesPeerInput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, _ := NewSlogLogger(bufferConfig(buf, LevelInfo))

	logger.Warn("rejected request", "path", "x\nforged line")

	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("peer input produced extra log lines: %q", buf.String())
	}
}

func TestSlogLogger_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "filesync.log")

	config := Config{
		Level:  LevelInfo,
		Format: FormatText,
		File: FileConfig{
			Path:       logPath,
			MaxSizeMB:  1,
			MaxAgeDays: 7,
			MaxBackups: 3,
		},
		Outputs: []OutputConfig{
			{Type: OutputFile},
		},
	}

	logger, err := NewSlogLogger(config)
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	logger.Info("test file logging")
	logger.Shutdown()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "test file logging") {
		t.Errorf("log file missing message: %s", string(content))
	}
}

func TestSlogLogger_FileOutputRequiresPath(t *testing.T) {
	_, err := NewSlogLogger(Config{Outputs: []OutputConfig{{Type: OutputFile}}})
	if err == nil {
		t.Fatal("expected error for empty file path")
	}
}

func TestSlogLogger_MultipleOutputs(t *testing.T) {
	buf1 := &bytes.Buffer{}
	buf2 := &bytes.Buffer{}

	config := Config{
		Level:  LevelInfo,
		Format: FormatText,
		Outputs: []OutputConfig{
			{Type: OutputStdout, Writer: buf1},
			{Type: OutputStderr, Writer: buf2},
		},
	}

	logger, err := NewSlogLogger(config)
	if err != nil {
		t.Fatalf("NewSlogLogger() error = %v", err)
	}
	defer logger.Shutdown()

	logger.With("remote", "docs").Info("test multi-output")

	for i, buf := range []*bytes.Buffer{buf1, buf2} {
		if !strings.Contains(buf.String(), "test multi-output") || !strings.Contains(buf.String(), "remote=docs") {
			t.Errorf("buffer%d missing message: %s", i+1, buf.String())
		}
	}
}
