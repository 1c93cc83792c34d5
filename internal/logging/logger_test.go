package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is set")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitializeWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotel.log")
	if err := InitializeWithFile("info", FileConfig{Filename: path, MaxSizeMB: 1}); err != nil {
		t.Fatalf("InitializeWithFile() error = %v", err)
	}
	Info("written to file")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry, got %q", data)
	}
}

func TestLogFrameOnlyAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogFrame("tx", []byte{0xFE, 0x03, 0x04, 0x10, 0x04, 0x1B})
	if logs.Len() != 0 {
		t.Errorf("expected no entries at info level, got %d", logs.Len())
	}

	core, logs = observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	LogFrame("tx", []byte{0xFE, 0x03, 0x04, 0x10, 0x04, 0x1B})
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["hex"] != "fe030410041b" {
		t.Errorf("hex = %v", fields["hex"])
	}
	if fields["direction"] != "tx" {
		t.Errorf("direction = %v", fields["direction"])
	}
}

func TestAsciiDump(t *testing.T) {
	if got := asciiDump([]byte{'A', 0x00, 'b', 0xFF}); got != "A.b." {
		t.Errorf("asciiDump() = %q", got)
	}
	if got := hexDump(nil); got != "" {
		t.Errorf("hexDump(nil) = %q", got)
	}
}
