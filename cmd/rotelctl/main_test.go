package main

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotelhex/rotelhex/internal/config"
	"github.com/rotelhex/rotelhex/internal/rotel"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		configPath, serialPath, baudRate, modelName = "", "", 0, ""
	})
}

func TestLoadConfigOverrides(t *testing.T) {
	resetFlags(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.NewConfig()
	cfg.Serial.Port = "/dev/ttyS3"
	cfg.Receiver.ModelFile = "/etc/rotelhex/model.yaml"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	configPath = path
	got, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got.Serial.Port != "/dev/ttyS3" {
		t.Errorf("Serial.Port = %q, want the file's value", got.Serial.Port)
	}

	serialPath, baudRate, modelName = "/dev/ttyUSB0", 9600, "standard"
	got, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if got.Serial.Port != "/dev/ttyUSB0" || got.Serial.BaudRate != 9600 {
		t.Errorf("serial = %s@%d, want flag values", got.Serial.Port, got.Serial.BaudRate)
	}
	if got.Receiver.Model != "standard" || got.Receiver.ModelFile != "" {
		t.Errorf("--model should replace the model file, got %q / %q", got.Receiver.Model, got.Receiver.ModelFile)
	}
}

func TestSaveConfigUsesFlagPath(t *testing.T) {
	resetFlags(t)

	configPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.NewConfig()
	cfg.SetLabel("cd", "DISC")

	path, err := saveConfig(cfg)
	if err != nil {
		t.Fatalf("saveConfig() error = %v", err)
	}
	if path != configPath {
		t.Errorf("saveConfig() path = %q, want %q", path, configPath)
	}

	back, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if back.Labels["cd"] != "DISC" {
		t.Errorf("Labels[cd] = %q, want DISC", back.Labels["cd"])
	}
}

func TestTroubleshooting(t *testing.T) {
	if got := troubleshooting(errors.New("plain")); got != nil {
		t.Errorf("troubleshooting(plain) = %v, want nil", got)
	}
	got := troubleshooting(rotel.NewChannelError("failed to open port", errors.New("no such file")))
	if len(got) != 1 || got[0] == "" {
		t.Errorf("troubleshooting(channel error) = %v, want one hint", got)
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"commands"}, {"send"}, {"source"}, {"record"}, {"label"},
		{"labels", "apply"}, {"labels", "list"}, {"status"}, {"restart"},
		{"monitor"}, {"ports"}, {"scan"}, {"config", "init"}, {"config", "show"},
		{"config", "path"}, {"version"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestCapReadTimeout(t *testing.T) {
	tests := []struct {
		name    string
		current time.Duration
		limit   time.Duration
		want    time.Duration
	}{
		{"longer than wait", 5 * time.Second, time.Second, time.Second},
		{"already shorter", 200 * time.Millisecond, time.Second, 200 * time.Millisecond},
		{"no limit", 5 * time.Second, 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Serial.ReadTimeout = tt.current
			capReadTimeout(tt.limit)(cfg)
			if cfg.Serial.ReadTimeout != tt.want {
				t.Errorf("ReadTimeout = %v, want %v", cfg.Serial.ReadTimeout, tt.want)
			}
		})
	}
}

func TestStatusReadTimeoutFollowsWait(t *testing.T) {
	resetFlags(t)

	configPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg, c, err := newClient(capReadTimeout(250 * time.Millisecond))
	if err != nil {
		t.Fatalf("newClient() error = %v", err)
	}
	defer c.Close()
	if cfg.Serial.ReadTimeout != 250*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want the --wait value", cfg.Serial.ReadTimeout)
	}
}
