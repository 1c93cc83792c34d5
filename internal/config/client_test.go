package config

import (
	"path/filepath"
	"testing"

	"github.com/rotelhex/rotelhex/internal/charset"
	"github.com/rotelhex/rotelhex/internal/model"
)

func TestNewClientFromDefaults(t *testing.T) {
	cfg := NewConfig()

	c, err := cfg.NewClient()
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.Model() != model.Standard {
		t.Errorf("Model() = %v, want the standard table", c.Model().Name)
	}
	if c.Charset().String() != charset.Default.String() {
		t.Errorf("Charset() = %q, want the default map", c.Charset().String())
	}
	if len(cfg.ClientOptions()) != 3 {
		t.Errorf("ClientOptions() returned %d options, want 3", len(cfg.ClientOptions()))
	}
}

func TestNewClientBadModelFile(t *testing.T) {
	cfg := NewConfig()
	cfg.Receiver.ModelFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := cfg.NewClient(); err == nil {
		t.Error("NewClient() with a missing model file should fail")
	}
}

func TestNewClientUnknownModel(t *testing.T) {
	cfg := NewConfig()
	cfg.Receiver.Model = "no-such-model"

	if _, err := cfg.NewClient(); err == nil {
		t.Error("NewClient() with an unknown model should fail")
	}
}
