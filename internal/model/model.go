// Package model holds the per-model command tables that map command names to
// opcodes.
//
// A table is static data: the built-in one covers the receiver family this
// project targets, and further tables can be loaded from YAML files:
//
//	name: my-receiver
//	codes:
//	  power_toggle: 0x00
//	  source_cd: 0x04
package model

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Name prefixes that group commands by function
const (
	SourcePrefix = "source_"
	RecordPrefix = "record_"
)

// Command names the label sequencer depends on
const (
	PowerToggle = "power_toggle"
	CharNext    = "char_next"
	CharEnter   = "char_enter"
	LabelChange = "label_change"
)

// Model is a named command table
type Model struct {
	Name  string          `yaml:"name"`
	Codes map[string]byte `yaml:"codes"`
}

// Standard is the command table for the supported receiver family
var Standard = &Model{
	Name: "standard",
	Codes: map[string]byte{
		"power_toggle":   0x00,
		"power_off":      0x01,
		"power_on":       0x02,
		"volume_up":      0x13,
		"volume_down":    0x14,
		"mute_toggle":    0x15,
		"source_phono":   0x03,
		"source_cd":      0x04,
		"source_tuner":   0x05,
		"source_video":   0x06,
		"source_aux1":    0x07,
		"source_aux2":    0x08,
		"source_tape1":   0x09,
		"source_tape2":   0x0a,
		"record_phono":   0x0b,
		"record_cd":      0x0c,
		"record_tuner":   0x0d,
		"record_video":   0x0e,
		"record_aux1":    0x0f,
		"record_aux2":    0x10,
		"record_tape1":   0x11,
		"record_tape2":   0x12,
		"record_select":  0x1a,
		"char_enter":     0x16,
		"char_next":      0x17,
		"char_prev":      0x18,
		"label_change":   0x19,
		"display_toggle": 0x1b,
	},
}

var builtin = map[string]*Model{
	Standard.Name: Standard,
}

// Get returns a built-in model by name
func Get(name string) (*Model, error) {
	m, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(Available(), ", "))
	}
	return m, nil
}

// Available lists the built-in model names
func Available() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a command table from a YAML file
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a command table from YAML
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("model file has no name")
	}
	if len(m.Codes) == 0 {
		return nil, fmt.Errorf("model %q has no command codes", m.Name)
	}
	return &m, nil
}

// Lookup returns the opcode for a command name
func (m *Model) Lookup(name string) (byte, bool) {
	code, ok := m.Codes[name]
	return code, ok
}

// Names returns every command name, sorted
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Codes))
	for name := range m.Codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sources returns the function names that can be selected as source
// (e.g. "cd" for "source_cd"), sorted
func (m *Model) Sources() []string {
	return m.functions(SourcePrefix)
}

// Records returns the function names that can be selected as record output
func (m *Model) Records() []string {
	return m.functions(RecordPrefix)
}

func (m *Model) functions(prefix string) []string {
	var fns []string
	for _, name := range m.Names() {
		if strings.HasPrefix(name, prefix) {
			fns = append(fns, strings.TrimPrefix(name, prefix))
		}
	}
	return fns
}
