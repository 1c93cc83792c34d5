// Package charset holds the receiver's built-in character set as used when
// programming labels.
//
// The panel cycles through its characters in a fixed order when char_next is
// pressed. A Map lists that order; the index of a character is the number of
// char_next presses needed to reach it from a blank position.
package charset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Map is an ordered character set. Index 0 is always the space character.
type Map []rune

// Default is the map used when no discovered map is configured: space,
// then A-Z, then 0-9.
var Default = MustParse(" ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// MissingCharError is returned when a label uses a character the map lacks
type MissingCharError struct {
	Char     rune
	Position int
}

func (e *MissingCharError) Error() string {
	return fmt.Sprintf("character %q at position %d is not in the character map", e.Char, e.Position)
}

// Parse builds a Map from the characters of s in order
func Parse(s string) (Map, error) {
	m := Map([]rune(s))
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MustParse is like Parse but panics on error. For package level maps only.
func MustParse(s string) Map {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Load reads a map from a YAML file holding a sequence of single characters:
//
//	[" ", "A", "B", "C"]
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read character map: %w", err)
	}

	var chars []string
	if err := yaml.Unmarshal(data, &chars); err != nil {
		return nil, fmt.Errorf("failed to parse character map: %w", err)
	}

	m := make(Map, 0, len(chars))
	for i, c := range chars {
		r := []rune(c)
		if len(r) != 1 {
			return nil, fmt.Errorf("character map entry %d is %q, want exactly one character", i, c)
		}
		m = append(m, r[0])
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that the map is usable: non-empty, starting with a space,
// with no repeated characters
func (m Map) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("character map is empty")
	}
	if m[0] != ' ' {
		return fmt.Errorf("character map must start with a space, got %q", m[0])
	}
	seen := make(map[rune]int, len(m))
	for i, r := range m {
		if j, dup := seen[r]; dup {
			return fmt.Errorf("character %q appears at both %d and %d", r, j, i)
		}
		seen[r] = i
	}
	return nil
}

// Index returns the position of r in the map
func (m Map) Index(r rune) (int, bool) {
	for i, c := range m {
		if c == r {
			return i, true
		}
	}
	return -1, false
}

// Indices maps every character of label to its position. It fails with a
// *MissingCharError on the first character not in the map.
func (m Map) Indices(label string) ([]int, error) {
	var indices []int
	for pos, r := range []rune(label) {
		idx, ok := m.Index(r)
		if !ok {
			return nil, &MissingCharError{Char: r, Position: pos}
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

// String returns the characters in map order
func (m Map) String() string {
	return string(m)
}
