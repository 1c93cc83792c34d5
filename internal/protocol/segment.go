package protocol

import (
	"encoding/hex"

	"golang.org/x/text/encoding/charmap"
)

// SegmentLen is the width of each front panel display segment
const SegmentLen = 5

// Segment is one 5-character display field exactly as the receiver sent it
type Segment [SegmentLen]byte

// Blank is an empty display segment (five spaces)
var Blank = SegmentOf("     ")

// SegmentOf builds a Segment from s, padding with spaces or truncating to
// SegmentLen bytes
func SegmentOf(s string) Segment {
	return segmentFrom([]byte(s))
}

func segmentFrom(b []byte) Segment {
	seg := Segment{' ', ' ', ' ', ' ', ' '}
	copy(seg[:], b)
	return seg
}

// String decodes the segment for display. The panel uses code page 850.
func (s Segment) String() string {
	out, err := charmap.CodePage850.NewDecoder().Bytes(s[:])
	if err != nil {
		return string(s[:])
	}
	return string(out)
}

// DecodeChar decodes one display byte the way String does
func DecodeChar(b byte) rune {
	return charmap.CodePage850.DecodeByte(b)
}

// Hex returns the raw segment bytes as hex
func (s Segment) Hex() string {
	return hex.EncodeToString(s[:])
}

// Diff returns the positions at which s and other differ
func (s Segment) Diff(other Segment) []int {
	var idx []int
	for i := range s {
		if s[i] != other[i] {
			idx = append(idx, i)
		}
	}
	return idx
}
