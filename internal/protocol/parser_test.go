package protocol

import (
	"bytes"
	"errors"
	"testing"
	"testing/quick"
)

// displayFrame builds a response frame carrying the given display text
func displayFrame(source, record string, extra ...byte) []byte {
	data := append([]byte(source), 0x00)
	data = append(data, []byte(record)...)
	data = append(data, extra...)
	return Encode(0x04, 0x20, data)
}

func TestDecodeRoundTrip(t *testing.T) {
	check := func(deviceID, commandType byte, data []byte) bool {
		if len(data) > 200 {
			data = data[:200]
		}
		resp, err := Decode(NewCommand(data, WithDeviceID(deviceID), WithCommandType(commandType)).Raw)
		if err != nil {
			t.Logf("Decode() error = %v", err)
			return false
		}
		return resp.DeviceID == deviceID &&
			resp.CommandType == commandType &&
			bytes.Equal(resp.Data, data) &&
			!resp.BadChecksum
	}

	if err := quick.Check(check, nil); err != nil {
		t.Error(err)
	}

	// Reserved values are the interesting edge; cover them explicitly.
	reserved := [][]byte{
		{MagicPrefix},
		{EscapePrefix},
		{MagicPrefix, EscapePrefix, MagicPrefix},
		{EscapePrefix, 0x00, EscapePrefix, 0x01},
		{0xE7}, // checksum 0xFE
		{0xE6}, // checksum 0xFD
	}
	for _, data := range reserved {
		if !check(DefaultDeviceID, DefaultCommandType, data) {
			t.Errorf("round trip failed for % x", data)
		}
	}
}

func TestDecodeDisplayFields(t *testing.T) {
	resp, err := Decode(displayFrame(" CD  ", "TAPE1"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if resp.DisplaySource != SegmentOf(" CD  ") {
		t.Errorf("DisplaySource = %q, want %q", resp.DisplaySource.String(), " CD  ")
	}
	if resp.DisplayRecord != SegmentOf("TAPE1") {
		t.Errorf("DisplayRecord = %q, want %q", resp.DisplayRecord.String(), "TAPE1")
	}
	if resp.PowerOff {
		t.Error("PowerOff should be false")
	}
	if resp.PoweringOn {
		t.Error("PoweringOn should be false")
	}
	if resp.BadChecksum {
		t.Error("BadChecksum should be false")
	}
	if resp.Length != byte(len(resp.Data)+2) {
		t.Errorf("Length = %d, want %d", resp.Length, len(resp.Data)+2)
	}
}

func TestDecodePowerFlags(t *testing.T) {
	tests := []struct {
		name           string
		data           []byte
		wantPowerOff   bool
		wantPoweringOn bool
	}{
		{
			name:         "powering off",
			data:         []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			wantPowerOff: true,
		},
		{
			name:           "powering on",
			data:           []byte{'T', 'U', 'N', 'E', 'R', 0xFF, ' ', 'O', 'F', 'F', ' '},
			wantPoweringOn: true,
		},
		{
			name: "normal display",
			data: []byte{'T', 'U', 'N', 'E', 'R', 0x00, ' ', 'O', 'F', 'F', ' '},
		},
		{
			name: "too short for power on flag",
			data: []byte{'T', 'U', 'N'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Decode(Encode(0x04, 0x20, tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if resp.PowerOff != tt.wantPowerOff {
				t.Errorf("PowerOff = %v, want %v", resp.PowerOff, tt.wantPowerOff)
			}
			if resp.PoweringOn != tt.wantPoweringOn {
				t.Errorf("PoweringOn = %v, want %v", resp.PoweringOn, tt.wantPoweringOn)
			}
		})
	}
}

func TestDecodeShortData(t *testing.T) {
	resp, err := Decode(Encode(0x04, 0x20, []byte("AUX")))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if resp.DisplaySource != SegmentOf("AUX  ") {
		t.Errorf("DisplaySource = %q, want space padded %q", resp.DisplaySource.String(), "AUX  ")
	}
	if resp.DisplayRecord != Blank {
		t.Errorf("DisplayRecord = %q, want blank", resp.DisplayRecord.String())
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	frame := displayFrame("PHONO", " OFF ")
	frame[len(frame)-1]++ // corrupt checksum (never a reserved byte for this payload)

	resp, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil for checksum mismatch", err)
	}
	if !resp.BadChecksum {
		t.Error("BadChecksum should be true")
	}
	if resp.DisplaySource != SegmentOf("PHONO") {
		t.Errorf("DisplaySource = %q, fields should still be decoded", resp.DisplaySource.String())
	}
}

func TestDecodeWithoutMagicPrefix(t *testing.T) {
	frame := displayFrame("VIDEO", "TAPE2")

	resp, err := Decode(frame[1:])
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.DisplaySource != SegmentOf("VIDEO") || resp.BadChecksum {
		t.Errorf("Decode() without prefix = %s", resp)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	tests := [][]byte{
		nil,
		{MagicPrefix},
		{MagicPrefix, 0x02, 0x04},
		{0x02, 0x04, 0x10},
	}

	for _, frame := range tests {
		_, err := Decode(frame)
		if !errors.Is(err, ErrShortFrame) {
			t.Errorf("Decode(% x) error = %v, want ErrShortFrame", frame, err)
		}
	}
}

func TestChecksumProperty(t *testing.T) {
	check := func(data []byte) bool {
		if len(data) > 200 {
			data = data[:200]
		}
		resp, err := Decode(Encode(DefaultDeviceID, DefaultCommandType, data))
		if err != nil {
			return false
		}
		body := resp.Body
		return Checksum(body[:len(body)-1]) == body[len(body)-1] && !resp.BadChecksum
	}

	if err := quick.Check(check, nil); err != nil {
		t.Error(err)
	}
}

func TestDecodeCharMatchesSegment(t *testing.T) {
	seg := Segment{'A', 0x8E, 0x99, ' ', 0xE1}
	runes := []rune(seg.String())
	for i, b := range seg {
		if got := DecodeChar(b); got != runes[i] {
			t.Errorf("DecodeChar(0x%02x) = %q, segment shows %q", b, got, runes[i])
		}
	}
	if got := DecodeChar(0x8E); got != 'Ä' {
		t.Errorf("DecodeChar(0x8e) = %q, want 'Ä'", got)
	}
}
