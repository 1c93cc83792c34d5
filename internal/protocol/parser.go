package protocol

import (
	"encoding/hex"
	"fmt"
)

// Response layout constants (offsets into Response.Data)
const (
	sourceOffset    = 0
	powerFlagOffset = 5
	recordOffset    = 6

	// minBodySize is LEN + DEVICE_ID + CMD_TYPE + CHKSUM
	minBodySize = 4

	// powerFlag marks power transitions in the display data
	powerFlag = 0xFF
)

// Response is a single decoded frame received from the receiver
type Response struct {
	Raw  []byte // Wire bytes, magic prefix included when it was supplied
	Body []byte // De-stuffed LEN..CHKSUM

	Length      byte   // Declared length (DEVICE_ID + CMD_TYPE + DATA)
	DeviceID    byte   // Sender device ID
	CommandType byte   // Frame type
	Data        []byte // Payload without header and checksum
	Checksum    byte   // Checksum as received
	BadChecksum bool   // True when Checksum != sum(LEN..DATA) mod 256

	DisplaySource Segment // data[0:5]
	DisplayRecord Segment // data[6:11]
	PowerOff      bool    // data[0] == 0xFF
	PoweringOn    bool    // data[5] == 0xFF while not powering off
}

// Decode parses one frame. The leading magic prefix is optional.
//
// A checksum mismatch is not an error; it sets BadChecksum and the response
// is returned as usual. Only frames too short to slice fail, with
// ErrShortFrame.
func Decode(frame []byte) (*Response, error) {
	stuffed := frame
	if len(stuffed) > 0 && stuffed[0] == MagicPrefix {
		stuffed = stuffed[1:]
	}

	body := Unstuff(stuffed)
	if len(body) < minBodySize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortFrame, len(body), minBodySize)
	}

	resp := &Response{
		Raw:         frame,
		Body:        body,
		Length:      body[0],
		DeviceID:    body[1],
		CommandType: body[2],
		Data:        body[3 : len(body)-1],
		Checksum:    body[len(body)-1],
	}
	resp.BadChecksum = Checksum(body[:len(body)-1]) != resp.Checksum

	resp.DisplaySource = segmentFrom(window(resp.Data, sourceOffset))
	resp.DisplayRecord = segmentFrom(window(resp.Data, recordOffset))
	resp.PowerOff = len(resp.Data) > 0 && resp.Data[0] == powerFlag
	resp.PoweringOn = !resp.PowerOff && len(resp.Data) > powerFlagOffset && resp.Data[powerFlagOffset] == powerFlag

	return resp, nil
}

// window returns up to SegmentLen bytes of data starting at off
func window(data []byte, off int) []byte {
	if off >= len(data) {
		return nil
	}
	end := off + SegmentLen
	if end > len(data) {
		end = len(data)
	}
	return data[off:end]
}

// String returns a human-readable representation of the response
func (r *Response) String() string {
	return fmt.Sprintf("Response{device=0x%02x, type=0x%02x, source=%q, record=%q, data=%s, bad_checksum=%v}",
		r.DeviceID, r.CommandType, r.DisplaySource.String(), r.DisplayRecord.String(),
		hex.EncodeToString(r.Data), r.BadChecksum)
}
