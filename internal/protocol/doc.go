// Package protocol implements the receiver's serial command/response protocol.
//
// This package handles framing, byte stuffing, checksum validation and
// field extraction for the byte-oriented protocol spoken over the receiver's
// RS-232 port. It performs no I/O of its own beyond pulling bytes from a
// caller-supplied io.ByteReader in ReadFrame.
//
// # Frame Format
//
// Every transmission in either direction has this structure:
//   - Magic prefix: 0xFE (never stuffed)
//   - Length: 1 byte, len(DEVICE_ID + CMD_TYPE + DATA)
//   - Device ID: 1 byte (0x04 for commands we send)
//   - Command type: 1 byte (0x10 for commands we send)
//   - Data: variable
//   - Checksum: 1 byte, sum(LEN..DATA) mod 256
//
// Everything after the magic prefix is byte-stuffed.
//
// # Byte Stuffing
//
// 0xFE (magic prefix) and 0xFD (escape prefix) are reserved. Any occurrence of
// either inside LEN..CHKSUM is sent as 0xFD followed by (value - 0xFD):
//
//	0xFD -> 0xFD 0x00
//	0xFE -> 0xFD 0x01
//
// The checksum itself is stuffed too, since it can collide with a reserved
// value.
//
// # Response Layout
//
// Display frames carry the two 5-character front panel segments:
//
//	data[0:5]   source display
//	data[5]     0xFF while powering on
//	data[6:11]  record display
//
// data[0] == 0xFF means the unit is powering off.
//
// # Usage Example - Sending
//
//	cmd := protocol.NewCommand([]byte{0x04}) // source_cd
//	_, err := port.Write(cmd.Raw)
//
// # Usage Example - Receiving
//
//	raw, err := protocol.ReadFrame(reader)
//	if err != nil {
//	    // ErrNotFrameStart / ErrTruncatedFrame: drop and resync
//	}
//	resp, err := protocol.Decode(raw)
//	if resp.BadChecksum {
//	    // still usable, just flagged
//	}
//
// # Error Handling
//
// Checksum mismatches are reported as data (Response.BadChecksum), never as
// errors. Errors are only returned for frames that cannot be sliced at all
// (ErrShortFrame) or that could not be read completely (ErrTruncatedFrame).
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use. Command and
// Response values are not modified after construction.
package protocol
