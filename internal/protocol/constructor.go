package protocol

import (
	"encoding/hex"
	"fmt"
)

// Defaults used when building commands for the receiver
const (
	DefaultDeviceID    byte = 0x04
	DefaultCommandType byte = 0x10
)

// Command is a fully framed command ready to be written to the serial port.
//
// Command values are immutable once built; Raw is what goes on the wire.
type Command struct {
	DeviceID    byte   // Target device ID (DefaultDeviceID unless overridden)
	CommandType byte   // Command type (DefaultCommandType unless overridden)
	Data        []byte // Opcode and any argument bytes
	Count       byte   // len(DeviceID + CommandType + Data)
	Checksum    byte   // sum(Count..Data) mod 256
	Raw         []byte // Magic prefix + stuffed body
}

// CommandOption overrides a default field of a Command
type CommandOption func(*Command)

// WithDeviceID overrides the default device ID
func WithDeviceID(id byte) CommandOption {
	return func(c *Command) { c.DeviceID = id }
}

// WithCommandType overrides the default command type
func WithCommandType(t byte) CommandOption {
	return func(c *Command) { c.CommandType = t }
}

// NewCommand builds a command around the given opcode bytes.
//
// Frame Structure:
//
//	[0]     0xFE           Magic prefix (not stuffed)
//	[1]     count          len(device_id + command_type + data)
//	[2]     device_id      0x04 by default
//	[3]     command_type   0x10 by default
//	[4..N]  data           Opcode bytes
//	[N+1]   checksum       sum([1..N]) mod 256
//
// Bytes [1..N+1] are stuffed before the magic prefix is prepended.
func NewCommand(data []byte, opts ...CommandOption) *Command {
	cmd := &Command{
		DeviceID:    DefaultDeviceID,
		CommandType: DefaultCommandType,
		Data:        append([]byte(nil), data...),
	}
	for _, opt := range opts {
		opt(cmd)
	}

	body := frameBody(cmd.DeviceID, cmd.CommandType, cmd.Data)
	cmd.Count = body[0]
	cmd.Checksum = body[len(body)-1]
	cmd.Raw = append([]byte{MagicPrefix}, Stuff(body)...)
	return cmd
}

// Encode returns the wire representation of a command. It never fails: all
// inputs are caller controlled.
func Encode(deviceID, commandType byte, data []byte) []byte {
	return append([]byte{MagicPrefix}, Stuff(frameBody(deviceID, commandType, data))...)
}

// frameBody assembles the unstuffed LEN..CHKSUM section of a frame
func frameBody(deviceID, commandType byte, data []byte) []byte {
	body := make([]byte, 0, len(data)+4)
	body = append(body, byte(len(data)+2), deviceID, commandType)
	body = append(body, data...)
	return append(body, Checksum(body))
}

// Checksum returns the truncated (mod 256) sum of b
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// String returns a debug representation of the command
func (c *Command) String() string {
	return fmt.Sprintf("Command{device=0x%02x, type=0x%02x, data=%s, count=%d, checksum=0x%02x, raw=%s}",
		c.DeviceID, c.CommandType, hex.EncodeToString(c.Data), c.Count, c.Checksum, hex.EncodeToString(c.Raw))
}
