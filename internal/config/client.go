package config

import (
	"github.com/rotelhex/rotelhex/internal/rotel"
	"github.com/rotelhex/rotelhex/internal/serialport"
)

// ClientOptions returns the client options implied by the receiver section.
// Options passed to NewClient are applied after these and win.
func (c *Config) ClientOptions() []rotel.Option {
	return []rotel.Option{
		rotel.WithTransportOptions(rotel.WithCommandGap(c.Receiver.CommandGap)),
		rotel.WithRestartOnConnect(c.Receiver.RestartOnConnect),
		rotel.WithRestartDelay(c.Receiver.RestartDelay),
	}
}

// NewClient builds a client for the configured serial port, command table and
// character map. The port is not opened until Connect.
func (c *Config) NewClient(opts ...rotel.Option) (*rotel.Client, error) {
	m, err := c.LoadModel()
	if err != nil {
		return nil, err
	}
	chars, err := c.LoadCharset()
	if err != nil {
		return nil, err
	}

	opener := serialport.NewOpener(c.SerialPort())
	return rotel.NewClient(m, chars, opener, append(c.ClientOptions(), opts...)...), nil
}
