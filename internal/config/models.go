package config

import (
	"fmt"
	"time"

	"github.com/rotelhex/rotelhex/internal/charset"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/model"
	"github.com/rotelhex/rotelhex/internal/serialport"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire user configuration file
type Config struct {
	Version  int               `yaml:"version"`
	Serial   *SerialConfig     `yaml:"serial,omitempty"`
	Receiver *ReceiverConfig   `yaml:"receiver,omitempty"`
	Labels   map[string]string `yaml:"labels,omitempty"` // Preferred display label per source function (e.g. cd: "DISC")
	Logging  *LoggingConfig    `yaml:"logging,omitempty"`
	Server   *ServerConfig     `yaml:"server,omitempty"`
}

// SerialConfig holds the serial link settings
type SerialConfig struct {
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ReceiverConfig describes the receiver on the other end of the link
type ReceiverConfig struct {
	Model            string        `yaml:"model"`                  // Built-in model name
	ModelFile        string        `yaml:"model_file,omitempty"`   // YAML command table, overrides Model
	CharsetFile      string        `yaml:"charset_file,omitempty"` // YAML character map, replaces the default
	CommandGap       time.Duration `yaml:"command_gap"`
	RestartOnConnect bool          `yaml:"restart_on_connect"`
	RestartDelay     time.Duration `yaml:"restart_delay"`
}

// LoggingConfig holds the log level and optional file sink
type LoggingConfig struct {
	Level string             `yaml:"level,omitempty"` // Empty means ROTEL_LOG_LEVEL or silent
	File  logging.FileConfig `yaml:"file,omitempty"`
}

// ServerConfig holds the HTTP bridge settings
type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // Command requests per second, 0 disables limiting
	Burst     int     `yaml:"burst"`
	Advertise bool    `yaml:"advertise"` // Announce the bridge over mDNS
	Instance  string  `yaml:"instance,omitempty"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	c := &Config{Version: CurrentVersion}
	c.applyDefaults()
	return c
}

// applyDefaults fills in missing sections and zero values
func (c *Config) applyDefaults() {
	if c.Serial == nil {
		c.Serial = &SerialConfig{}
	}
	if c.Serial.Port == "" {
		c.Serial.Port = serialport.DefaultPath
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = serialport.DefaultBaudRate
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = serialport.DefaultReadTimeout
	}

	if c.Receiver == nil {
		c.Receiver = &ReceiverConfig{}
	}
	if c.Receiver.Model == "" {
		c.Receiver.Model = model.Standard.Name
	}
	if c.Receiver.CommandGap == 0 {
		c.Receiver.CommandGap = 40 * time.Millisecond
	}
	if c.Receiver.RestartDelay == 0 {
		c.Receiver.RestartDelay = 4 * time.Second
	}

	if c.Labels == nil {
		c.Labels = make(map[string]string)
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}

	if c.Server == nil {
		c.Server = &ServerConfig{
			RateLimit: 5,
			Burst:     10,
			Advertise: true,
		}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate checks values that cannot be fixed up with defaults
func (c *Config) Validate() error {
	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Receiver.CommandGap < 0 {
		return fmt.Errorf("receiver.command_gap must not be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("server.rate_limit and server.burst must not be negative")
	}
	for fn, label := range c.Labels {
		if n := len([]rune(label)); n > 5 {
			return fmt.Errorf("label for %s is %d characters long (maximum 5)", fn, n)
		}
	}
	return nil
}

// SerialPort returns the serial port settings
func (c *Config) SerialPort() serialport.Config {
	return serialport.Config{
		Path:        c.Serial.Port,
		BaudRate:    c.Serial.BaudRate,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

// LoadModel returns the configured command table: the model file when set,
// otherwise the built-in model
func (c *Config) LoadModel() (*model.Model, error) {
	if c.Receiver.ModelFile != "" {
		return model.Load(c.Receiver.ModelFile)
	}
	return model.Get(c.Receiver.Model)
}

// LoadCharset returns the configured character map, or charset.Default
func (c *Config) LoadCharset() (charset.Map, error) {
	if c.Receiver.CharsetFile != "" {
		return charset.Load(c.Receiver.CharsetFile)
	}
	return charset.Default, nil
}

// SetLabel sets or clears (empty label) the preferred label for a source
// function
func (c *Config) SetLabel(fn, label string) {
	if c.Labels == nil {
		c.Labels = make(map[string]string)
	}
	if label == "" {
		delete(c.Labels, fn)
		return
	}
	c.Labels[fn] = label
}
