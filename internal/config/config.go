// Package config loads the telemetry tool's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the whole configuration file. Fields missing from the file keep
// their Default values.
type Config struct {
	LogLevel    string            `yaml:"logLevel"`
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Capture     CaptureConfig     `yaml:"capture"`
	HTTP        HTTPConfig        `yaml:"http"`
}

type SerialConfig struct {
	Device      string   `yaml:"device"`
	BaudRate    int      `yaml:"baudRate"`
	Delimiter   string   `yaml:"delimiter"`
	ReadTimeout Duration `yaml:"readTimeout"`
	SettleDelay Duration `yaml:"settleDelay"`
	Backend     string   `yaml:"backend"`
}

type AcquisitionConfig struct {
	ViewerCapacity      int `yaml:"viewerCapacity"`
	DashboardCapacity   int `yaml:"dashboardCapacity"`
	QueueSize           int `yaml:"queueSize"`
	ReadErrorsThreshold int `yaml:"readErrorsThreshold"`
}

type CaptureConfig struct {
	Duration Duration `yaml:"duration"`
	Output   string   `yaml:"output"`
}

type HTTPConfig struct {
	Listen  string   `yaml:"listen"`
	Refresh Duration `yaml:"refresh"`
}

// Duration is a time.Duration written as a Go duration string ("100ms").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Serial: SerialConfig{
			Device:      "/dev/ttyUSB0",
			BaudRate:    serial.DefaultBaudRate,
			Delimiter:   serial.DefaultDelimiter,
			ReadTimeout: Duration(serial.DefaultReadTimeout),
			SettleDelay: Duration(2 * time.Second),
			Backend:     serial.BackendTermios,
		},
		Acquisition: AcquisitionConfig{
			ViewerCapacity:      200,
			DashboardCapacity:   500,
			QueueSize:           256,
			ReadErrorsThreshold: 10,
		},
		Capture: CaptureConfig{
			Duration: Duration(10 * time.Second),
			Output:   "datos_planta.csv",
		},
		HTTP: HTTPConfig{
			Listen:  ":8080",
			Refresh: Duration(30 * time.Millisecond),
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positiveDur := func(name string, d Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel: %w", err))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is required"))
	}
	positive("serial.baudRate", c.Serial.BaudRate)
	if c.Serial.Delimiter == "" {
		errs = append(errs, errors.New("serial.delimiter must not be empty"))
	}
	positiveDur("serial.readTimeout", c.Serial.ReadTimeout)
	if c.Serial.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("serial.settleDelay must not be negative, got %s", c.Serial.SettleDelay))
	}
	switch c.Serial.Backend {
	case serial.BackendTermios, serial.BackendPortable:
	default:
		errs = append(errs, fmt.Errorf("serial.backend: unknown backend %q", c.Serial.Backend))
	}

	positive("acquisition.viewerCapacity", c.Acquisition.ViewerCapacity)
	positive("acquisition.dashboardCapacity", c.Acquisition.DashboardCapacity)
	positive("acquisition.queueSize", c.Acquisition.QueueSize)
	positive("acquisition.readErrorsThreshold", c.Acquisition.ReadErrorsThreshold)

	positiveDur("capture.duration", c.Capture.Duration)
	if c.Capture.Output == "" {
		errs = append(errs, errors.New("capture.output is required"))
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required"))
	}
	positiveDur("http.refresh", c.HTTP.Refresh)

	return errors.Join(errs...)
}

// Transport converts the serial section for serial.OpenTransport.
func (c SerialConfig) Transport() serial.Config {
	return serial.Config{
		Device:      c.Device,
		BaudRate:    c.BaudRate,
		Delimiter:   c.Delimiter,
		ReadTimeout: c.ReadTimeout.Std(),
		SettleDelay: c.SettleDelay.Std(),
		Backend:     c.Backend,
	}
}
