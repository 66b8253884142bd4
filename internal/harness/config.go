package harness

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every error returned from Config.Validate.
var ErrInvalidConfig = errors.New("invalid harness config")

// Config selects how many goroutines of each kind hammer the lock and for
// how long.
type Config struct {
	Readers     int           `yaml:"readers"`
	Writers     int           `yaml:"writers"`
	Downgraders int           `yaml:"downgraders"`
	Elapse      time.Duration `yaml:"elapse"`

	// Yield makes every worker call runtime.Gosched after each cycle.
	Yield bool `yaml:"yield"`

	// Grace bounds how long workers get to notice the stop flag.
	Grace time.Duration `yaml:"grace"`
}

// DefaultConfig returns one goroutine of each kind running for five seconds.
func DefaultConfig() Config {
	return Config{
		Readers:     1,
		Writers:     1,
		Downgraders: 1,
		Elapse:      5 * time.Second,
		Grace:       10 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Readers < 0:
		return fmt.Errorf("%w: readers = %d", ErrInvalidConfig, c.Readers)
	case c.Writers < 0:
		return fmt.Errorf("%w: writers = %d", ErrInvalidConfig, c.Writers)
	case c.Downgraders < 0:
		return fmt.Errorf("%w: downgraders = %d", ErrInvalidConfig, c.Downgraders)
	case c.Readers+c.Writers+c.Downgraders == 0:
		return fmt.Errorf("%w: no goroutines to run", ErrInvalidConfig)
	case c.Elapse <= 0:
		return fmt.Errorf("%w: elapse = %v", ErrInvalidConfig, c.Elapse)
	case c.Grace <= 0:
		return fmt.Errorf("%w: grace = %v", ErrInvalidConfig, c.Grace)
	}
	return nil
}

// UnmarshalYAML reads elapse and grace as seconds when they carry no unit,
// so "elapse: 5" and "elapse: 5s" mean the same.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := struct {
		Readers     int     `yaml:"readers"`
		Writers     int     `yaml:"writers"`
		Downgraders int     `yaml:"downgraders"`
		Elapse      seconds `yaml:"elapse"`
		Yield       bool    `yaml:"yield"`
		Grace       seconds `yaml:"grace"`
	}{
		Readers:     c.Readers,
		Writers:     c.Writers,
		Downgraders: c.Downgraders,
		Elapse:      seconds(c.Elapse),
		Yield:       c.Yield,
		Grace:       seconds(c.Grace),
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*c = Config{
		Readers:     raw.Readers,
		Writers:     raw.Writers,
		Downgraders: raw.Downgraders,
		Elapse:      time.Duration(raw.Elapse),
		Yield:       raw.Yield,
		Grace:       time.Duration(raw.Grace),
	}
	return nil
}

// seconds is a duration written either as a whole number of seconds or in
// time.ParseDuration form.
type seconds time.Duration

func (s *seconds) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case int:
		*s = seconds(time.Duration(v) * time.Second)
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*s = seconds(d)
	default:
		return fmt.Errorf("%w: duration %v is neither whole seconds nor a duration string", ErrInvalidConfig, v)
	}
	return nil
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}
