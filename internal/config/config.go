package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LinkConfig selects and parameterises the physical link.
type LinkConfig struct {
	Kind         string        `mapstructure:"kind"` // serial | tcp
	Address      string        `mapstructure:"address"`
	BaudRate     int           `mapstructure:"baudRate"`
	DataBits     int           `mapstructure:"dataBits"`
	StopBits     int           `mapstructure:"stopBits"`
	Parity       string        `mapstructure:"parity"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
}

type SchedulerConfig struct {
	TickInterval   time.Duration `mapstructure:"tickInterval"`
	RxTimeout      time.Duration `mapstructure:"rxTimeout"`
	MaxQueueDepth  int           `mapstructure:"maxQueueDepth"`
	MaxSendRetries int           `mapstructure:"maxSendRetries"`
	MaxRxBuffer    int           `mapstructure:"maxRxBuffer"`
}

// MeterConfig is one polled meter. Address 253 selects the meter by its
// secondary address (id and manufacturer).
type MeterConfig struct {
	Name         string `mapstructure:"name"`
	Address      int    `mapstructure:"address"`
	ID           uint32 `mapstructure:"id"`
	Manufacturer string `mapstructure:"manufacturer"`
}

type MetersConfig struct {
	ReadoutInterval time.Duration `mapstructure:"readoutInterval"`
	ResetDelay      time.Duration `mapstructure:"resetDelay"`
	CSVFile         string        `mapstructure:"csvFile"` // extra meters, one per row
	Devices         []MeterConfig `mapstructure:"devices"`
}

type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

type Config struct {
	Link      LinkConfig      `mapstructure:"link"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Meters    MetersConfig    `mapstructure:"meters"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

const secondaryAddress = 253

// Load reads path (or ./mbus.yaml, ./configs/mbus.yaml when empty), applies
// defaults and MBUS_ environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("mbus")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("MBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Link.Kind) {
	case "serial", "tcp":
	default:
		return fmt.Errorf("link.kind must be serial or tcp, got %q", c.Link.Kind)
	}
	if c.Link.Address == "" {
		return fmt.Errorf("link.address is required")
	}
	switch strings.ToUpper(c.Link.Parity) {
	case "N", "E", "O":
	default:
		return fmt.Errorf("link.parity must be N, E or O, got %q", c.Link.Parity)
	}
	seen := make(map[int]string, len(c.Meters.Devices))
	for _, m := range c.Meters.Devices {
		if m.Address == secondaryAddress {
			continue
		}
		if m.Address < 0 || m.Address > 250 {
			return fmt.Errorf("meter %q: primary address %d out of range 0-250", m.Name, m.Address)
		}
		if other, dup := seen[m.Address]; dup {
			return fmt.Errorf("meters %q and %q share primary address %d", other, m.Name, m.Address)
		}
		seen[m.Address] = m.Name
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.kind", "serial")
	v.SetDefault("link.address", "/dev/ttyUSB0")
	v.SetDefault("link.baudRate", 2400)
	v.SetDefault("link.dataBits", 8)
	v.SetDefault("link.stopBits", 1)
	v.SetDefault("link.parity", "E")
	v.SetDefault("link.readTimeout", "20ms")
	v.SetDefault("link.writeTimeout", "1s")
	v.SetDefault("link.dialTimeout", "5s")

	v.SetDefault("scheduler.tickInterval", "10ms")
	v.SetDefault("scheduler.rxTimeout", "1s")
	v.SetDefault("scheduler.maxQueueDepth", 64)
	v.SetDefault("scheduler.maxSendRetries", 3)
	v.SetDefault("scheduler.maxRxBuffer", 1024)

	v.SetDefault("meters.readoutInterval", "1m")
	v.SetDefault("meters.resetDelay", "50ms")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/mbus-poll.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.addr", ":9102")
	v.SetDefault("metrics.path", "/metrics")
}
