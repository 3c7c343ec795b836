package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"gnss-obs/internal/obs"
)

type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Replay    ReplayConfig    `yaml:"replay"`
	Record    RecordConfig    `yaml:"record"`
	Forward   ForwardConfig   `yaml:"forward"`
	Sessions  []SessionConfig `yaml:"sessions"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

const (
	SourceTCP    = "tcp"
	SourceSerial = "serial"
	SourceReplay = "replay"
)

type SourceConfig struct {
	Kind           string        `yaml:"kind"`
	Addr           string        `yaml:"addr"`
	Device         string        `yaml:"device"`
	Baud           int           `yaml:"baud"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool `yaml:"enable"`
	// Path is a strftime pattern, expanded once when recording starts.
	Path string `yaml:"path"`
}

type ForwardConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type SessionConfig struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type IndicatorConfig struct {
	Enable bool          `yaml:"enable"`
	GPIO   int           `yaml:"gpio"`
	Pulse  time.Duration `yaml:"pulse"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	// io.EOF means an empty file; every key then takes its default.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && unknownFieldsOnly(te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(stripLines(te.Errors), "; "))
		}
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies defaults and checks cross-field constraints. Callers that
// override fields after Load (command-line flags) call it again.
func (cfg *Config) Validate() error {
	s := &cfg.Source
	if s.Kind == "" {
		s.Kind = SourceTCP
	}
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = 1 * time.Second
	}
	switch s.Kind {
	case SourceTCP:
		if s.Addr == "" {
			return fmt.Errorf("source.addr is required when source.kind is 'tcp'")
		}
	case SourceSerial:
		if s.Device == "" {
			return fmt.Errorf("source.device is required when source.kind is 'serial'")
		}
		if s.Baud == 0 {
			s.Baud = 115200
		}
		if s.Baud < 0 {
			return fmt.Errorf("source.baud must be > 0")
		}
	case SourceReplay:
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when source.kind is 'replay'")
		}
	default:
		return fmt.Errorf("source.kind must be one of 'tcp', 'serial', 'replay'")
	}

	if cfg.Replay.Speed == 0 {
		cfg.Replay.Speed = 1
	}
	if cfg.Replay.Speed < 0 {
		return fmt.Errorf("replay.speed must be > 0")
	}

	if cfg.Record.Enable {
		if s.Kind == SourceReplay {
			return fmt.Errorf("record cannot be used with source.kind=replay")
		}
		if cfg.Record.Path == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
	}

	if cfg.Forward.Enable && cfg.Forward.Dest == "" {
		return fmt.Errorf("forward.dest is required when forward.enable is true")
	}

	if len(cfg.Sessions) == 0 {
		cfg.Sessions = []SessionConfig{{Name: "Local", Mode: "local"}}
	}
	seen := make(map[string]bool, len(cfg.Sessions))
	for i := range cfg.Sessions {
		sc := &cfg.Sessions[i]
		mode, err := obs.ParseMode(sc.Mode)
		if err != nil {
			return fmt.Errorf("sessions[%d].mode: %w", i, err)
		}
		sc.Mode = mode.String()
		if sc.Name == "" {
			sc.Name = sc.Mode
		}
		if seen[sc.Name] {
			return fmt.Errorf("sessions[%d].name %q is duplicated", i, sc.Name)
		}
		seen[sc.Name] = true
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format must be one of 'text', 'json', 'logfmt'")
	}

	if cfg.Indicator.Enable && cfg.Indicator.GPIO <= 0 {
		return fmt.Errorf("indicator.gpio must be > 0 when indicator.enable is true")
	}
	if cfg.Indicator.Pulse <= 0 {
		cfg.Indicator.Pulse = 50 * time.Millisecond
	}

	return nil
}

func unknownFieldsOnly(te *yaml.TypeError) bool {
	for _, e := range te.Errors {
		if !strings.Contains(e, "not found in type") {
			return false
		}
	}
	return len(te.Errors) > 0
}

// stripLines drops the "line N: " prefix yaml puts on each error.
func stripLines(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}
