package stimulus

import (
	"errors"
	"fmt"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

const (
	KindLog     = "log"
	KindCommand = "command"
	KindMQTT    = "mqtt"
)

type Config struct {
	Kind string `yaml:"kind"`
	// CancelOnShutdown abandons stimuli still pending when the pipeline stops.
	CancelOnShutdown bool          `yaml:"cancel_on_shutdown"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
	Command          CommandConfig `yaml:"command"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
}

type CommandConfig struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

func (c *Config) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = KindLog
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "dnb-realtime"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "dnb/stimulus"
	}
}

func (c *Config) Validate() error {
	switch c.Kind {
	case KindLog:
	case KindCommand:
		if c.Command.Path == "" {
			return errors.New("command.path is required")
		}
	case KindMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	default:
		return fmt.Errorf("unknown stimulus kind %q", c.Kind)
	}
	return nil
}

// New builds the configured output. MQTT outputs connect to the broker here.
func New(cfg Config, runID string, obs ports.Observability) (ports.StimulusOutput, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindCommand:
		return NewCommandOutput(cfg.Command, cfg.CloseTimeout, obs), nil
	case KindMQTT:
		return DialMQTT(cfg.MQTT, runID, obs)
	default:
		return NewLogOutput(obs), nil
	}
}
