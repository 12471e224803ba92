package stimulus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Publisher is the part of mqtt.Client the output needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type firePayload struct {
	RunID   string    `json:"run_id"`
	Command string    `json:"command"`
	SentAt  time.Time `json:"sent_at"`
}

// MQTTOutput publishes a fire command to a network stimulator. It does not wait for
// the broker acknowledgement; failures already known when Fire returns are reported.
type MQTTOutput struct {
	pub    Publisher
	client mqtt.Client
	cfg    MQTTConfig
	runID  string
	obs    ports.Observability
}

func NewMQTTOutput(pub Publisher, cfg MQTTConfig, runID string, obs ports.Observability) *MQTTOutput {
	return &MQTTOutput{pub: pub, cfg: cfg, runID: runID, obs: obs}
}

// DialMQTT connects to cfg.Broker and returns an output publishing on cfg.Topic.
func DialMQTT(cfg MQTTConfig, runID string, obs ports.Observability) (*MQTTOutput, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	out := NewMQTTOutput(client, cfg, runID, obs)
	out.client = client
	obs.LogInfo("mqtt stimulus output connected",
		ports.F("component", "stimulus"),
		ports.F("broker", cfg.Broker),
		ports.F("topic", cfg.Topic),
	)
	return out, nil
}

func (o *MQTTOutput) Name() string { return KindMQTT }

func (o *MQTTOutput) Fire(context.Context) error {
	payload, err := json.Marshal(firePayload{RunID: o.runID, Command: "fire", SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	token := o.pub.Publish(o.cfg.Topic, o.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", o.cfg.Topic, err)
		}
	default:
	}
	return nil
}

func (o *MQTTOutput) Close() error {
	if o.client != nil {
		o.client.Disconnect(250)
	}
	return nil
}

var _ ports.StimulusOutput = (*MQTTOutput)(nil)
