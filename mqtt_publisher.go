package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// summaryMessage is what gets published on every tick.
type summaryMessage struct {
	Timestamp int64       `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	State     string      `json:"state"`
	Window    WindowStats `json:"window"`
}

// MQTTPublisher periodically publishes window statistics to a broker.
type MQTTPublisher struct {
	client mqtt.Client
	config MQTTConfig
	state  *ServerState
	log    *slog.Logger
}

func mqttClientID() string {
	return "scopeview-" + uuid.NewString()[:8]
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(config MQTTConfig, state *ServerState, logger *slog.Logger) (*MQTTPublisher, error) {
	log := logger.With(slog.String("component", "mqtt"))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(mqttClientID())
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("connected to broker", slog.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("connection lost", slog.Any("error", err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15*time.Second) {
		// ConnectRetry keeps trying in the background.
		log.Warn("broker not reachable yet, retrying in background", slog.String("broker", config.Broker))
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{client: client, config: config, state: state, log: log}, nil
}

// Run publishes at the configured interval until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(p.config.PublishInterval) * time.Second)
	defer ticker.Stop()

	p.log.Info("publisher started", slog.String("topic", p.config.Topic), slog.Int("interval_s", p.config.PublishInterval))
	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(250)
			p.log.Info("publisher stopped")
			return
		case <-ticker.C:
			if err := p.publish(); err != nil {
				p.log.Warn("publish failed", slog.Any("error", err))
			}
		}
	}
}

func (p *MQTTPublisher) summary() summaryMessage {
	st := p.state.Loop().Status()
	return summaryMessage{
		Timestamp: time.Now().Unix(),
		RunID:     st.RunID,
		State:     st.StateName,
		Window:    windowStats(p.state.Window().Snapshot(0)),
	}
}

func (p *MQTTPublisher) publish() error {
	if !p.client.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(p.summary())
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	token := p.client.Publish(p.config.Topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", p.config.Topic)
	}
	return token.Error()
}
