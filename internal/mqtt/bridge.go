// Package mqtt bridges the node's event bus to an MQTT broker: events and
// value changes are published under a topic prefix, and set-topics write
// device values.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-node/internal/node"
	"zigbee-node/internal/zcl"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	ClientID    string
}

// Bridge connects the node to MQTT.
type Bridge struct {
	client pahomqtt.Client
	node   *node.Node
	prefix string
	logger *slog.Logger
	unsub  func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(n *node.Node, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "zigbee-node"
	}
	b := &Bridge{
		node:   n,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(stateTopic(cfg.TopicPrefix), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publish(stateTopic(b.prefix), []byte("online"), true)
			b.subscribeSet()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to node events and begins publishing.
func (b *Bridge) Start() {
	b.unsub = b.node.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(stateTopic(b.prefix), []byte("offline"), true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event node.Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Error("marshal event", "type", event.Type, "err", err)
		return
	}
	b.publish(eventTopic(b.prefix, event.Type), payload, false)

	if event.Type == node.EventValueChange {
		if key, value, ok := changedValue(event); ok {
			data, err := json.Marshal(value)
			if err != nil {
				return
			}
			b.publish(valueTopic(b.prefix, key), data, true)
		}
	}
}

func (b *Bridge) subscribeSet() {
	topic := b.prefix + "/set/#"
	token := b.client.Subscribe(topic, 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleSet(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		b.logger.Warn("subscribe timeout", "topic", topic)
	}
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	key, ok := setKey(b.prefix, topic)
	if !ok {
		return
	}
	value, err := decodeSetPayload(payload)
	if err != nil {
		b.logger.Warn("bad set payload", "topic", topic, "err", err)
		return
	}
	b.logger.Debug("value set via MQTT", "key", key, "value", value)
	b.node.Values().Store(zcl.Key(key), value)
}

func (b *Bridge) publish(topic string, payload []byte, retain bool) {
	token := b.client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(5 * time.Second) {
		b.logger.Warn("publish timeout", "topic", topic)
	}
}

func stateTopic(prefix string) string { return prefix + "/bridge/state" }

func eventTopic(prefix, eventType string) string { return prefix + "/event/" + eventType }

func valueTopic(prefix, key string) string { return prefix + "/values/" + key }

// setKey extracts the value key from a set topic, rejecting foreign topics.
func setKey(prefix, topic string) (string, bool) {
	key := strings.TrimPrefix(topic, prefix+"/set/")
	if key == topic || key == "" {
		return "", false
	}
	return key, true
}

// decodeSetPayload accepts JSON values and falls back to the raw string.
func decodeSetPayload(payload []byte) (any, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload), nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("composite set payloads not supported")
	}
	return v, nil
}

func changedValue(event node.Event) (string, any, bool) {
	data, ok := event.Data.(map[string]any)
	if !ok {
		return "", nil, false
	}
	key, ok := data["key"].(zcl.Key)
	if !ok {
		return "", nil, false
	}
	return string(key), data["value"], true
}
