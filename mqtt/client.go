package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"robot-console/config"
	"robot-console/models"
	"robot-console/transport"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the PAHO MQTT client.
type Client struct {
	client mqtt.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler
}

// NewClient creates and connects a new MQTT client.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	mqttClient := &Client{
		logger: logger.With("component", "mqtt_client"),
		subs:   make(map[string]mqtt.MessageHandler),
	}

	opts.SetOnConnectHandler(mqttClient.onConnect)
	opts.SetConnectionLostHandler(mqttClient.onConnectionLost)
	client := mqtt.NewClient(opts)
	mqttClient.client = client

	if token := client.Connect(); token.WaitTimeout(cfg.Timeout) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	if !client.IsConnectionOpen() {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.MQTTBroker)
	}
	return mqttClient, nil
}

// GetClient returns the underlying PAHO MQTT client.
func (c *Client) GetClient() mqtt.Client {
	return c.client
}

// Disconnect gracefully disconnects the client.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("MQTT Client disconnected")
	}
}

// Subscribe registers handler for topic. Subscriptions are restored on reconnect.
func (c *Client) Subscribe(topic string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		c.logger.Error("Failed to subscribe to topic", "topic", topic, slog.Any("error", token.Error()))
		return token.Error()
	}
	c.logger.Info("Successfully subscribed to topic", "topic", topic)
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("Successfully connected to MQTT broker")

	c.mu.Lock()
	subs := make(map[string]mqtt.MessageHandler, len(c.subs))
	for topic, handler := range c.subs {
		subs[topic] = handler
	}
	c.mu.Unlock()

	for topic, handler := range subs {
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to resubscribe", "topic", topic, slog.Any("error", token.Error()))
		}
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Error("Connection lost. Reconnecting...", slog.Any("error", err))
}

// =======================================================================
// ROBOT EVENTS
// =======================================================================

// EventTopic returns the topic a robot event is published on:
// {prefix}/robots/{id}/{event}.
func EventTopic(prefix string, robotID int64, event models.RobotEventType) string {
	return fmt.Sprintf("%s/robots/%d/%s", strings.TrimRight(prefix, "/"), robotID, event)
}

// EventWildcard matches every robot event below prefix.
func EventWildcard(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/robots/+/+"
}

// EventPublisher publishes robot change events through a message transport.
type EventPublisher struct {
	transport transport.MessageTransport
	prefix    string
	logger    *slog.Logger
}

func NewEventPublisher(t transport.MessageTransport, prefix string, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		transport: t,
		prefix:    prefix,
		logger:    logger.With("component", "event_publisher"),
	}
}

// PublishRobotEvent sends event to its robot topic.
func (p *EventPublisher) PublishRobotEvent(ctx context.Context, event models.RobotEvent) error {
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal robot event: %w", err)
	}
	topic := EventTopic(p.prefix, event.RobotID, event.Event)
	if err := p.transport.Send(ctx, topic, payload); err != nil {
		return err
	}
	p.logger.Info("Robot event published", "topic", topic, "robot_id", event.RobotID, "event", event.Event)
	return nil
}

// RobotEventHandler adapts a typed callback to an MQTT message handler.
// Malformed payloads are logged and dropped.
func RobotEventHandler(logger *slog.Logger, fn func(models.RobotEvent)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		event, err := models.ParseRobotEvent(msg.Payload())
		if err != nil {
			logger.Warn("Dropping malformed robot event", "topic", msg.Topic(), slog.Any("error", err))
			return
		}
		fn(event)
	}
}

// Ping reports whether the broker connection is up.
func (c *Client) Ping(_ context.Context) error {
	if !c.client.IsConnectionOpen() {
		return errors.New("MQTT connection is down")
	}
	return nil
}
