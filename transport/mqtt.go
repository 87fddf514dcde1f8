package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// eventQoS is at-least-once: subscribers tolerate duplicate change events
// because invalidation is idempotent.
const eventQoS byte = 1

// MQTTTransport publishes robot change events on an MQTT client whose
// lifecycle is owned by the caller.
type MQTTTransport struct {
	client  mqtt.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewMQTTTransport(client mqtt.Client, timeout time.Duration, logger *slog.Logger) *MQTTTransport {
	return &MQTTTransport{
		client:  client,
		timeout: timeout,
		logger:  logger.With("transport_type", "mqtt"),
	}
}

// Send publishes payload on topic and waits for the broker ack, the
// publish timeout or ctx.
func (mt *MQTTTransport) Send(ctx context.Context, topic string, payload []byte) error {
	if !mt.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	logger := mt.logger.With("topic", topic)
	logger.Debug("Publishing event", "payload_size", len(payload))

	token := mt.client.Publish(topic, eventQoS, false, payload)

	timer := time.NewTimer(mt.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("MQTT publish cancelled: %w", ctx.Err())
	case <-timer.C:
		return fmt.Errorf("MQTT publish timed out after %v", mt.timeout)
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("MQTT publish failed: %w", err)
		}
	}
	return nil
}

func (mt *MQTTTransport) GetTransportType() TransportType {
	return TransportTypeMQTT
}

// Close is a no-op; main disconnects the client.
func (mt *MQTTTransport) Close() error {
	return nil
}
