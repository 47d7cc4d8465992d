package kasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/mqtt"
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client implements it; tests use a mock.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Publisher delivers responses and device state over MQTT.
type Publisher struct {
	client MQTTClient
	qos    byte
	topics mqtt.Topics
}

var (
	_ dispatch.Notifier     = (*Publisher)(nil)
	_ dispatch.SnapshotSink = (*Publisher)(nil)
)

// NewPublisher creates a publisher that sends with the given QoS.
func NewPublisher(client MQTTClient, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos}
}

// Notify publishes resp to the response topic of channel. Responses are
// not retained.
func (p *Publisher) Notify(_ context.Context, channel string, resp dispatch.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response %d: %w", resp.RequestID, err)
	}
	if err := p.client.Publish(p.topics.Response(channel), payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing response %d to %s: %w", resp.RequestID, channel, err)
	}
	return nil
}

// StoreSnapshots publishes each snapshot, retained, on its device state topic.
func (p *Publisher) StoreSnapshots(_ context.Context, snaps []device.Snapshot) error {
	var errs []error
	for _, snap := range snaps {
		msg := StateMessage{
			Address:   snap.Address,
			Timestamp: time.Now().UTC(),
			Snapshot:  snap,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding state for %s: %w", snap.Address, err))
			continue
		}
		if err := p.client.Publish(p.topics.State(snap.Address), payload, p.qos, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing state for %s: %w", snap.Address, err))
		}
	}
	return errors.Join(errs...)
}
