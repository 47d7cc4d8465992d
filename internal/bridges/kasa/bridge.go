package kasa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-kasa/internal/command"
	"github.com/nerrad567/gray-logic-kasa/internal/device"
	"github.com/nerrad567/gray-logic-kasa/internal/dispatch"
	"github.com/nerrad567/gray-logic-kasa/internal/infrastructure/mqtt"
)

// requestQoS is the subscription QoS for request topics.
const requestQoS = 1

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dispatcher is the part of *dispatch.Dispatcher the bridge uses.
type Dispatcher interface {
	command.Dispatcher
	Stats() dispatch.Stats
	Registry() *device.Registry
}

// Bridge turns MQTT request messages into dispatch operations and reports
// bridge health.
//
// Message flow:
//
//	caller → graylogic/request/kasa/{channel} → Bridge → Dispatcher queue
//	worker → Publisher → graylogic/response/kasa/{channel} → caller
//
// The bridge never touches devices itself. Requests it cannot accept are
// answered at once with a failure response on the same channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - handleRequest runs on paho goroutines and only validates and enqueues.
type Bridge struct {
	mqtt       MQTTClient
	dispatcher Dispatcher
	publisher  *Publisher
	health     *HealthReporter
	topics     mqtt.Topics

	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is the software version reported in health messages.
	Version string

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Dispatcher receives the requests.
	Dispatcher Dispatcher

	// Publisher sends immediate failure responses. If nil, one is created
	// from MQTTClient with QoS.
	Publisher *Publisher

	// QoS is used for responses when Publisher is nil.
	QoS byte

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
//
// Parameters:
//   - opts: Bridge configuration; MQTTClient and Dispatcher are required
//
// Returns:
//   - *Bridge: Configured bridge, not yet subscribed. Call Start() to begin.
//   - error: ErrNoMQTTClient or ErrNoDispatcher
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, ErrNoMQTTClient
	}
	if opts.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = NewPublisher(opts.MQTTClient, opts.QoS)
	}

	b := &Bridge{
		mqtt:       opts.MQTTClient,
		dispatcher: opts.Dispatcher,
		publisher:  publisher,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to request topics and starts health reporting.
//
// It performs the following:
//  1. Publishes a "starting" health status
//  2. Subscribes to graylogic/request/kasa/#
//  3. Starts the periodic health reporter
//  4. Publishes the first "healthy" status
//
// Parameters:
//   - ctx: Lifetime of the health reporter
//
// Returns:
//   - error: If the request subscription fails
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topic := b.topics.AllRequests()
	if err := b.mqtt.Subscribe(topic, requestQoS, b.handleRequest); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", topic)

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started", "devices", b.DeviceCount())
	return nil
}

// Stop stops health reporting, publishing a final "stopping" status.
// The dispatcher is shut down separately by its owner.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// PublishHealth publishes the current health immediately, for example
// after a reconnect.
func (b *Bridge) PublishHealth() error {
	return b.health.PublishNow()
}

// Stats returns the dispatcher statistics.
func (b *Bridge) Stats() dispatch.Stats {
	return b.dispatcher.Stats()
}

// DeviceCount returns the number of registered devices.
func (b *Bridge) DeviceCount() int {
	return b.dispatcher.Registry().Len()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// handleRequest processes a message on graylogic/request/kasa/{channel}.
// Every request that names a channel gets a response: the dispatcher
// sends it later, or the bridge sends a failure now.
func (b *Bridge) handleRequest(topic string, payload []byte) error {
	channel, ok := mqtt.ChannelFromRequestTopic(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	msg, err := ParseRequestMessage(payload)
	if err != nil {
		b.reject(channel, RequestMessage{}, dispatch.CodeInvalidParameters, fmt.Sprintf("malformed request: %v", err))
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	req := command.Request{
		RequestID:  msg.RequestID,
		Channel:    channel,
		Action:     msg.Action,
		Address:    msg.Address,
		Parameters: msg.Parameters,
	}

	jobID, err := command.Submit(b.dispatcher, req)
	switch {
	case err == nil:
		b.logDebug("request accepted",
			"channel", channel,
			"request_id", msg.RequestID,
			"action", msg.Action,
			"job_id", jobID)
		return nil
	case errors.Is(err, dispatch.ErrStopped):
		b.reject(channel, msg, dispatch.CodeDispatcherStopped, err.Error())
		return nil
	case command.IsValidationError(err):
		b.reject(channel, msg, dispatch.CodeInvalidParameters, err.Error())
		return nil
	default:
		b.reject(channel, msg, dispatch.CodeInternalError, err.Error())
		return err
	}
}

// reject publishes an immediate failure response for a request the
// dispatcher never accepted.
func (b *Bridge) reject(channel string, msg RequestMessage, code dispatch.ErrorCode, message string) {
	resp := dispatch.Failure(dispatch.Token{RequestID: msg.RequestID, Channel: channel}, msg.Action, msg.Address, code, message)

	b.logWarn("request rejected",
		"channel", channel,
		"request_id", msg.RequestID,
		"action", msg.Action,
		"code", code,
		"reason", message)

	if err := b.publisher.Notify(context.Background(), channel, resp); err != nil {
		b.logError("failed to publish rejection", err)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
