package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Kasa bridge.
//
// All topics use the flat bridge scheme: graylogic/{category}/kasa/{suffix}
// where suffix is a caller channel, a device address, or empty for health.
const (
	TopicPrefix = "graylogic"
	Protocol    = "kasa"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps intake, responses and state on one scheme.
//
//	topics := mqtt.Topics{}
//	respTopic := topics.Response("ui-panel-1")
//	// Returns: "graylogic/response/kasa/ui-panel-1"
type Topics struct{}

// =============================================================================
// Channel Topics
// =============================================================================

// Request returns the topic callers publish requests on for channel.
//
// Example: graylogic/request/kasa/ui-panel-1
func (Topics) Request(channel string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, Protocol, channel)
}

// Response returns the topic responses for channel are delivered on.
//
// Example: graylogic/response/kasa/ui-panel-1
func (Topics) Response(channel string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, Protocol, channel)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// State returns the retained last-known snapshot topic for a device.
//
// Example: graylogic/state/kasa/192.168.1.20
func (Topics) State(address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, address)
}

// Health returns the retained bridge health topic, also used for the LWT.
//
// Example: graylogic/health/kasa
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllRequests returns the wildcard matching requests on every channel.
//
// Example: graylogic/request/kasa/#
func (Topics) AllRequests() string {
	return fmt.Sprintf("%s/request/%s/#", TopicPrefix, Protocol)
}

// ChannelFromRequestTopic extracts the channel from a request topic.
// The channel may itself contain slashes. ok is false for foreign topics
// or an empty channel.
func ChannelFromRequestTopic(topic string) (channel string, ok bool) {
	prefix := fmt.Sprintf("%s/request/%s/", TopicPrefix, Protocol)
	channel, found := strings.CutPrefix(topic, prefix)
	if !found || channel == "" {
		return "", false
	}
	return channel, true
}
