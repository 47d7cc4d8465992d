// Package kasa connects the dispatch queue to MQTT.
//
// The Bridge subscribes to graylogic/request/kasa/# and turns each message
// into a dispatch operation. The channel is the topic suffix, so a caller
// publishing to graylogic/request/kasa/panel-1 receives its response on
// graylogic/response/kasa/panel-1.
//
// Publisher is the MQTT side of result delivery. It implements
// dispatch.Notifier (responses) and dispatch.SnapshotSink (retained
// per-device state on graylogic/state/kasa/{address}).
//
// The HealthReporter publishes a retained status message on
// graylogic/health/kasa at a fixed interval. WillMessage builds the
// matching Last Will so the broker marks the bridge offline if the
// connection drops.
package kasa
