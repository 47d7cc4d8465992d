// Package mqtt provides the bridge's MQTT client.
//
// It wraps paho.mqtt.golang with auto-reconnect, subscription restore
// after reconnect, panic-safe handlers and a Last Will that marks the
// bridge offline on the health topic if the process dies.
//
// Topic layout (see Topics):
//
//	graylogic/request/kasa/{channel}   callers -> bridge
//	graylogic/response/kasa/{channel}  bridge -> callers
//	graylogic/state/kasa/{address}     retained device snapshots
//	graylogic/health/kasa              retained bridge health + LWT
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{Topic: mqtt.Topics{}.Health(), Payload: lwt})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
