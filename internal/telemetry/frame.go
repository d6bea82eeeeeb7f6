//
//
package telemetry

import (
	"encoding/json"
	"time"
)

// Topic names one of the channels carried over the real-time connection.
type Topic string

const (
	TopicTelemetry        Topic = "telemetry"
	TopicTestComplete     Topic = "test-complete"
	TopicAlarmRaised      Topic = "alarm-raised"
	TopicConnectionStatus Topic = "connection-status"
)

// Topics lists every topic in the closed set.
var Topics = []Topic{
	TopicTelemetry,
	TopicTestComplete,
	TopicAlarmRaised,
	TopicConnectionStatus,
}

// Valid reports whether t is part of the closed topic set.
func (t Topic) Valid() bool {
	switch t {
	case TopicTelemetry, TopicTestComplete, TopicAlarmRaised, TopicConnectionStatus:
		return true
	}
	return false
}

// Backend event names.
const (
	EventLiveData         = "live_data"
	EventTestComplete     = "test_complete"
	EventAlarm            = "alarm"
	EventConnectionStatus = "connection_status"
	EventJogResponse      = "jog_response"
	EventJogSpeedResponse = "jog_speed_response"

	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventJogForward  = "jog_forward"
	EventJogBackward = "jog_backward"
	EventSetJogSpeed = "set_jog_speed"
)

var eventTopics = map[string]Topic{
	EventLiveData:         TopicTelemetry,
	EventTestComplete:     TopicTestComplete,
	EventAlarm:            TopicAlarmRaised,
	EventConnectionStatus: TopicConnectionStatus,
}

// TopicForEvent maps a backend event name onto its topic.
func TopicForEvent(event string) (Topic, bool) {
	t, ok := eventTopics[event]
	return t, ok
}

// Envelope is the JSON shape of every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Frame is one inbound message routed to a topic.
type Frame struct {
	Topic    Topic
	Seq      uint64 // monotonic per topic, starting at 1
	Payload  json.RawMessage
	Received time.Time
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Payload, v)
}

// Listener receives frames for one topic.
type Listener func(Frame)

// ConnectionStatus is the payload of connection-status frames.
type ConnectionStatus struct {
	Connected bool `json:"connected"`
}

// Alarm is the payload of alarm-raised frames.
type Alarm struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
}

// JogState is the payload of jog_forward and jog_backward.
type JogState struct {
	State bool `json:"state"`
}

// JogSpeed is the payload of set_jog_speed.
type JogSpeed struct {
	Velocity float64 `json:"velocity"`
}
