package bus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message subjects carried in the last topic segment.
const (
	SubjectConfig       = "config"
	SubjectHomegate     = "homegate"
	SubjectDevice       = "device"
	SubjectChannel      = "channel"
	SubjectNotification = "notification"
	SubjectRule         = "rule"
	SubjectCamera       = "camera"
	SubjectUser         = "user"
	SubjectRoom         = "room"
	SubjectInfo         = "info"
	SubjectDoorbell     = "doorbell"
)

// AudienceAll addresses every connected app on the local bus.
const AudienceAll = "all"

// Protocol error codes returned in error envelopes.
const (
	CodeInvalidRequest = 0
	CodeNotFound       = 1
	CodeMissingParam   = 2
)

// Envelope is the wire message shared by both buses. Value is left
// raw on the inbound path and decoded per action.
type Envelope struct {
	Action string          `json:"action"`
	Token  string          `json:"token"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
}

// Marshal builds an outbound envelope.
func Marshal(action, token, typ string, value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope value: %w", err)
	}
	payload, err := json.Marshal(Envelope{
		Action: action,
		Token:  token,
		Type:   typ,
		Value:  raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return payload, nil
}

// MarshalError builds an error envelope carrying a protocol code.
func MarshalError(token, typ string, code int) ([]byte, error) {
	return Marshal("error", token, typ, map[string]int{"code": code})
}

// Unmarshal decodes an inbound envelope.
func Unmarshal(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// LocalAddress is the parsed routing of a local-bus topic. Topics are
// parsed from the end so the root may itself contain slashes.
type LocalAddress struct {
	Direction string // "request" or "response"
	Audience  string // user id or AudienceAll
	Subject   string
}

// ParseLocalTopic extracts the routing segments of a local-bus topic
// of the form <root>/<direction>/<audience>/<subject>.
func ParseLocalTopic(topic string) (LocalAddress, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return LocalAddress{}, false
	}
	addr := LocalAddress{
		Direction: parts[len(parts)-3],
		Audience:  parts[len(parts)-2],
		Subject:   parts[len(parts)-1],
	}
	if addr.Direction != "request" && addr.Direction != "response" {
		return LocalAddress{}, false
	}
	if addr.Audience == "" || addr.Subject == "" {
		return LocalAddress{}, false
	}
	return addr, true
}

// LocalTopic builds a local-bus topic.
func LocalTopic(root, direction, audience, subject string) string {
	return root + "/" + direction + "/" + audience + "/" + subject
}

// CloudAddress is the parsed routing of a cloud-bus topic.
type CloudAddress struct {
	GatewayID string
	Direction string
	Subject   string
}

// ParseCloudTopic extracts the routing segments of a cloud-bus topic
// of the form <root>/<gateway_id>/<direction>/<subject>.
func ParseCloudTopic(topic string) (CloudAddress, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 {
		return CloudAddress{}, false
	}
	addr := CloudAddress{
		GatewayID: parts[len(parts)-3],
		Direction: parts[len(parts)-2],
		Subject:   parts[len(parts)-1],
	}
	if addr.Direction != "request" && addr.Direction != "response" {
		return CloudAddress{}, false
	}
	if addr.Subject == "" {
		return CloudAddress{}, false
	}
	return addr, true
}

// CloudTopic builds a cloud-bus topic.
func CloudTopic(root, gatewayID, direction, subject string) string {
	return root + "/" + gatewayID + "/" + direction + "/" + subject
}
