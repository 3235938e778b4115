// Package wire defines the JSON envelopes exchanged between the hub and its
// validators over the persistent websocket session.
//
// Every frame is an Envelope {type, data}. The hub and validator use the same
// type tag for a request and its reply: a validator sends "signup" and the hub
// answers with a "signup" ack; the hub sends a "validate" job and the validator
// answers with a "validate" result.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType tags an envelope.
type MessageType string

const (
	TypeSignup   MessageType = "signup"
	TypeValidate MessageType = "validate"
)

// Status is the outcome of one probe.
type Status string

const (
	StatusGood Status = "Good"
	StatusBad  Status = "Bad"
)

// LatencyUnknown is reported when a probe failed before any response arrived
// for a reason other than the timeout ceiling.
const LatencyUnknown int64 = -1

// ErrMalformed is returned for frames that are not a well formed envelope.
var ErrMalformed = errors.New("malformed message")

// Envelope is the outer frame of every message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SignupRequest is sent by a validator right after the session opens.
type SignupRequest struct {
	CallbackID    string `json:"callbackId"`
	IP            string `json:"ip"`
	PublicKey     string `json:"publicKey"`
	SignedMessage string `json:"signedMessage"`
	Version       string `json:"version"`
}

// SignupAck is the hub's reply to a SignupRequest.
type SignupAck struct {
	CallbackID  string `json:"callbackId"`
	ValidatorID string `json:"validatorId"`
}

// ValidateRequest is a hub-issued job to probe one URL.
type ValidateRequest struct {
	URL        string `json:"url"`
	CallbackID string `json:"callbackId"`
	WebsiteID  string `json:"websiteId"`
}

// ValidateResult is the validator's signed answer to a ValidateRequest.
type ValidateResult struct {
	CallbackID    string    `json:"callbackId"`
	Status        Status    `json:"status"`
	Latency       int64     `json:"latency"`
	WebsiteID     string    `json:"websiteId"`
	ValidatorID   string    `json:"validatorId"`
	SignedMessage string    `json:"signedMessage"`
	Timestamp     time.Time `json:"timestamp"`
	Error         string    `json:"error,omitempty"`
}

// Failed reports whether the result came from the error path and so carries
// an Error attestation instead of a Validation attestation.
func (r ValidateResult) Failed() bool {
	return r.Error != ""
}

// Encode wraps payload in an envelope of type t.
func Encode(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// Decode parses the outer envelope. The payload stays raw until Unmarshal.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Unmarshal decodes the envelope payload into v.
func (e Envelope) Unmarshal(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%w: empty %s payload", ErrMalformed, e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, e.Type, err)
	}
	return nil
}
