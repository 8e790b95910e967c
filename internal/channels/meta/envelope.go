// Package meta holds the pieces shared by every Meta Graph webhook and API
// integration: the entry/changes envelope, the subscription handshake, the
// payload signature, and the Graph HTTP client.
package meta

import (
	"encoding/json"
	"fmt"
)

// Envelope is the top-level body of every Meta webhook delivery. Change
// values stay raw so each integration decodes its own field shape.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one business account or page.
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time,omitempty"`
	Changes []Change `json:"changes"`
}

// Change is one notification inside an entry.
type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// ParseEnvelope decodes a delivery body.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("meta: decode envelope: %w", err)
	}
	return env, nil
}

// Verify answers the GET subscription handshake. It accepts only
// mode "subscribe" with the pre-shared token and echoes the challenge.
func Verify(mode, token, challenge, expectedToken string) (string, bool) {
	if expectedToken == "" || mode != "subscribe" || token != expectedToken {
		return "", false
	}
	return challenge, true
}
