package apiclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Envelope is the upstream response shape. The marketplace service is not
// consistent across endpoints: some return a boolean success flag, some a
// string status marker, some only a payload. Envelope.OK normalizes all of
// them so call sites reason about a single boolean.
type Envelope struct {
	Success json.RawMessage `json:"success,omitempty"`
	Status  string          `json:"status,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var nullLiteral = []byte("null")

// OK reports whether the response indicates success. Accepted success
// signals, in order of precedence: an explicit boolean, a string marker
// ("success", "ok", "true"), a status field, or payload presence with no
// error field.
func (e *Envelope) OK() bool {
	if e == nil {
		return false
	}

	if e.Error != "" {
		return false
	}

	if len(e.Success) > 0 && !bytes.Equal(e.Success, nullLiteral) {
		var b bool
		if err := json.Unmarshal(e.Success, &b); err == nil {
			return b
		}

		var s string
		if err := json.Unmarshal(e.Success, &s); err == nil {
			return isSuccessMarker(s)
		}

		// Unrecognized shape in the success field; fall through to the
		// remaining signals.
	}

	if e.Status != "" {
		return isSuccessMarker(e.Status)
	}

	return e.HasData()
}

// HasData reports whether the envelope carries a non-null payload.
func (e *Envelope) HasData() bool {
	return e != nil && len(e.Data) > 0 && !bytes.Equal(e.Data, nullLiteral)
}

// DataInto unmarshals the payload into out. A missing payload leaves out
// untouched and returns nil.
func (e *Envelope) DataInto(out interface{}) error {
	if !e.HasData() {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// RemoteMessage returns the human-readable message or error string the
// upstream included, if any.
func (e *Envelope) RemoteMessage() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func isSuccessMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "ok", "true", "1":
		return true
	default:
		return false
	}
}
