package apiclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeOKLeniency(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"boolean true", `{"success": true}`, true},
		{"boolean false", `{"success": false}`, false},
		{"string success", `{"success": "success"}`, true},
		{"string ok", `{"success": "ok"}`, true},
		{"string true", `{"success": "true"}`, true},
		{"string failed", `{"success": "failed"}`, false},
		{"status success", `{"status": "success", "data": {"id": 1}}`, true},
		{"status error", `{"status": "error"}`, false},
		{"payload no error", `{"data": {"id": 1}}`, true},
		{"payload with error", `{"data": {"id": 1}, "error": "broken"}`, false},
		{"error only", `{"error": "broken"}`, false},
		{"empty object", `{}`, false},
		{"null payload", `{"data": null}`, false},
		{"null success with payload", `{"success": null, "data": [1,2]}`, true},
		{"message does not imply success", `{"message": "hello"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.body), &env))
			assert.Equal(t, tt.ok, env.OK())
		})
	}
}

func TestEnvelopeOKNil(t *testing.T) {
	var env *Envelope
	assert.False(t, env.OK())
	assert.False(t, env.HasData())
	assert.Empty(t, env.RemoteMessage())
}

func TestEnvelopeDataInto(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"success": true, "data": {"id": 7, "name": "cert"}}`), &env))

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, env.DataInto(&out))
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, "cert", out.Name)
}

func TestEnvelopeDataIntoMissingPayload(t *testing.T) {
	env := Envelope{}
	out := map[string]int{"untouched": 1}
	require.NoError(t, env.DataInto(&out))
	assert.Equal(t, 1, out["untouched"])
}

func TestEnvelopeRemoteMessagePrecedence(t *testing.T) {
	env := Envelope{Message: "saved", Error: "broken"}
	assert.Equal(t, "saved", env.RemoteMessage())

	env = Envelope{Error: "broken"}
	assert.Equal(t, "broken", env.RemoteMessage())
}
