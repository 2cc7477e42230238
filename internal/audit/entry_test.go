package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	e := Entry{
		Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC),
		Type:      TypeOrder,
		Action:    "create_order",
		UserID:    "user123",
		IPAddress: "192.168.1.1",
		RequestID: "req-1",
		Details:   NewOrderedDetails().Set("symbol", "BTCUSDT").Set("side", "buy"),
	}

	line := e.MarshalNDJSON()
	require.True(t, line[len(line)-1] == '\n')

	parsed, err := ParseNDJSONLine(line[:len(line)-1])
	require.NoError(t, err)

	assert.True(t, e.Timestamp.Equal(parsed.Timestamp))
	assert.Equal(t, e.Type, parsed.Type)
	assert.Equal(t, e.Action, parsed.Action)
	assert.Equal(t, e.UserID, parsed.UserID)
	assert.Equal(t, e.IPAddress, parsed.IPAddress)
	assert.Equal(t, e.RequestID, parsed.RequestID)
	assert.Equal(t, []string{"symbol", "side"}, parsed.Details.Keys())
	v, ok := parsed.Details.Get("symbol")
	assert.True(t, ok)
	assert.Equal(t, "BTCUSDT", v)
}

func TestEntryOmitsAbsentFields(t *testing.T) {
	e := Entry{
		Timestamp: time.Now(),
		Type:      TypeAccess,
		Action:    "view",
		UserID:    "u1",
		IPAddress: "10.0.0.1",
	}
	line := string(e.MarshalNDJSON())
	assert.NotContains(t, line, "request_id")
	assert.NotContains(t, line, "details")
}

func TestEscaping(t *testing.T) {
	e := Entry{
		Timestamp: time.Now(),
		Type:      TypeError,
		Action:    "weird\tchars\n\"here\"",
		UserID:    "u",
		IPAddress: "0.0.0.0",
	}
	line := e.MarshalNDJSON()
	parsed, err := ParseNDJSONLine(line[:len(line)-1])
	require.NoError(t, err)
	assert.Equal(t, e.Action, parsed.Action)
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	raw := `{"timestamp":"2026-01-01T00:00:00Z","type":"auth","action":"login","user_id":"u","ip_address":"1.2.3.4","future_field":{"nested":true}}`
	parsed, err := ParseNDJSONLine([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "login", parsed.Action)
}

func TestSplitTrailingTruncated(t *testing.T) {
	complete := []byte(`{"a":1}` + "\n" + `{"b":2}` + "\n")
	assert.Equal(t, complete, SplitTrailingTruncated(complete))

	truncated := []byte(`{"a":1}` + "\n" + `{"b":2`)
	assert.Equal(t, []byte(`{"a":1}`+"\n"), SplitTrailingTruncated(truncated))

	assert.Nil(t, SplitTrailingTruncated([]byte(`{"a":1`)))
}
