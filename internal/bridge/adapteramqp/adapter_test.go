package adapteramqp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeCommandMarshaling(t *testing.T) {
	cmd := tradeCommand{
		Command:  "submit_order",
		ClientID: "order-1",
		Symbol:   "BTCUSDT",
		Side:     "buy",
		Quantity: 1.5,
		Price:    50000,
	}
	body, err := json.Marshal(cmd)
	require.NoError(t, err)

	var decoded tradeCommand
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, cmd, decoded)
}

func TestOrderUpdateMessageUnmarshal(t *testing.T) {
	raw := `{"client_id":"order-1","order_id":"eng-1","symbol":"BTCUSDT","side":"buy","quantity":1.5,"price":50000,"status":"accepted"}`
	var msg orderUpdateMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "order-1", msg.ClientID)
	assert.Equal(t, "accepted", msg.Status)
}
