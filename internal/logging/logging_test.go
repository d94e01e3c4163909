package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Service: "checkout-api", Out: log.New(&buf, "", 0)}

	l.Err(Fields{OrderID: "o-1", Step: "reconcile", Status: "stale"}, errors.New("stale transition"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, "checkout-api", got["service"])
	assert.Equal(t, "o-1", got["order_id"])
	assert.Equal(t, "stale", got["status"])
	assert.Equal(t, "stale transition", got["error"])
	assert.NotEmpty(t, got["timestamp"])
	assert.NotContains(t, got, "payment_id")
}

func TestLog_NilLoggerIsNoop(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Log(Fields{Message: "x"}) })
}
