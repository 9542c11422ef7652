package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsRoundTrip(t *testing.T) {
	body, _ := json.Marshal(testPayload{Name: "spy"})
	ts := time.UnixMilli(1700000000123)
	msg := Message{ID: "m1", Type: "test.flaky", Payload: json.RawMessage(body), Attempts: 2, Timestamp: ts}

	fields := encodeFields(msg, errors.New("boom"))
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "2", fields["attempts"])

	got, err := decodeFields(fields)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, ts.Equal(got.Timestamp))

	p, err := ParsePayload[testPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "spy", p.Name)
}

func TestDecodeFieldsRejectsBrokenEntries(t *testing.T) {
	_, err := decodeFields(map[string]interface{}{"id": "x"})
	assert.Error(t, err)

	_, err = decodeFields(map[string]interface{}{"type": "t", "attempts": "many"})
	assert.Error(t, err)
}

func TestEncodeFieldsMarshalsPlainPayloads(t *testing.T) {
	fields := encodeFields(Message{Type: "t", Payload: map[string]int{"n": 1}}, nil)
	assert.JSONEq(t, `{"n":1}`, fields["payload"].(string))
	assert.NotContains(t, fields, "error")
}

func TestRedisQueueKeys(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, WithKeyPrefix("ql:queue"))
	assert.Equal(t, "ql:queue:jobs", q.streamKey())
	assert.Equal(t, "ql:queue:delayed", q.delayedKey())
	assert.Equal(t, "ql:queue:dead", q.deadKey())
	assert.Equal(t, 1, q.config.Workers)
	assert.Error(t, q.PublishMessage(context.Background(), "t", nil))
}
