package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyJob struct {
	failures int32
	calls    atomic.Int32
	got      atomic.Value
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "test.flaky" }

func (j *flakyJob) Handle(_ context.Context, payload interface{}) error {
	n := j.calls.Add(1)
	if n <= j.failures {
		return errors.New("transient")
	}
	p, err := ParsePayload[testPayload](payload)
	if err != nil {
		return err
	}
	j.got.Store(p.Name)
	return nil
}

type testPayload struct {
	Name string `json:"name"`
}

func TestMemoryQueueRetries(t *testing.T) {
	job := &flakyJob{failures: 2}
	q := NewMemoryQueue(nil, &Config{Workers: 1, RetryLimit: 3, RetryDelay: time.Millisecond}, job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "test.flaky", testPayload{Name: "spy"}))
	assert.Eventually(t, func() bool { return job.got.Load() == "spy" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), job.calls.Load())
}

func TestMemoryQueueRejects(t *testing.T) {
	q := NewMemoryQueue(nil, nil, &flakyJob{})
	require.NoError(t, q.Start())
	assert.Error(t, q.PublishMessage(context.Background(), "unknown", nil))

	require.NoError(t, q.Stop(context.Background()))
	assert.Error(t, q.PublishMessage(context.Background(), "test.flaky", nil))
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[testPayload](map[string]interface{}{"name": "qqq"})
	require.NoError(t, err)
	assert.Equal(t, "qqq", p.Name)

	_, err = ParsePayload[testPayload](42)
	assert.Error(t, err)
}
