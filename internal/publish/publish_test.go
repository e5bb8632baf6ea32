package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var generatedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleBatch(homeID string) Batch {
	return Batch{
		HomeID:      homeID,
		ZipCode:     "33101",
		GeneratedAt: generatedAt,
		ComplianceTasks: []models.ComplianceTask{
			{Name: "Smoke detector test", Category: models.CategorySafety, Priority: models.PriorityHigh},
		},
		GeneratedTasks: []models.GeneratedTask{
			{Name: "Replace AC filter", Category: models.CategoryHVAC, Priority: models.PriorityMedium},
		},
	}
}

func TestBuildMessages(t *testing.T) {
	msgs, err := BuildMessages("batch-1", sampleBatch("home-7"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for _, m := range msgs {
		assert.Equal(t, []byte("home-7"), m.Key)
		require.Len(t, m.Headers, 2)
		assert.Equal(t, "zip_code", m.Headers[0].Key)
		assert.Equal(t, []byte("33101"), m.Headers[0].Value)
		assert.Equal(t, "generated_at", m.Headers[1].Key)
		assert.Equal(t, []byte(generatedAt.Format(time.RFC3339)), m.Headers[1].Value)
	}

	var first TaskMessage
	require.NoError(t, json.Unmarshal(msgs[0].Value, &first))
	assert.Equal(t, "batch-1", first.BatchID)
	assert.Equal(t, OriginCompliance, first.Origin)
	assert.Contains(t, string(first.Task), `"name":"Smoke detector test"`)

	var second TaskMessage
	require.NoError(t, json.Unmarshal(msgs[1].Value, &second))
	assert.Equal(t, OriginGenerated, second.Origin)
}

func TestBuildMessages_KeyFallsBackToZip(t *testing.T) {
	msgs, err := BuildMessages("b", sampleBatch(""))
	require.NoError(t, err)
	assert.Equal(t, []byte("33101"), msgs[0].Key)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, nil)
	before := testutil.ToFloat64(observability.TaskPublishTotal.WithLabelValues("success"))

	p.Publish(context.Background(), sampleBatch("home-7"))

	assert.Len(t, w.msgs, 2)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.TaskPublishTotal.WithLabelValues("success")))

	var a, b TaskMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &a))
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &b))
	assert.NotEmpty(t, a.BatchID)
	assert.Equal(t, a.BatchID, b.BatchID)
}

func TestKafkaPublisher_EmptyBatchSkipped(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, nil)
	p.Publish(context.Background(), Batch{ZipCode: "33101"})
	assert.Empty(t, w.msgs)
}

func TestKafkaPublisher_FailureNotPropagated(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w, time.Second, nil)
	before := testutil.ToFloat64(observability.TaskPublishTotal.WithLabelValues("error"))

	assert.NotPanics(t, func() { p.Publish(context.Background(), sampleBatch("home-7")) })
	assert.Equal(t, before+1, testutil.ToFloat64(observability.TaskPublishTotal.WithLabelValues("error")))
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, 0, nil)
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	p.Publish(context.Background(), sampleBatch("x"))
	assert.NoError(t, p.Close())
}
