// Package publish hands generated task batches to the downstream task store.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
)

// Task origins carried in each message.
const (
	OriginCompliance = "compliance"
	OriginGenerated  = "generated"
)

// Batch is one set of tasks produced for a home in a single pipeline run.
type Batch struct {
	HomeID          string
	ZipCode         string
	GeneratedAt     time.Time
	ComplianceTasks []models.ComplianceTask
	GeneratedTasks  []models.GeneratedTask
}

// Len returns the number of tasks in the batch.
func (b Batch) Len() int {
	return len(b.ComplianceTasks) + len(b.GeneratedTasks)
}

// TaskMessage is the JSON value of each published message.
type TaskMessage struct {
	BatchID     string          `json:"batchId"`
	HomeID      string          `json:"homeId,omitempty"`
	ZipCode     string          `json:"zipCode"`
	Origin      string          `json:"origin"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Task        json.RawMessage `json:"task"`
}

// Publisher delivers task batches. Delivery failures are logged by the implementation.
type Publisher interface {
	Publish(ctx context.Context, batch Batch)
	Close() error
}

// NoopPublisher discards batches. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Batch) {}

func (NoopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes one message per task to a Kafka topic.
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration
}

// NewKafkaPublisher creates a producer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: timeout,
	}
	return newKafkaPublisher(w, timeout, logger)
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{writer: w, logger: logger, timeout: timeout}
}

// Publish serializes and writes the batch in a single WriteMessages call.
// Messages are keyed by home ID, or by ZIP when the home is anonymous, so a
// home's tasks stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, batch Batch) {
	if batch.Len() == 0 {
		return
	}
	logger := observability.LoggerFromContext(ctx, p.logger)

	msgs, err := BuildMessages(uuid.NewString(), batch)
	if err != nil {
		observability.TaskPublishTotal.WithLabelValues("error").Inc()
		logger.Warn("failed to serialize task batch", zap.Error(err))
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msgs...); err != nil {
		observability.TaskPublishTotal.WithLabelValues("error").Inc()
		logger.Warn("failed to publish task batch",
			zap.String("zipCode", batch.ZipCode),
			zap.Int("tasks", len(msgs)),
			zap.Error(err),
		)
		return
	}
	observability.TaskPublishTotal.WithLabelValues("success").Inc()
	logger.Debug("published task batch",
		zap.String("zipCode", batch.ZipCode),
		zap.Int("tasks", len(msgs)),
	)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// BuildMessages converts a batch into Kafka messages sharing batchID.
func BuildMessages(batchID string, batch Batch) ([]kafkago.Message, error) {
	key := batch.HomeID
	if strings.TrimSpace(key) == "" {
		key = batch.ZipCode
	}
	generatedAt := batch.GeneratedAt.UTC().Format(time.RFC3339)
	headers := []kafkago.Header{
		{Key: "zip_code", Value: []byte(batch.ZipCode)},
		{Key: "generated_at", Value: []byte(generatedAt)},
	}

	msgs := make([]kafkago.Message, 0, batch.Len())
	add := func(origin string, task any) error {
		raw, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("serialize %s task: %w", origin, err)
		}
		value, err := json.Marshal(TaskMessage{
			BatchID:     batchID,
			HomeID:      batch.HomeID,
			ZipCode:     batch.ZipCode,
			Origin:      origin,
			GeneratedAt: batch.GeneratedAt.UTC(),
			Task:        raw,
		})
		if err != nil {
			return fmt.Errorf("serialize task message: %w", err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:     []byte(key),
			Value:   value,
			Headers: headers,
		})
		return nil
	}

	for _, t := range batch.ComplianceTasks {
		if err := add(OriginCompliance, t); err != nil {
			return nil, err
		}
	}
	for _, t := range batch.GeneratedTasks {
		if err := add(OriginGenerated, t); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}
