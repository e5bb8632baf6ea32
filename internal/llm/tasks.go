package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
	"github.com/kjstillabower/home-maintenance-service/internal/observability"
	"github.com/kjstillabower/home-maintenance-service/internal/prompt"
)

// ErrDisabled is returned when no model client is configured.
var ErrDisabled = errors.New("task generation disabled")

// ErrMalformedResponse is returned when the model output is not a task array.
var ErrMalformedResponse = errors.New("malformed model response")

// TaskGenerator asks the model for tasks and keeps only the valid ones.
type TaskGenerator struct {
	client   Client
	validate *validator.Validate
	clock    clockwork.Clock
	logger   *zap.Logger
	timeout  time.Duration
}

// NewTaskGenerator creates a TaskGenerator. A nil client yields a generator that always
// returns ErrDisabled.
func NewTaskGenerator(client Client, clock clockwork.Clock, logger *zap.Logger, timeout time.Duration) *TaskGenerator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TaskGenerator{
		client:   client,
		validate: validator.New(),
		clock:    clock,
		logger:   logger,
		timeout:  timeout,
	}
}

// Enabled reports whether a model client is configured.
func (g *TaskGenerator) Enabled() bool {
	return g != nil && g.client != nil
}

// Generate returns model-generated tasks for inv along with the prompt that was sent.
func (g *TaskGenerator) Generate(ctx context.Context, inv models.HomeInventory) ([]models.GeneratedTask, string, error) {
	text := prompt.Build(inv, g.clock.Now())
	if !g.Enabled() {
		return nil, text, ErrDisabled
	}
	logger := observability.LoggerFromContext(ctx, g.logger)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.client.GenerateJSON(callCtx, text)
	observability.LLMRequestDurationSec.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.LLMRequestsTotal.WithLabelValues("error").Inc()
		return nil, text, fmt.Errorf("generate tasks: %w", err)
	}

	candidates, err := decodeTasks(raw)
	if err != nil {
		observability.LLMRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, text, err
	}
	observability.LLMRequestsTotal.WithLabelValues("success").Inc()

	tasks := make([]models.GeneratedTask, 0, len(candidates))
	for i, task := range candidates {
		normalizeTask(&task)
		if err := g.validate.Struct(task); err != nil {
			observability.LLMTasksDroppedTotal.Inc()
			logger.Warn("dropping invalid generated task",
				zap.Int("index", i),
				zap.String("name", task.Name),
				zap.Error(err),
			)
			continue
		}
		tasks = append(tasks, task)
	}
	logger.Info("generated maintenance tasks",
		zap.Int("returned", len(candidates)),
		zap.Int("kept", len(tasks)),
	)
	return tasks, text, nil
}

// decodeTasks accepts a bare array or an object wrapping it under "tasks".
func decodeTasks(raw string) ([]models.GeneratedTask, error) {
	raw = cleanJSONBlock(raw)
	var tasks []models.GeneratedTask
	if err := json.Unmarshal([]byte(raw), &tasks); err == nil {
		return tasks, nil
	}
	var wrapped struct {
		Tasks []models.GeneratedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wrapped.Tasks == nil {
		return nil, fmt.Errorf("%w: no task array", ErrMalformedResponse)
	}
	return wrapped.Tasks, nil
}

func normalizeTask(t *models.GeneratedTask) {
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)
	t.Category = models.TaskCategory(strings.ToUpper(strings.TrimSpace(string(t.Category))))
	t.Frequency = models.TaskFrequency(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(string(t.Frequency)), "-", "_")))
	t.Priority = models.Priority(strings.ToLower(strings.TrimSpace(string(t.Priority))))
	t.NextDueDate = strings.TrimSpace(t.NextDueDate)
}
