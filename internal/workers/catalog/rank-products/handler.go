package rankproducts

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/EditMuse/EditMuse-sub002/internal/common/config"
	"github.com/EditMuse/EditMuse-sub002/internal/common/errors"
	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
	"github.com/EditMuse/EditMuse-sub002/internal/common/metrics"
	"github.com/EditMuse/EditMuse-sub002/internal/common/observability"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const TaskType = "rank-products"

// Ranker is satisfied by *engine.Engine.
type Ranker interface {
	Rank(ctx context.Context, req models.RankingRequest) (models.RankingOutcome, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	ranker       Ranker
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig     *config.Config
	CustomConfig  *Config
	Ranker        Ranker
	Observability *observability.Observability
	Logger        logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := opts.CustomConfig
	if workerConfig == nil {
		workerConfig = ConfigFrom(opts.AppConfig)
	}
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Ranker == nil {
		return nil, fmt.Errorf("%s requires a ranker", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json", "stdout")
	}

	return &Handler{
		config:       workerConfig,
		logger:       log.With(map[string]interface{}{"worker": TaskType}),
		ranker:       opts.Ranker,
		obs:          opts.Observability,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing ranking job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.ParseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		h.fail(ctx, client, job, err, startTime)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.obs.RecordJobProcessed(ctx, "completed")
	h.obs.RecordJobDuration(ctx, time.Since(startTime), "completed")
}

// ParseInput validates the job variables against the input schema and
// decodes them into a ranking request.
func (h *Handler) ParseInput(job entities.Job) (*Input, error) {
	raw := job.GetVariables()
	if strings.TrimSpace(raw) == "" {
		return nil, errors.NewInvalidRankingRequestError("job has no variables")
	}

	result := inputSchema.ValidateJSON(raw)
	if !result.Valid {
		return nil, errors.NewInvalidRankingRequestError(
			fmt.Sprintf("validation errors: %v", result.GetErrorMessages()),
		)
	}

	input := &Input{}
	if err := json.Unmarshal([]byte(raw), input); err != nil {
		return nil, errors.NewInvalidRankingRequestError(err.Error())
	}
	return input, nil
}

// Execute ranks the request. Only caller errors surface here; every provider
// failure has already been absorbed into a fallback outcome.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	outcome, err := h.ranker.Rank(ctx, input.RankingRequest)
	if err != nil {
		if stderrors.Is(err, models.ErrInvalidRequest) {
			return nil, errors.NewInvalidRankingRequestError(err.Error())
		}
		return nil, err
	}

	h.logger.Debug("Ranking outcome ready", map[string]interface{}{
		"rankingId":     outcome.RankingID,
		"source":        outcome.Source,
		"selected":      len(outcome.SelectedHandles),
		"failureReason": outcome.FailureReason,
	})

	return &Output{
		SelectedHandles: outcome.SelectedHandles,
		Ranking:         outcome,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("create complete job command: %w", err)
	}

	if _, err := request.Send(ctx); err != nil {
		// The job will time out and be re-activated by the broker.
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return nil
	}

	h.logger.Info("Job completed", map[string]interface{}{
		"jobKey":    job.GetKey(),
		"rankingId": output.Ranking.RankingID,
		"source":    output.Ranking.Source,
	})
	return nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error, startTime time.Time) {
	stdErr := errors.Normalize(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJobProcessed(ctx, "failed")
	h.obs.RecordJobDuration(ctx, time.Since(startTime), "failed")
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}
