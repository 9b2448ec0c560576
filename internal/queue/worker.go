package queue

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/ai"
	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
)

type DocumentValuator interface {
	ValuateDocument(ctx context.Context, resumeID uint, doc ai.Document) (*market.Valuation, error)
}

// Worker turns queued documents into valuations.
type Worker struct {
	valuator DocumentValuator
	logger   *zap.Logger
}

func NewWorker(valuator DocumentValuator, log *zap.Logger) *Worker {
	return &Worker{valuator: valuator, logger: logger.WithFields(log, zap.String("component", "worker"))}
}

func (w *Worker) Handle(ctx context.Context, job ValuationJob) error {
	log := logger.WithActor(w.logger, 0, "", job.RequestID).With(
		zap.String("job_id", job.ID),
		zap.Uint("resume_id", job.ResumeID),
	)
	log.Info("processing valuation job", zap.String("document", job.Name))

	if job.ResumeID == 0 || len(job.Data) == 0 {
		return Permanent(market.ErrInvalidInput)
	}

	v, err := w.valuator.ValuateDocument(ctx, job.ResumeID, job.Document())
	if err != nil {
		var nf *market.NotFoundError
		if errors.As(err, &nf) {
			return Permanent(err)
		}
		return err
	}

	log.Info("valuation job done", zap.String("total_point", v.TotalPoint.String()))
	return nil
}
