package service

import (
	"context"
	"time"

	"github.com/smallbiznis/officeflow/internal/config"
	obsmetrics "github.com/smallbiznis/officeflow/internal/observability/metrics"
	"github.com/smallbiznis/officeflow/internal/serial/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	loc     *time.Location
	log     *zap.Logger
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Generator {
	return &Service{
		loc:     p.Cfg.BusinessLocation(),
		log:     p.Log.Named("serial.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Next reserves the next sequence for the business day of at and formats it.
// The reservation belongs to tx: if tx rolls back, so does the reservation.
func (s *Service) Next(ctx context.Context, tx *gorm.DB, documentType domain.DocumentType, at time.Time) (string, error) {
	if tx == nil {
		return "", domain.ErrTransactionRequired
	}
	if _, ok := documentType.Prefix(); !ok {
		return "", domain.ErrUnknownDocumentType
	}

	businessDate := domain.BusinessDate(at, s.loc)
	started := time.Now()
	seq, err := s.repo.Reserve(ctx, tx, documentType, businessDate, at.UTC())
	s.metrics.ObserveLockWait(obsmetrics.LockResourceDocumentSequence, time.Since(started))
	if err != nil {
		s.log.Warn("failed to reserve serial sequence",
			zap.String("document_type", string(documentType)),
			zap.String("business_date", businessDate),
			zap.Error(err),
		)
		return "", err
	}

	serial, err := domain.Format(documentType, at.In(s.loc), seq)
	if err != nil {
		return "", err
	}
	s.metrics.RecordSerialReservation(string(documentType))
	return serial, nil
}
