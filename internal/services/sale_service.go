package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sale-service/internal/domain/sale"
	"sale-service/internal/events"
	"sale-service/internal/repository"
	sale_errors "sale-service/pkg/errors"
	"sale-service/pkg/logger"
	"sale-service/pkg/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SaleService is the write side of the saga. Every write commits the sale row
// and its outbox event in the same transaction.
type SaleService struct {
	uow    repository.UnitOfWorkFactory
	logger *logger.Logger
	now    func() time.Time
}

type Option func(*SaleService)

func WithClock(now func() time.Time) Option {
	return func(s *SaleService) { s.now = now }
}

func NewSaleService(uow repository.UnitOfWorkFactory, l *logger.Logger, opts ...Option) *SaleService {
	if l == nil {
		l = logger.NewNop()
	}
	s := &SaleService{
		uow:    uow,
		logger: l.With(zap.String("component", "sale_service")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSale starts the saga: a PENDING_DETAILS sale plus a sale.header.created event.
func (s *SaleService) CreateSale(ctx context.Context, clientID, createdBy string, items []sale.Item) (*sale.Sale, error) {
	ctx, span := tracing.Tracer().Start(ctx, "sale.create")
	defer span.End()

	if err := validateItems(items); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	now := s.now()
	created := sale.New(clientID, createdBy, now)
	if err := created.Validate(); err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	if items == nil {
		items = []sale.Item{}
	}
	span.SetAttributes(attribute.String("sale.id", created.ID.String()))

	err := repository.WithinTransaction(ctx, s.uow.New(), func(uow repository.UnitOfWork) error {
		if err := uow.Sales().Create(ctx, created); err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		return enqueue(ctx, uow.Outbox(), created.ID, events.RoutingKeySaleHeaderCreated, events.SaleHeaderCreated{
			MessageID: events.NewMessageID(),
			SaleID:    created.ID,
			ClientID:  created.ClientID,
			CreatedBy: createdBy,
			Items:     items,
		}, now)
	})
	if err != nil {
		tracing.Fail(span, err)
		s.logger.Ctx(ctx).Error("create sale failed", zap.Error(err))
		return nil, err
	}

	s.logger.Ctx(ctx).Info("sale created", zap.String("sale_id", created.ID.String()), zap.Int("items", len(items)))
	return created, nil
}

// UpdateSale overwrites the mutable fields of an existing sale. A terminal
// status cannot be changed back.
func (s *SaleService) UpdateSale(ctx context.Context, in *sale.Sale, updatedBy string) error {
	ctx, span := tracing.Tracer().Start(ctx, "sale.update")
	defer span.End()

	if in == nil {
		return fmt.Errorf("%w: sale is required", sale_errors.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("sale.id", in.ID.String()))
	now := s.now()

	err := repository.WithinTransaction(ctx, s.uow.New(), func(uow repository.UnitOfWork) error {
		current, err := uow.Sales().GetByIDForUpdate(ctx, in.ID)
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}
		if current == nil {
			return sale_errors.ErrNotFound
		}
		if !sale.CanTransition(current.Status, in.Status) {
			return fmt.Errorf("%w: %s -> %s", sale_errors.ErrInvalidTransition, current.Status, in.Status)
		}

		in.ClientID = strings.TrimSpace(in.ClientID)
		in.CreatedAt = current.CreatedAt
		in.CreatedBy = current.CreatedBy
		in.IsDeleted = current.IsDeleted
		if in.Date.IsZero() {
			in.Date = current.Date
		}
		if in.Status == sale.StatusRejected && in.RejectionReason == nil {
			in.RejectionReason = current.RejectionReason
		}
		if err := in.Validate(); err != nil {
			return err
		}
		in.Touch(updatedBy, now)

		if err := uow.Sales().Update(ctx, in); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}
		return enqueue(ctx, uow.Outbox(), in.ID, events.RoutingKeySaleUpdated, events.SaleUpdated{
			MessageID:     events.NewMessageID(),
			SaleID:        in.ID,
			UpdatedFields: in,
			UpdatedBy:     updatedBy,
			UpdatedAt:     now.UTC(),
		}, now)
	})
	if err != nil {
		tracing.Fail(span, err)
		return err
	}

	s.logger.Ctx(ctx).Info("sale updated", zap.String("sale_id", in.ID.String()), zap.String("status", string(in.Status)))
	return nil
}

// SoftDeleteSale flags the sale deleted and emits the sale.cancelled compensation.
func (s *SaleService) SoftDeleteSale(ctx context.Context, id uuid.UUID, updatedBy string) error {
	ctx, span := tracing.Tracer().Start(ctx, "sale.delete")
	defer span.End()
	span.SetAttributes(attribute.String("sale.id", id.String()))
	now := s.now()

	err := repository.WithinTransaction(ctx, s.uow.New(), func(uow repository.UnitOfWork) error {
		current, err := uow.Sales().GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}
		if current == nil {
			return sale_errors.ErrNotFound
		}
		if err := uow.Sales().Delete(ctx, id, updatedBy); err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		return enqueue(ctx, uow.Outbox(), id, events.RoutingKeySaleCancelled, events.SaleCancelled{
			MessageID:   events.NewMessageID(),
			SaleID:      id,
			Reason:      events.CancelReasonDeleted,
			CancelledBy: updatedBy,
		}, now)
	})
	if err != nil {
		tracing.Fail(span, err)
		return err
	}

	s.logger.Ctx(ctx).Info("sale deleted", zap.String("sale_id", id.String()))
	return nil
}

// GetSale returns nil without error when the sale does not exist or was deleted.
func (s *SaleService) GetSale(ctx context.Context, id uuid.UUID) (*sale.Sale, error) {
	uow := s.uow.New()
	if err := uow.EnsureOpen(ctx); err != nil {
		return nil, err
	}
	return uow.Sales().GetByID(ctx, id)
}

func (s *SaleService) ListSales(ctx context.Context) ([]sale.Sale, error) {
	uow := s.uow.New()
	if err := uow.EnsureOpen(ctx); err != nil {
		return nil, err
	}
	return uow.Sales().GetAll(ctx)
}

func validateItems(items []sale.Item) error {
	for i, item := range items {
		if strings.TrimSpace(item.MedID) == "" {
			return fmt.Errorf("%w: item %d: MedId is required", sale_errors.ErrInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", sale_errors.ErrInvalidInput, i)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: item %d: price must not be negative", sale_errors.ErrInvalidInput, i)
		}
	}
	return nil
}
