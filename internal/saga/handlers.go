package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sale-service/internal/domain/sale"
	"sale-service/internal/events"
	"sale-service/internal/repository"
	sale_errors "sale-service/pkg/errors"
	"sale-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type outcome int

const (
	applied outcome = iota
	// alreadyApplied: the sale was already in the requested final state.
	alreadyApplied
	// skipped: the sale is missing, deleted, or the transition is illegal.
	skipped
)

func (c *Consumer) onDetailsPersisted(ctx context.Context, ev events.DetailsPersisted, log *logger.Logger) error {
	now := c.now()
	_, out, err := c.mutate(ctx, ev.SaleID, log, func(s *sale.Sale) error {
		return s.ApplyDetails(ev.TotalCalculated, now)
	})
	if err != nil {
		return err
	}
	if out == applied {
		log.Info("sale total updated",
			zap.String("sale_id", ev.SaleID.String()),
			zap.String("total", ev.TotalCalculated.StringFixed(2)),
		)
	}
	return nil
}

func (c *Consumer) onStockReserved(ctx context.Context, messageID string, ev events.StockReserved, log *logger.Logger) error {
	now := c.now()
	s, out, err := c.mutate(ctx, ev.SaleID, log, func(s *sale.Sale) error {
		return s.Approve(ev.TotalCalculated, now)
	})
	if err != nil || out == skipped {
		return err
	}

	body := events.SaleCompleted{
		MessageID:   events.DerivedMessageID(messageID, events.RoutingKeySaleCompleted),
		SaleID:      s.ID,
		TotalAmount: s.TotalAmount,
		CompletedAt: stamp(s, now),
	}
	if err := events.PublishJSON(ctx, c.publisher, events.RoutingKeySaleCompleted, body); err != nil {
		return fmt.Errorf("publish %s: %w", events.RoutingKeySaleCompleted, err)
	}
	log.Info("sale approved", zap.String("sale_id", s.ID.String()), zap.Bool("replayed", out == alreadyApplied))
	return nil
}

func (c *Consumer) onStockReservationFailed(ctx context.Context, messageID string, ev events.StockReservationFailed, log *logger.Logger) error {
	now := c.now()
	s, out, err := c.mutate(ctx, ev.SaleID, log, func(s *sale.Sale) error {
		return s.Reject(ev.Reason, now)
	})
	if err != nil || out == skipped {
		return err
	}

	reason := sale.DefaultRejectionReason
	if s.RejectionReason != nil {
		reason = *s.RejectionReason
	}
	body := events.SaleFailed{
		MessageID: events.DerivedMessageID(messageID, events.RoutingKeySaleFailed),
		SaleID:    s.ID,
		Reason:    reason,
		FailedAt:  stamp(s, now),
	}
	if err := events.PublishJSON(ctx, c.publisher, events.RoutingKeySaleFailed, body); err != nil {
		return fmt.Errorf("publish %s: %w", events.RoutingKeySaleFailed, err)
	}
	log.Info("sale rejected",
		zap.String("sale_id", s.ID.String()),
		zap.String("reason", reason),
		zap.Bool("replayed", out == alreadyApplied),
	)
	return nil
}

// mutate loads the sale under a row lock, applies fn and writes it back in one
// transaction. The returned sale is nil only when the outcome is skipped.
func (c *Consumer) mutate(ctx context.Context, id uuid.UUID, log *logger.Logger, fn func(*sale.Sale) error) (*sale.Sale, outcome, error) {
	var (
		result *sale.Sale
		out    outcome
	)
	err := repository.WithinTransaction(ctx, c.uow.New(), func(uow repository.UnitOfWork) error {
		s, err := uow.Sales().GetByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("load sale %s: %w", id, err)
		}
		if s == nil {
			log.Warn("sale not found or deleted, ignoring event", zap.String("sale_id", id.String()))
			out = skipped
			return nil
		}

		if err := fn(s); err != nil {
			switch {
			case errors.Is(err, sale_errors.ErrAlreadyFinal):
				result, out = s, alreadyApplied
				return nil
			case errors.Is(err, sale_errors.ErrInvalidTransition):
				log.Warn("ignoring event for finalized sale",
					zap.String("sale_id", id.String()),
					zap.String("status", string(s.Status)),
					zap.Error(err),
				)
				out = skipped
				return nil
			default:
				return err
			}
		}

		if err := uow.Sales().Update(ctx, s); err != nil {
			return fmt.Errorf("update sale %s: %w", id, err)
		}
		result, out = s, applied
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}
	return result, out, nil
}

func stamp(s *sale.Sale, fallback time.Time) time.Time {
	if s.UpdatedAt != nil {
		return s.UpdatedAt.UTC()
	}
	return fallback.UTC()
}
