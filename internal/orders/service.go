package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/syedhariswaseem/lazr/internal/flow"
	"github.com/syedhariswaseem/lazr/internal/payment"
)

type RepoInterface interface {
	CreateDraft(ctx context.Context, order *Order) error
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	Confirm(ctx context.Context, paymentID string) (*Order, error)
	MarkFailed(ctx context.Context, paymentID, reason string) error
}

// Service keeps the order ledger in step with the payment processor. Orders
// are created as drafts when a payment session is issued and only the
// processor's events move them on.
type Service struct {
	repo RepoInterface
	log  *slog.Logger
}

func NewService(repo RepoInterface, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// RecordDraft stores a pending order for a new payment session. Recording the
// same payment twice is not an error.
func (s *Service) RecordDraft(ctx context.Context, d flow.DraftOrder) error {
	order := &Order{
		ID:        uuid.New(),
		PaymentID: d.PaymentID,
		SessionID: d.SessionID,
		Email:     d.Email,
		Items:     d.Items,
		Total:     d.Total,
		Currency:  d.Currency,
	}
	err := s.repo.CreateDraft(ctx, order)
	if errors.Is(err, ErrDuplicateOrder) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record draft order: %w", err)
	}
	s.log.InfoContext(ctx, "draft order recorded", "order_id", order.ID, "payment_id", d.PaymentID)
	return nil
}

// HandlePaymentEvent applies a verified processor event. Events for unknown
// payments and unrelated event types are acknowledged without effect.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev payment.Event) error {
	log := s.log.With("event_id", ev.ID, "event_type", ev.Type, "payment_id", ev.PaymentID)

	switch ev.Type {
	case payment.EventPaymentSucceeded:
		order, err := s.repo.Confirm(ctx, ev.PaymentID)
		switch {
		case errors.Is(err, ErrAlreadyConfirmed):
			log.InfoContext(ctx, "order already confirmed")
			return nil
		case errors.Is(err, ErrOrderNotFound):
			log.WarnContext(ctx, "payment succeeded without a draft order")
			return nil
		case err != nil:
			return fmt.Errorf("confirm order: %w", err)
		}
		log.InfoContext(ctx, "order confirmed", "order_id", order.ID, "total", order.Total)

	case payment.EventPaymentFailed, payment.EventPaymentCanceled:
		reason := ev.FailureCode
		if reason == "" {
			reason = string(ev.Status)
		}
		err := s.repo.MarkFailed(ctx, ev.PaymentID, reason)
		if errors.Is(err, ErrOrderNotFound) {
			log.InfoContext(ctx, "no pending order to fail")
			return nil
		}
		if err != nil {
			return err
		}
		log.InfoContext(ctx, "order marked failed", "reason", reason)

	default:
		log.DebugContext(ctx, "ignoring payment event")
	}
	return nil
}

func (s *Service) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return s.repo.GetByPaymentID(ctx, paymentID)
}

var _ flow.DraftRecorder = (*Service)(nil)
