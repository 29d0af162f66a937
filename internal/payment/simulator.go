package payment

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/syedhariswaseem/lazr/internal/domain"
)

// Refusal reasons the simulator reports, indexed by the roll above 95.
var refusals = []string{
	"",
	"insufficient_funds",
	"card_declined",
	"expired_card",
	"incorrect_cvc",
	"processing_error",
}

// Roller returns a number in [0, 100].
type Roller func() int

func RandomRoll() int {
	return rand.Intn(101) // 101 because Intn is exclusive of the upper bound
}

// calcStatus maps a roll to an outcome: below 95 succeeds, 96..100 decline
// with a known reason, 95 declines for an unknown reason.
func calcStatus(roll int) (Status, string) {
	if roll < 95 {
		return StatusSucceeded, ""
	}
	other := roll - 95
	if other == 0 || other >= len(refusals) {
		return StatusFailed, "unknown_reason"
	}
	return StatusFailed, refusals[other]
}

// EventSink receives the events the processor would deliver by webhook. An
// error asks for redelivery, like a webhook answered with a 5xx.
type EventSink func(ctx context.Context, ev Event) error

const (
	maxDeliveryAttempts  = 5
	defaultDeliveryDelay = 200 * time.Millisecond
)

type simSession struct {
	session  Session
	customer domain.CustomerInfo
	items    []domain.OrderItem
	metadata map[string]string
	created  time.Time
}

// Simulator is an in-process Gateway for development and tests.
type Simulator struct {
	mu               sync.Mutex
	sessions         map[string]*simSession
	idempotency      map[string]string
	// hosted checkout sessions: cs id -> payment id, idempotency key -> result
	checkouts        map[string]string
	checkoutRequests map[string]CheckoutSession
	roll             Roller
	sink             EventSink
	deliveryDelay    time.Duration
	deliveries       sync.WaitGroup
	now              func() time.Time
	log              *slog.Logger
}

func NewSimulator(roll Roller, sink EventSink, log *slog.Logger) *Simulator {
	if roll == nil {
		roll = RandomRoll
	}
	return &Simulator{
		sessions:         make(map[string]*simSession),
		idempotency:      make(map[string]string),
		checkouts:        make(map[string]string),
		checkoutRequests: make(map[string]CheckoutSession),
		roll:             roll,
		sink:             sink,
		deliveryDelay:    defaultDeliveryDelay,
		now:              time.Now,
		log:              log,
	}
}

func (s *Simulator) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.Amount <= 0 {
		return nil, &GatewayError{Op: "create session", Kind: KindRejected, Message: "amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := s.idempotency[req.IdempotencyKey]; ok {
			out := s.sessions[id].session
			return &out, nil
		}
	}

	id := "pi_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}
	sess := &simSession{
		session: Session{
			ID:           id,
			ClientSecret: id + "_secret_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
			Amount:       req.Amount,
			Currency:     currency,
			Status:       StatusRequiresPaymentMethod,
		},
		customer: req.Customer,
		items:    append([]domain.OrderItem(nil), req.Items...),
		metadata: req.Metadata,
		created:  s.now(),
	}
	s.sessions[id] = sess
	if req.IdempotencyKey != "" {
		s.idempotency[req.IdempotencyKey] = id
	}

	out := sess.session
	return &out, nil
}

func (s *Simulator) ConfirmSession(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	const op = "confirm session"

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		return nil, &GatewayError{Op: op, Kind: KindRejected, StatusCode: 404, Code: CodeResourceMissing, Message: "no such payment intent"}
	}
	switch sess.session.Status {
	case StatusSucceeded, StatusCanceled:
		s.mu.Unlock()
		return nil, &GatewayError{Op: op, Kind: KindRejected, StatusCode: 400, Code: CodeUnexpectedState,
			Message: "payment intent is " + string(sess.session.Status)}
	}

	status, reason := calcStatus(s.roll())
	conf := &Confirmation{PaymentID: sess.session.ID, Status: status}
	if status == StatusFailed {
		sess.session.Status = StatusRequiresPaymentMethod
		conf.DeclineCode = reason
		conf.Message = "Your card was declined."
	} else {
		sess.session.Status = status
		sess.customer = req.Customer
	}
	ev := Event{
		ID:        "evt_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		PaymentID: sess.session.ID,
		Status:    sess.session.Status,
		Amount:    sess.session.Amount,
		Currency:  sess.session.Currency,
		Metadata:  sess.metadata,
	}
	s.mu.Unlock()

	if status == StatusSucceeded {
		ev.Type = EventPaymentSucceeded
	} else {
		ev.Type = EventPaymentFailed
		ev.FailureCode = reason
	}
	s.deliver(context.WithoutCancel(ctx), ev)
	s.log.InfoContext(ctx, "simulated payment confirmation", "payment_id", conf.PaymentID, "status", conf.Status, "decline_code", conf.DeclineCode)
	return conf, nil
}

// CreateCheckoutSession simulates the hosted page: the shopper pays as soon as
// the session exists, and the returned URL is where the page would redirect.
func (s *Simulator) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	const op = "create checkout session"
	if len(req.Lines) == 0 {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: "at least one line item is required"}
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, &GatewayError{Op: op, Kind: KindMisconfigured, Message: "success and cancel urls are required"}
	}

	s.mu.Lock()
	if req.IdempotencyKey != "" {
		if cs, ok := s.checkoutRequests[req.IdempotencyKey]; ok {
			s.mu.Unlock()
			return &cs, nil
		}
	}
	s.mu.Unlock()

	var amount int64
	for _, l := range req.Lines {
		amount += l.LineTotal()
	}
	sess, err := s.CreateSession(ctx, SessionRequest{
		Items:    domain.OrderItemsFromLines(req.Lines),
		Customer: req.Customer,
		Amount:   amount + req.Tax,
		Currency: req.Currency,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	conf, err := s.ConfirmSession(ctx, ConfirmRequest{SessionID: sess.ID, Customer: req.Customer})
	if err != nil {
		return nil, err
	}

	id := "cs_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	target := req.CancelURL
	if conf.Status == StatusSucceeded {
		target = req.SuccessURL
	}
	cs := CheckoutSession{ID: id, URL: strings.ReplaceAll(target, "{CHECKOUT_SESSION_ID}", id)}

	s.mu.Lock()
	s.checkouts[id] = sess.ID
	if req.IdempotencyKey != "" {
		s.checkoutRequests[req.IdempotencyKey] = cs
	}
	s.mu.Unlock()
	return &cs, nil
}

// RetrieveOrderDetails accepts a payment id or a hosted checkout session id.
func (s *Simulator) RetrieveOrderDetails(_ context.Context, id string) (*OrderDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	if piID, ok := s.checkouts[id]; ok {
		id = piID
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return &OrderDetails{
		OrderID:      DisplayOrderID(sess.session.ID),
		PaymentID:    sess.session.ID,
		Total:        decimal.New(sess.session.Amount, -2).InexactFloat64(),
		Amount:       sess.session.Amount,
		Currency:     strings.ToUpper(sess.session.Currency),
		Status:       sess.session.Status,
		CustomerName: firstNonEmpty(sess.customer.FullName(), "Customer"),
		Email:        sess.customer.Email,
		Items:        append([]domain.OrderItem{}, sess.items...),
		CreatedAt:    sess.created.UTC(),
	}, nil
}

// deliver hands ev to the sink in the background and redelivers with a
// growing delay until the sink accepts it or the attempts run out.
func (s *Simulator) deliver(ctx context.Context, ev Event) {
	if s.sink == nil {
		return
	}
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		delay := s.deliveryDelay
		for attempt := 1; ; attempt++ {
			err := s.sink(ctx, ev)
			if err == nil {
				return
			}
			if attempt == maxDeliveryAttempts {
				s.log.ErrorContext(ctx, "dropping simulated payment event", "event_id", ev.ID, "attempts", attempt, "error", err)
				return
			}
			s.log.WarnContext(ctx, "simulated payment event not accepted, redelivering", "event_id", ev.ID, "attempt", attempt, "error", err)
			time.Sleep(delay)
			delay *= 2
		}
	}()
}

// Wait blocks until every pending event has been delivered or dropped.
func (s *Simulator) Wait() {
	s.deliveries.Wait()
}

var _ Gateway = (*Simulator)(nil)
