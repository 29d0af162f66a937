package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/syedhariswaseem/lazr/internal/cart"
	"github.com/syedhariswaseem/lazr/internal/checkout"
	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/payment"
	"github.com/syedhariswaseem/lazr/internal/storage"
)

const (
	msgFixFields        = "Please correct the highlighted fields."
	msgSessionFailed    = "We couldn't start the payment. Please try again."
	msgPaymentFailed    = "Payment could not be completed."
	msgProcessing       = "Payment is processing. You will receive an email confirmation shortly."
	msgRequiresAction   = "Additional authentication is required to complete this payment."
	msgSessionExpired   = "Your payment session expired. Please place the order again."
	msgCartChanged      = "Your cart changed. Please place the order again."
	msgSnapshotNotSaved = "Payment received. Your confirmation will arrive by email shortly."
)

// MetadataCartFingerprint tags payments started from a processor-hosted
// checkout page with the fingerprint of the cart they were priced from.
const MetadataCartFingerprint = "cart_fingerprint"

// DraftOrder is recorded when a payment session is issued so the processor's
// webhook can later be matched to the shopper.
type DraftOrder struct {
	PaymentID string
	SessionID string
	Email     string
	Items     []domain.OrderItem
	Total     int64
	Currency  string
}

type DraftRecorder interface {
	RecordDraft(ctx context.Context, d DraftOrder) error
}

type Option func(*Orchestrator)

func WithStockChecker(s StockChecker) Option {
	return func(o *Orchestrator) { o.stock = s }
}

func WithDraftRecorder(d DraftRecorder) Option {
	return func(o *Orchestrator) { o.drafts = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives a shopper from a filled cart to a confirmed payment.
// At most one placement or submission runs per session at a time.
type Orchestrator struct {
	carts     *cart.Service
	checkouts *checkout.Service
	flows     storage.Storage
	gateway   payment.Gateway
	validator *Validator
	stock     StockChecker
	drafts    DraftRecorder
	currency  string
	now       func() time.Time
	log       *slog.Logger

	inFlight sync.Map
}

func New(carts *cart.Service, checkouts *checkout.Service, flows storage.Storage, gateway payment.Gateway, currency string, log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		carts:     carts,
		checkouts: checkouts,
		flows:     flows,
		gateway:   gateway,
		validator: NewValidator(),
		currency:  currency,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) acquire(sessionID string) (func(), error) {
	if _, busy := o.inFlight.LoadOrStore(sessionID, struct{}{}); busy {
		return nil, ErrFlowBusy
	}
	return func() { o.inFlight.Delete(sessionID) }, nil
}

// Current returns the shopper's flow, Idle if none was started.
func (o *Orchestrator) Current(ctx context.Context, sessionID string) (*Flow, error) {
	return o.load(ctx, sessionID)
}

// Reset forgets the flow, e.g. when the shopper leaves the confirmation page.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	if err := o.flows.Remove(ctx, storage.Key(sessionID, storage.CheckoutFlowRecord)); err != nil {
		return fmt.Errorf("remove checkout flow: %w", err)
	}
	return nil
}

// PlaceOrder validates the customer and the cart and makes sure a payment
// session exists for exactly the current cart. Invalid input never reaches
// the processor.
func (o *Orchestrator) PlaceOrder(ctx context.Context, sessionID string, info domain.CustomerInfo) (*Flow, error) {
	release, err := o.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	fl, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fl.State == StateSucceeded {
		fl = o.restart(fl)
	}

	c, err := o.carts.Open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open cart: %w", err)
	}
	if c.IsEmpty() {
		return fl, ErrEmptyCart
	}

	fl.State = StateValidating
	fl.clearMessage()
	info = info.Normalize()
	fl.CustomerInfo = &info

	lines := c.Lines()
	verr := o.validator.Customer(info)
	if verr == nil {
		verr = &ValidationError{}
	}
	if o.stock != nil {
		if err := checkStock(ctx, o.stock, lines, verr); err != nil {
			return nil, err
		}
	}
	if !verr.empty() {
		fl.State = StateFailed
		fl.Validated = false
		fl.FieldErrors = verr.Fields
		fl.FirstInvalidField = verr.First
		fl.setMessage(MessageError, msgFixFields)
		if err := o.save(ctx, sessionID, fl); err != nil {
			return nil, err
		}
		return fl, verr
	}
	fl.Validated = true
	fl.FieldErrors = nil
	fl.FirstInvalidField = ""

	totals := c.Totals()
	fp := Fingerprint(lines, totals.Total, o.currency)
	if fl.PaymentSession != nil && fl.PaymentSession.Fingerprint == fp {
		fl.State = StatePaymentFormReady
		if err := o.save(ctx, sessionID, fl); err != nil {
			return nil, err
		}
		o.log.InfoContext(ctx, "reusing payment session", "payment_id", fl.PaymentSession.ID)
		return fl, nil
	}

	fl.discardSession()
	fl.State = StateAwaitingPaymentSession
	if err := o.save(ctx, sessionID, fl); err != nil {
		return nil, err
	}

	items := domain.OrderItemsFromLines(lines)
	sess, err := o.gateway.CreateSession(ctx, payment.SessionRequest{
		Items:          items,
		Customer:       info,
		Amount:         totals.Total,
		Currency:       o.currency,
		IdempotencyKey: sessionID + ":" + fp + ":" + strconv.Itoa(fl.SessionGeneration),
		Metadata:       map[string]string{"session_id": sessionID},
	})
	if err != nil {
		o.log.ErrorContext(ctx, "failed to create payment session", "error", err)
		fl.State = StateFailed
		fl.setMessage(MessageError, msgSessionFailed)
		if saveErr := o.save(ctx, sessionID, fl); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return fl, err
	}

	fl.PaymentSession = &SessionToken{
		ID:           sess.ID,
		ClientSecret: sess.ClientSecret,
		Fingerprint:  fp,
		Amount:       sess.Amount,
		Currency:     sess.Currency,
		Items:        items,
	}
	fl.State = StatePaymentFormReady
	if err := o.save(ctx, sessionID, fl); err != nil {
		return nil, err
	}

	if o.drafts != nil {
		draft := DraftOrder{
			PaymentID: sess.ID,
			SessionID: sessionID,
			Email:     info.Email,
			Items:     items,
			Total:     totals.Total,
			Currency:  o.currency,
		}
		if err := o.drafts.RecordDraft(ctx, draft); err != nil {
			o.log.ErrorContext(ctx, "failed to record draft order", "payment_id", sess.ID, "error", err)
		}
	}

	o.log.InfoContext(ctx, "payment session created", "payment_id", sess.ID, "amount", sess.Amount)
	return fl, nil
}

// SetPaymentFieldsComplete records whether the embedded payment form reports
// its fields as complete.
func (o *Orchestrator) SetPaymentFieldsComplete(ctx context.Context, sessionID string, complete bool) (*Flow, error) {
	release, err := o.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	fl, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fl.PaymentSession == nil {
		return fl, ErrNotReady
	}
	fl.PaymentFieldsComplete = complete
	if err := o.save(ctx, sessionID, fl); err != nil {
		return nil, err
	}
	return fl, nil
}

// Submit confirms the payment. On success the confirmation snapshot is written
// before the cart is emptied, and the session token is dropped.
func (o *Orchestrator) Submit(ctx context.Context, sessionID, paymentMethod string) (*Result, error) {
	release, err := o.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	fl, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case fl.State == StateSucceeded:
		return &Result{Flow: fl}, ErrAlreadyCompleted
	case fl.PaymentSession == nil || !fl.Validated || fl.CustomerInfo == nil:
		return &Result{Flow: fl}, ErrNotReady
	case !fl.PaymentFieldsComplete:
		return &Result{Flow: fl}, ErrPaymentFieldsIncomplete
	}

	c, err := o.carts.Open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("open cart: %w", err)
	}
	lines := c.Lines()
	totals := c.Totals()
	if c.IsEmpty() || Fingerprint(lines, totals.Total, o.currency) != fl.PaymentSession.Fingerprint {
		fl.discardSession()
		fl.State = StateIdle
		fl.setMessage(MessageError, msgCartChanged)
		if err := o.save(ctx, sessionID, fl); err != nil {
			return nil, err
		}
		return &Result{Flow: fl}, ErrSessionStale
	}

	fl.State = StateSubmitting
	fl.clearMessage()
	fl.ConfirmAttempts++
	if err := o.save(ctx, sessionID, fl); err != nil {
		return nil, err
	}

	token := *fl.PaymentSession
	conf, err := o.gateway.ConfirmSession(ctx, payment.ConfirmRequest{
		SessionID:      token.ID,
		PaymentMethod:  paymentMethod,
		Customer:       *fl.CustomerInfo,
		IdempotencyKey: token.ID + ":confirm:" + strconv.Itoa(fl.ConfirmAttempts),
	})
	if err != nil {
		conf, err = o.reconcile(ctx, token, err)
	}
	if err != nil {
		o.log.ErrorContext(ctx, "payment confirmation failed", "payment_id", token.ID, "error", err)
		fl.State = StateFailed
		fl.setMessage(MessageError, msgPaymentFailed)
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) && gwErr.SessionGone() {
			fl.discardSession()
			fl.setMessage(MessageError, msgSessionExpired)
		}
		if saveErr := o.save(ctx, sessionID, fl); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return &Result{Flow: fl}, err
	}

	res := &Result{Flow: fl}
	switch conf.Status {
	case payment.StatusSucceeded:
		snap := domain.CheckoutSnapshot{
			CustomerInfo: *fl.CustomerInfo,
			OrderTotal:   totals.Total,
			OrderItems:   domain.OrderItemsFromLines(lines),
			OrderID:      conf.PaymentID,
		}
		if err := o.finalize(ctx, sessionID, snap); err != nil {
			o.log.ErrorContext(ctx, "failed to save confirmation snapshot", "payment_id", conf.PaymentID, "error", err)
			fl.State = StateFailed
			fl.setMessage(MessageInfo, msgSnapshotNotSaved)
			if saveErr := o.save(ctx, sessionID, fl); saveErr != nil {
				return nil, errors.Join(err, saveErr)
			}
			return res, err
		}
		if err := o.carts.Clear(ctx, sessionID); err != nil {
			o.log.ErrorContext(ctx, "failed to clear cart after payment", "payment_id", conf.PaymentID, "error", err)
		}
		fl.State = StateSucceeded
		fl.OrderID = conf.PaymentID
		fl.discardSession()
		res.Snapshot = &snap
		o.log.InfoContext(ctx, "payment succeeded", "payment_id", conf.PaymentID, "total", totals.Total)
	case payment.StatusProcessing:
		fl.State = StateFailed
		fl.setMessage(MessageInfo, msgProcessing)
	case payment.StatusRequiresAction:
		fl.State = StateFailed
		fl.setMessage(MessageError, msgRequiresAction)
	case payment.StatusCanceled:
		fl.State = StateFailed
		fl.discardSession()
		fl.setMessage(MessageError, msgSessionExpired)
	default:
		fl.State = StateFailed
		fl.setMessage(MessageError, msgPaymentFailed)
		res.DeclineCode = conf.DeclineCode
		o.log.InfoContext(ctx, "payment declined", "payment_id", token.ID, "decline_code", conf.DeclineCode)
	}

	if err := o.save(ctx, sessionID, fl); err != nil {
		return nil, err
	}
	return res, nil
}

// reconcile asks the processor where a session stands after a confirmation
// ended without a verdict. An earlier attempt may already have charged the
// shopper, so the session is only reported gone when the processor no longer
// knows it.
func (o *Orchestrator) reconcile(ctx context.Context, token SessionToken, confirmErr error) (*payment.Confirmation, error) {
	var gwErr *payment.GatewayError
	if !errors.As(confirmErr, &gwErr) || !(gwErr.UnexpectedState() || gwErr.Kind == payment.KindUnreachable) {
		return nil, confirmErr
	}

	details, err := o.gateway.RetrieveOrderDetails(ctx, token.ID)
	if payment.IsNotFound(err) {
		return nil, &payment.GatewayError{
			Op:      gwErr.Op,
			Kind:    payment.KindRejected,
			Code:    payment.CodeResourceMissing,
			Message: "payment session no longer exists",
			Err:     confirmErr,
		}
	}
	if err != nil {
		o.log.WarnContext(ctx, "could not look up payment after failed confirmation", "payment_id", token.ID, "error", err)
		return nil, confirmErr
	}

	switch details.Status {
	case payment.StatusSucceeded, payment.StatusProcessing, payment.StatusRequiresAction, payment.StatusCanceled:
		paymentID := details.PaymentID
		if paymentID == "" {
			paymentID = token.ID
		}
		o.log.InfoContext(ctx, "recovered payment status after failed confirmation", "payment_id", paymentID, "status", details.Status)
		return &payment.Confirmation{PaymentID: paymentID, Status: details.Status}, nil
	default:
		return nil, confirmErr
	}
}

// SettlePayment completes a flow that was still bound to paymentID when the
// processor confirmed it out of band. It reports whether the flow was pending.
// While a placement or submission holds the session it returns ErrFlowBusy so
// the event is delivered again later.
//
// The snapshot lists the items the session was priced from. The cart is only
// emptied if it still holds exactly those items.
func (o *Orchestrator) SettlePayment(ctx context.Context, sessionID, paymentID string) (bool, error) {
	release, err := o.acquire(sessionID)
	if err != nil {
		return false, err
	}
	defer release()

	fl, err := o.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if fl.State == StateSucceeded || fl.PaymentSession == nil || fl.PaymentSession.ID != paymentID {
		return false, nil
	}
	token := *fl.PaymentSession

	c, err := o.carts.Open(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("open cart: %w", err)
	}
	lines := c.Lines()
	cartMatches := !c.IsEmpty() && Fingerprint(lines, c.Totals().Total, o.currency) == token.Fingerprint

	if fl.CustomerInfo != nil {
		items := token.Items
		if len(items) == 0 && cartMatches {
			items = domain.OrderItemsFromLines(lines)
		}
		snap := domain.CheckoutSnapshot{
			CustomerInfo: *fl.CustomerInfo,
			OrderTotal:   token.Amount,
			OrderItems:   items,
			OrderID:      paymentID,
		}
		if err := o.finalize(ctx, sessionID, snap); err != nil {
			return false, err
		}
	}

	switch {
	case cartMatches:
		if err := o.carts.Clear(ctx, sessionID); err != nil {
			return false, fmt.Errorf("clear cart: %w", err)
		}
	case !c.IsEmpty():
		o.log.InfoContext(ctx, "cart changed after payment session was issued, keeping it", "payment_id", paymentID)
	}

	fl.State = StateSucceeded
	fl.OrderID = paymentID
	fl.discardSession()
	fl.clearMessage()
	if err := o.save(ctx, sessionID, fl); err != nil {
		return false, err
	}
	o.log.InfoContext(ctx, "checkout settled by processor event", "payment_id", paymentID)
	return true, nil
}

// HandlePaymentEvent settles the shopper's flow when the processor reports a
// success for the payment bound to it. Events without a shopper session are
// ignored.
func (o *Orchestrator) HandlePaymentEvent(ctx context.Context, ev payment.Event) error {
	sessionID := ev.Metadata["session_id"]
	if ev.Type != payment.EventPaymentSucceeded || sessionID == "" {
		return nil
	}
	if fp := ev.Metadata[MetadataCartFingerprint]; fp != "" {
		if err := o.settleHosted(ctx, sessionID, ev.PaymentID, fp); err != nil {
			return fmt.Errorf("settle hosted payment %s: %w", ev.PaymentID, err)
		}
		return nil
	}
	if _, err := o.SettlePayment(ctx, sessionID, ev.PaymentID); err != nil {
		return fmt.Errorf("settle payment %s: %w", ev.PaymentID, err)
	}
	return nil
}

// settleHosted empties the cart a hosted checkout was paid from unless the
// shopper changed it since.
func (o *Orchestrator) settleHosted(ctx context.Context, sessionID, paymentID, fingerprint string) error {
	release, err := o.acquire(sessionID)
	if err != nil {
		return err
	}
	defer release()

	c, err := o.carts.Open(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("open cart: %w", err)
	}
	if c.IsEmpty() {
		return nil
	}
	if Fingerprint(c.Lines(), c.Totals().Total, o.currency) != fingerprint {
		o.log.InfoContext(ctx, "cart changed after hosted checkout, keeping it", "payment_id", paymentID)
		return nil
	}
	if err := c.Clear(ctx); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	o.log.InfoContext(ctx, "cart emptied after hosted checkout", "payment_id", paymentID)
	return nil
}

// finalize writes the snapshot, replacing one left over from an earlier order.
func (o *Orchestrator) finalize(ctx context.Context, sessionID string, snap domain.CheckoutSnapshot) error {
	st := o.checkouts.Load(ctx, sessionID)
	err := st.Finalize(ctx, snap)
	if errors.Is(err, checkout.ErrSnapshotFinalized) {
		if err := st.Clear(ctx); err != nil {
			return err
		}
		err = st.Finalize(ctx, snap)
	}
	return err
}

func (o *Orchestrator) restart(prev *Flow) *Flow {
	return &Flow{
		State:             StateIdle,
		SessionGeneration: prev.SessionGeneration,
	}
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*Flow, error) {
	data, err := o.flows.Load(ctx, storage.Key(sessionID, storage.CheckoutFlowRecord))
	if errors.Is(err, storage.ErrNotFound) {
		return &Flow{State: StateIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout flow: %w", err)
	}
	var fl Flow
	if err := json.Unmarshal(data, &fl); err != nil {
		o.log.WarnContext(ctx, "discarding unreadable checkout flow", "error", err)
		return &Flow{State: StateIdle}, nil
	}
	if fl.State == "" {
		fl.State = StateIdle
	}
	return &fl, nil
}

func (o *Orchestrator) save(ctx context.Context, sessionID string, fl *Flow) error {
	fl.UpdatedAt = o.now().UTC()
	data, err := json.Marshal(fl)
	if err != nil {
		return fmt.Errorf("marshal checkout flow: %w", err)
	}
	if err := o.flows.Save(ctx, storage.Key(sessionID, storage.CheckoutFlowRecord), data); err != nil {
		return fmt.Errorf("save checkout flow: %w", err)
	}
	return nil
}
