package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/storage"
)

// State is what the confirmation view renders. While IsLoading is true the
// other fields are not yet meaningful.
type State struct {
	CustomerInfo *domain.CustomerInfo `json:"customerInfo"`
	OrderTotal   *int64               `json:"orderTotal"`
	OrderItems   []domain.OrderItem   `json:"orderItems"`
	OrderID      string               `json:"orderId,omitempty"`
	IsLoading    bool                 `json:"isLoading"`
}

// Complete reports whether customer info, total and items are all present.
func (s State) Complete() bool {
	return s.CustomerInfo != nil && s.OrderTotal != nil && s.OrderItems != nil
}

func (s State) Finalized() bool {
	return s.Complete() && s.OrderID != ""
}

func (s State) Snapshot() (domain.CheckoutSnapshot, bool) {
	if !s.Finalized() {
		return domain.CheckoutSnapshot{}, false
	}
	return domain.CheckoutSnapshot{
		CustomerInfo: *s.CustomerInfo,
		OrderTotal:   *s.OrderTotal,
		OrderItems:   append([]domain.OrderItem(nil), s.OrderItems...),
		OrderID:      s.OrderID,
	}, true
}

type record struct {
	CustomerInfo *domain.CustomerInfo `json:"customerInfo"`
	OrderTotal   *int64               `json:"orderTotal"`
	OrderItems   []domain.OrderItem   `json:"orderItems"`
	OrderID      string               `json:"orderId,omitempty"`
}

type Service struct {
	storage storage.Storage
	log     *slog.Logger
}

func NewService(st storage.Storage, log *slog.Logger) *Service {
	return &Service{storage: st, log: log}
}

// Open returns the store for sessionID and starts hydrating it in the
// background. Use Wait before relying on its state.
func (s *Service) Open(ctx context.Context, sessionID string) *Store {
	st := s.NewStore(sessionID)
	go st.Load(context.WithoutCancel(ctx))
	return st
}

// Load returns a hydrated store for sessionID.
func (s *Service) Load(ctx context.Context, sessionID string) *Store {
	st := s.NewStore(sessionID)
	st.Load(ctx)
	return st
}

func (s *Service) NewStore(sessionID string) *Store {
	return &Store{
		storage: s.storage,
		log:     s.log,
		key:     storage.Key(sessionID, storage.CheckoutDataRecord),
		state:   State{IsLoading: true},
		ready:   make(chan struct{}),
	}
}

// Store holds one shopper's checkout snapshot.
type Store struct {
	mu       sync.RWMutex
	storage  storage.Storage
	log      *slog.Logger
	key      string
	state    State
	ready    chan struct{}
	loadOnce sync.Once
}

// Load hydrates the store from storage once. Missing, malformed or partial
// records leave the store empty.
func (s *Store) Load(ctx context.Context) {
	s.loadOnce.Do(func() {
		defer close(s.ready)

		rec, err := s.read(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.state.IsLoading {
			// a mutation landed while reading and is newer than the record
			return
		}
		s.state.IsLoading = false

		var decodeErr *PersistenceDecodeError
		switch {
		case err == nil:
			s.state.CustomerInfo = rec.CustomerInfo
			s.state.OrderTotal = rec.OrderTotal
			s.state.OrderItems = rec.OrderItems
			s.state.OrderID = rec.OrderID
		case errors.Is(err, storage.ErrNotFound):
		case errors.As(err, &decodeErr):
			s.log.WarnContext(ctx, "discarding checkout record", "error", decodeErr)
		default:
			s.log.ErrorContext(ctx, "failed to load checkout record", "key", s.key, "error", err)
		}
	})
}

func (s *Store) read(ctx context.Context) (*record, error) {
	data, err := s.storage.Load(ctx, s.key)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &PersistenceDecodeError{Key: s.key, Reason: "malformed JSON", Err: err}
	}
	if rec.CustomerInfo == nil || rec.OrderTotal == nil || rec.OrderItems == nil {
		return nil, &PersistenceDecodeError{Key: s.key, Reason: "missing customerInfo, orderTotal or orderItems"}
	}
	return &rec, nil
}

// Wait blocks until hydration has finished or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	if s.state.OrderItems != nil {
		st.OrderItems = copyItems(s.state.OrderItems)
	}
	return st
}

func (s *Store) Snapshot() (domain.CheckoutSnapshot, bool) {
	return s.State().Snapshot()
}

// SetCheckoutData replaces customer info, total and items together and
// persists them.
func (s *Store) SetCheckoutData(ctx context.Context, info domain.CustomerInfo, total int64, items []domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finalized() {
		return ErrSnapshotFinalized
	}

	next := s.state
	next.CustomerInfo = &info
	next.OrderTotal = &total
	next.OrderItems = copyItems(items)
	return s.commit(ctx, next)
}

func (s *Store) SetOrderID(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finalized() {
		return ErrSnapshotFinalized
	}

	next := s.state
	next.OrderID = orderID
	return s.commit(ctx, next)
}

// Finalize writes a complete snapshot, order id included, in one step.
// A finalized snapshot for a different order must be cleared first.
func (s *Store) Finalize(ctx context.Context, snap domain.CheckoutSnapshot) error {
	if snap.OrderID == "" {
		return errors.New("finalize checkout: order id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Finalized() {
		if s.state.OrderID == snap.OrderID {
			return nil
		}
		return ErrSnapshotFinalized
	}

	info := snap.CustomerInfo
	total := snap.OrderTotal
	next := State{
		CustomerInfo: &info,
		OrderTotal:   &total,
		OrderItems:   copyItems(snap.OrderItems),
		OrderID:      snap.OrderID,
	}
	return s.commit(ctx, next)
}

// Clear resets the store and removes the persisted record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove checkout record: %w", err)
	}
	s.state = State{}
	return nil
}

// commit persists next when it is complete and then publishes it. Callers hold mu.
func (s *Store) commit(ctx context.Context, next State) error {
	next.IsLoading = false
	if next.Complete() {
		data, err := json.Marshal(record{
			CustomerInfo: next.CustomerInfo,
			OrderTotal:   next.OrderTotal,
			OrderItems:   next.OrderItems,
			OrderID:      next.OrderID,
		})
		if err != nil {
			return fmt.Errorf("marshal checkout record: %w", err)
		}
		if err := s.storage.Save(ctx, s.key, data); err != nil {
			return fmt.Errorf("save checkout record: %w", err)
		}
	}
	s.state = next
	return nil
}

func copyItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	return out
}
