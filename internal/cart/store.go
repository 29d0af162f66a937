package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/storage"
)

// Service opens per-session cart stores over a shared storage backend.
type Service struct {
	storage storage.Storage
	taxRate decimal.Decimal
	log     *slog.Logger
}

func NewService(st storage.Storage, taxRate decimal.Decimal, log *slog.Logger) *Service {
	return &Service{
		storage: st,
		taxRate: taxRate,
		log:     log,
	}
}

func (s *Service) TaxRate() decimal.Decimal {
	return s.taxRate
}

// Open hydrates the cart persisted for sessionID. A missing or unreadable
// record yields an empty cart; only backend failures are returned.
func (s *Service) Open(ctx context.Context, sessionID string) (*Store, error) {
	st := &Store{
		svc: s,
		key: storage.Key(sessionID, storage.CartRecord),
	}

	data, err := s.storage.Load(ctx, st.key)
	if errors.Is(err, storage.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.WarnContext(ctx, "discarding unreadable cart record", "key", st.key, "error", err)
		return st, nil
	}
	st.cart = sanitize(c)
	return st, nil
}

// Clear empties the cart stored for sessionID without hydrating it first.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	st := &Store{svc: s, key: storage.Key(sessionID, storage.CartRecord)}
	return st.Clear(ctx)
}

// Store is one shopper's cart. Every mutation is written through to storage
// before it returns; a failed write leaves the in-memory cart unchanged.
type Store struct {
	mu   sync.Mutex
	svc  *Service
	key  string
	cart Cart
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CartLine(nil), s.cart.Lines...)
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cart.Lines) == 0
}

func (s *Store) ItemQuantity(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.ItemQuantity(productID)
}

func (s *Store) AddItem(ctx context.Context, p domain.Product, qty int) error {
	return s.mutate(ctx, func(c *Cart) (bool, error) {
		if err := c.Add(p, qty); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Store) UpdateQuantity(ctx context.Context, productID int64, qty int) error {
	return s.mutate(ctx, func(c *Cart) (bool, error) {
		return c.UpdateQuantity(productID, qty), nil
	})
}

func (s *Store) RemoveItem(ctx context.Context, productID int64) error {
	return s.mutate(ctx, func(c *Cart) (bool, error) {
		return c.Remove(productID), nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(c *Cart) (bool, error) {
		c.Clear()
		return true, nil
	})
}

func (s *Store) Subtotal() int64 {
	return s.Totals().Subtotal
}

func (s *Store) Tax() int64 {
	return s.Totals().Tax
}

func (s *Store) Total() int64 {
	return s.Totals().Total
}

func (s *Store) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ComputeTotals(domain.Subtotal(s.cart.Lines), s.svc.taxRate)
}

func (s *Store) mutate(ctx context.Context, fn func(c *Cart) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cart.clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		return err
	}

	if next.Lines == nil {
		next.Lines = []domain.CartLine{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.svc.storage.Save(ctx, s.key, data); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	s.cart = next
	return nil
}

// sanitize drops lines that break the cart invariants, which can only appear
// in records written by something other than this package.
func sanitize(c Cart) Cart {
	out := Cart{Lines: make([]domain.CartLine, 0, len(c.Lines))}
	seen := make(map[int64]bool, len(c.Lines))
	for _, l := range c.Lines {
		if l.Quantity < 1 || seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		out.Lines = append(out.Lines, l)
	}
	return out
}
