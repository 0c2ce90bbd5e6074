// README: In-memory payment store for tests.
package payment

import (
	"context"
	"sync"
	"time"

	"levo/internal/types"
)

type MemStore struct {
	mu       sync.Mutex
	byOrder  map[types.ID]*Payment
	byIntent map[string]*Payment
	payouts  map[string]*Payout // keyed by gateway transfer id
	disputes map[types.ID]*Dispute
}

func NewMemStore() *MemStore {
	return &MemStore{
		byOrder:  make(map[types.ID]*Payment),
		byIntent: make(map[string]*Payment),
		payouts:  make(map[string]*Payout),
		disputes: make(map[types.ID]*Dispute),
	}
}

func (s *MemStore) CreatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOrder[p.OrderID]; exists {
		return ErrDuplicate
	}
	cp := *p
	s.byOrder[p.OrderID] = &cp
	s.byIntent[p.IntentID] = &cp
	return nil
}

func (s *MemStore) GetPaymentByOrder(_ context.Context, orderID types.ID) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) GetPaymentByIntent(_ context.Context, intentID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byIntent[intentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) UpdatePixDetails(_ context.Context, paymentID types.ID, pix PixDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byOrder {
		if p.ID == paymentID {
			p.Pix = pix
			return nil
		}
	}
	return ErrPaymentNotFound
}

func (s *MemStore) MarkConfirmed(_ context.Context, paymentID types.ID, chargeRef string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byOrder {
		if p.ID != paymentID {
			continue
		}
		if p.Status.terminal() {
			return false, nil
		}
		p.Status = StatusConfirmed
		p.ChargeRef = &chargeRef
		p.PaidAt = &paidAt
		return true, nil
	}
	return false, ErrPaymentNotFound
}

func (s *MemStore) MarkFailed(_ context.Context, paymentID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.byOrder {
		if p.ID != paymentID {
			continue
		}
		if p.Status != StatusPending && p.Status != StatusProcessing {
			return false, nil
		}
		p.Status = StatusFailed
		return true, nil
	}
	return false, ErrPaymentNotFound
}

func (s *MemStore) CreatePayout(_ context.Context, p *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.payouts[p.TransferID] = &cp
	return nil
}

func (s *MemStore) SetPayoutStatusByTransfer(_ context.Context, transferID string, status PayoutStatus, processedAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[transferID]
	if !ok {
		return false, nil
	}
	if payoutRank(status) <= payoutRank(p.Status) {
		return true, nil
	}
	p.Status = status
	if processedAt != nil {
		p.ProcessedAt = processedAt
	}
	return true, nil
}

func payoutRank(s PayoutStatus) int {
	switch s {
	case PayoutProcessing:
		return 1
	case PayoutPaid:
		return 2
	default:
		return 0
	}
}

func (s *MemStore) UpsertDispute(_ context.Context, d Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.disputes[d.OrderID]; ok {
		existing.GatewayDisputeID = d.GatewayDisputeID
		existing.Status = d.Status
		existing.UpdatedAt = d.UpdatedAt
		return nil
	}
	cp := d
	s.disputes[d.OrderID] = &cp
	return nil
}

func (s *MemStore) GetDisputeByOrder(_ context.Context, orderID types.ID) (*Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.disputes[orderID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *d
	return &cp, nil
}

// Payout returns the payout recorded for a transfer; test helper.
func (s *MemStore) Payout(transferID string) (Payout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[transferID]
	if !ok {
		return Payout{}, false
	}
	return *p, true
}
