// README: In-memory payment account store for tests.
package account

import (
	"context"
	"sync"
	"time"

	"levo/internal/types"
)

type MemStore struct {
	mu       sync.Mutex
	accounts map[types.ID]*Account
}

func NewMemStore() *MemStore {
	return &MemStore{accounts: make(map[types.ID]*Account)}
}

func (s *MemStore) Get(_ context.Context, userID types.ID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemStore) SetCustomerRef(_ context.Context, userID types.ID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.getOrCreateLocked(userID)
	a.GatewayCustomerID = &customerID
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) SetPayoutAccount(_ context.Context, userID types.ID, payoutAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.getOrCreateLocked(userID)
	a.PayoutAccountID = &payoutAccountID
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) ActivateByPayoutAccount(_ context.Context, payoutAccountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.PayoutAccountID != nil && *a.PayoutAccountID == payoutAccountID {
			a.PayoutActive = true
			a.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) getOrCreateLocked(userID types.ID) *Account {
	a, ok := s.accounts[userID]
	if !ok {
		a = &Account{UserID: userID}
		s.accounts[userID] = a
	}
	return a
}
