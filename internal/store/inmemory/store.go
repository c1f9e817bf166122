// Package inmemory provides a store.Store backed by maps. It enforces the same
// unique constraints as the Postgres store and is safe for concurrent use.
// Data is lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]*domain.Account
	accountIndex map[string]string // owner|bank|mask -> account id

	events map[string]*domain.InboundEvent

	transactions map[string]*domain.Transaction
	dedupeIndex  map[string]string // dedupe key -> transaction id

	merchants     map[string]*domain.Merchant
	merchantIndex map[string]string // merchant key -> merchant id

	categories    map[string]*domain.Category
	categoryIndex map[string]string // lower-cased name -> category id

	rules []*domain.Rule
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:      make(map[string]*domain.Account),
		accountIndex:  make(map[string]string),
		events:        make(map[string]*domain.InboundEvent),
		transactions:  make(map[string]*domain.Transaction),
		dedupeIndex:   make(map[string]string),
		merchants:     make(map[string]*domain.Merchant),
		merchantIndex: make(map[string]string),
		categories:    make(map[string]*domain.Category),
		categoryIndex: make(map[string]string),
	}
}

func accountTuple(ownerID, bank, mask string) string {
	return ownerID + "|" + bank + "|" + mask
}

// FindAccount implements store.AccountStore.
func (s *Store) FindAccount(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountIndex[accountTuple(ownerID, bankName, accountMask)]
	if !ok {
		return nil, store.ErrNotFound
	}
	a := *s.accounts[id]
	return &a, nil
}

// CreateAccount implements store.AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.AccountID == "" {
		return fmt.Errorf("CreateAccount: account ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountTuple(account.OwnerID, account.BankName, account.AccountMask)
	if _, exists := s.accountIndex[key]; exists {
		return fmt.Errorf("CreateAccount: %s: %w", key, store.ErrConflict)
	}
	if _, exists := s.accounts[account.AccountID]; exists {
		return fmt.Errorf("CreateAccount: id %s: %w", account.AccountID, store.ErrConflict)
	}

	a := *account
	s.accounts[a.AccountID] = &a
	s.accountIndex[key] = a.AccountID
	return nil
}

// GetAccount implements store.AccountStore.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	a := *acc
	return &a, nil
}

// ListAccounts implements store.AccountStore.
func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, acc := range s.accounts {
		if ownerID != "" && acc.OwnerID != ownerID {
			continue
		}
		a := *acc
		result = append(result, &a)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].AccountID < result[j].AccountID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CreateEvent implements store.EventStore.
func (s *Store) CreateEvent(ctx context.Context, event *domain.InboundEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("CreateEvent: event ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		return fmt.Errorf("CreateEvent: %s: %w", event.EventID, store.ErrConflict)
	}
	e := *event
	s.events[e.EventID] = &e
	return nil
}

// UpdateEvent implements store.EventStore.
func (s *Store) UpdateEvent(ctx context.Context, event *domain.InboundEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.EventID]
	if !ok {
		return fmt.Errorf("UpdateEvent: %s: %w", event.EventID, store.ErrNotFound)
	}
	existing.Status = event.Status
	existing.ErrorMessage = event.ErrorMessage
	existing.TransactionID = event.TransactionID
	return nil
}

// GetEvent implements store.EventStore.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.InboundEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEvents implements store.EventStore. Events come back oldest first by
// ReceivedAt.
func (s *Store) ListEvents(ctx context.Context, filter store.EventFilter) ([]*domain.InboundEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InboundEvent
	for _, e := range s.events {
		if !filter.Matches(e) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].EventID < result[j].EventID
		}
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return page(result, filter.Offset, filter.Limit), nil
}

// CreateTransaction implements store.TransactionStore.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.TransactionID == "" {
		return fmt.Errorf("CreateTransaction: transaction ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.dedupeIndex[tx.DedupeKey]; exists {
		return fmt.Errorf("CreateTransaction: dedupe key %s: %w", tx.DedupeKey, store.ErrConflict)
	}
	if _, exists := s.transactions[tx.TransactionID]; exists {
		return fmt.Errorf("CreateTransaction: id %s: %w", tx.TransactionID, store.ErrConflict)
	}

	cp := *tx
	s.transactions[cp.TransactionID] = &cp
	s.dedupeIndex[cp.DedupeKey] = cp.TransactionID
	return nil
}

// GetTransaction implements store.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

// FindTransactionByDedupeKey implements store.TransactionStore.
func (s *Store) FindTransactionByDedupeKey(ctx context.Context, dedupeKey string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.dedupeIndex[dedupeKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.transactions[id]
	return &cp, nil
}

// UpdateTransaction implements store.TransactionStore.
func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.transactions[tx.TransactionID]
	if !ok {
		return fmt.Errorf("UpdateTransaction: %s: %w", tx.TransactionID, store.ErrNotFound)
	}
	existing.MerchantID = tx.MerchantID
	existing.CategoryID = tx.CategoryID
	existing.Description = tx.Description
	existing.IsInternalTransfer = tx.IsInternalTransfer
	existing.OverrideFlags = tx.OverrideFlags
	existing.UpdatedAt = tx.UpdatedAt
	return nil
}

// ListTransactions implements store.TransactionStore. Newest first.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if !filter.Matches(tx) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TransactionTime.Equal(result[j].TransactionTime) {
			return result[i].TransactionID < result[j].TransactionID
		}
		return result[i].TransactionTime.After(result[j].TransactionTime)
	})
	return page(result, filter.Offset, filter.Limit), nil
}

// GetMerchant implements store.ReferenceStore.
func (s *Store) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merchants[merchantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// FindMerchantByKey implements store.ReferenceStore.
func (s *Store) FindMerchantByKey(ctx context.Context, merchantKey string) (*domain.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.merchantIndex[merchantKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.merchants[id]
	return &cp, nil
}

// CreateMerchant implements store.ReferenceStore.
func (s *Store) CreateMerchant(ctx context.Context, merchant *domain.Merchant) error {
	if merchant.MerchantID == "" {
		return fmt.Errorf("CreateMerchant: merchant ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.merchantIndex[merchant.MerchantKey]; exists {
		return fmt.Errorf("CreateMerchant: key %s: %w", merchant.MerchantKey, store.ErrConflict)
	}
	if _, exists := s.merchants[merchant.MerchantID]; exists {
		return fmt.Errorf("CreateMerchant: id %s: %w", merchant.MerchantID, store.ErrConflict)
	}
	cp := *merchant
	s.merchants[cp.MerchantID] = &cp
	s.merchantIndex[cp.MerchantKey] = cp.MerchantID
	return nil
}

// GetCategory implements store.ReferenceStore.
func (s *Store) GetCategory(ctx context.Context, categoryID string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[categoryID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// FindCategoryByName implements store.ReferenceStore. Names compare
// case-insensitively.
func (s *Store) FindCategoryByName(ctx context.Context, name string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.categoryIndex[strings.ToLower(name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.categories[id]
	return &cp, nil
}

// CreateCategory implements store.ReferenceStore.
func (s *Store) CreateCategory(ctx context.Context, category *domain.Category) error {
	if category.CategoryID == "" {
		return fmt.Errorf("CreateCategory: category ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(category.Name)
	if _, exists := s.categoryIndex[key]; exists {
		return fmt.Errorf("CreateCategory: name %s: %w", category.Name, store.ErrConflict)
	}
	if _, exists := s.categories[category.CategoryID]; exists {
		return fmt.Errorf("CreateCategory: id %s: %w", category.CategoryID, store.ErrConflict)
	}
	cp := *category
	s.categories[cp.CategoryID] = &cp
	s.categoryIndex[key] = cp.CategoryID
	return nil
}

// ListCategories implements store.ReferenceStore.
func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SortOrder == result[j].SortOrder {
			return result[i].Name < result[j].Name
		}
		return result[i].SortOrder < result[j].SortOrder
	})
	return result, nil
}

// ListActiveRules implements store.RuleStore.
func (s *Store) ListActiveRules(ctx context.Context, ownerID string) ([]*domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Rule
	for _, r := range s.rules {
		if !r.IsActive || r.OwnerID != ownerID {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result, nil
}

// CreateRule implements store.RuleStore.
func (s *Store) CreateRule(ctx context.Context, rule *domain.Rule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("CreateRule: rule ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.RuleID == rule.RuleID {
			return fmt.Errorf("CreateRule: id %s: %w", rule.RuleID, store.ErrConflict)
		}
	}
	cp := *rule
	s.rules = append(s.rules, &cp)
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
