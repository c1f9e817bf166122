// Package store declares the persistence collaborator of the ingestion core.
// Implementations must enforce uniqueness of the account tuple
// (owner, bank, mask) and of the transaction dedupe key at the storage layer
// and report violations as ErrConflict.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("store: unique constraint violated")
)

// AccountStore persists accounts.
type AccountStore interface {
	// FindAccount looks up the exact (owner, bank, mask) tuple.
	FindAccount(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error)

	// CreateAccount inserts an account. Returns ErrConflict if the tuple exists.
	CreateAccount(ctx context.Context, account *domain.Account) error

	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)

	// ListAccounts returns an owner's accounts, oldest first.
	ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error)
}

// EventStore persists inbound events.
type EventStore interface {
	CreateEvent(ctx context.Context, event *domain.InboundEvent) error

	// UpdateEvent rewrites status, error message and transaction link.
	UpdateEvent(ctx context.Context, event *domain.InboundEvent) error

	GetEvent(ctx context.Context, eventID string) (*domain.InboundEvent, error)

	ListEvents(ctx context.Context, filter EventFilter) ([]*domain.InboundEvent, error)
}

// TransactionStore persists transactions.
type TransactionStore interface {
	// CreateTransaction inserts a transaction. Returns ErrConflict if the
	// dedupe key exists.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error)

	FindTransactionByDedupeKey(ctx context.Context, dedupeKey string) (*domain.Transaction, error)

	// UpdateTransaction writes the rule-assignable fields: merchant, category,
	// description, internal flag and override flags. Financial fields are
	// never rewritten.
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error

	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)
}

// ReferenceStore reads and seeds merchants and categories.
type ReferenceStore interface {
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
	FindMerchantByKey(ctx context.Context, merchantKey string) (*domain.Merchant, error)
	CreateMerchant(ctx context.Context, merchant *domain.Merchant) error

	GetCategory(ctx context.Context, categoryID string) (*domain.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) error
	ListCategories(ctx context.Context) ([]*domain.Category, error)
}

// RuleStore persists rules.
type RuleStore interface {
	// ListActiveRules returns an owner's active rules by ascending priority.
	// Ties keep creation order.
	ListActiveRules(ctx context.Context, ownerID string) ([]*domain.Rule, error)

	CreateRule(ctx context.Context, rule *domain.Rule) error
}

// Store is the full collaborator the ingestion service depends on.
type Store interface {
	AccountStore
	EventStore
	TransactionStore
	ReferenceStore
	RuleStore
}

// EventFilter selects events for listing and reparse. Zero values match all.
type EventFilter struct {
	OwnerID string
	Status  domain.EventStatus

	// From and To bound ReceivedAt, inclusive.
	From time.Time
	To   time.Time

	Limit  int
	Offset int
}

// Matches reports whether an event passes the filter (ignores paging).
func (f EventFilter) Matches(e *domain.InboundEvent) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && e.ReceivedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.ReceivedAt.After(f.To) {
		return false
	}
	return true
}

// TransactionFilter selects transactions for listing. Zero values match all.
type TransactionFilter struct {
	OwnerID   string
	AccountID string
	Direction domain.Direction
	From      time.Time
	To        time.Time

	Limit  int
	Offset int
}

// Matches reports whether a transaction passes the filter (ignores paging).
func (f TransactionFilter) Matches(tx *domain.Transaction) bool {
	if f.OwnerID != "" && tx.OwnerID != f.OwnerID {
		return false
	}
	if f.AccountID != "" && tx.AccountID != f.AccountID {
		return false
	}
	if f.Direction != "" && tx.Direction != f.Direction {
		return false
	}
	if !f.From.IsZero() && tx.TransactionTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.TransactionTime.After(f.To) {
		return false
	}
	return true
}
