// Package resolver maps the (bank, mask) pair seen in a notification to one of
// the owner's accounts, creating the account on first sight.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
)

// Repository is the slice of the store the resolver needs.
type Repository interface {
	FindAccount(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
}

// Resolver finds or creates accounts.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// New creates a Resolver.
func New(repo Repository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve returns the account for (owner, bank, mask). Empty bank or mask
// resolve to "Unknown". Concurrent callers racing on the same tuple all get
// the single row that won the insert.
func (r *Resolver) Resolve(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
	bank := orUnknown(bankName)
	mask := orUnknown(accountMask)

	acc, err := r.repo.FindAccount(ctx, ownerID, bank, mask)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("Resolve: find account: %w", err)
	}

	acc = &domain.Account{
		AccountID:   uuid.New().String(),
		OwnerID:     ownerID,
		BankName:    bank,
		AccountMask: mask,
		DisplayName: domain.AccountDisplayName(bank, mask),
		Type:        domain.AccountTypeSavings,
		IsActive:    true,
		CreatedAt:   r.now().UTC(),
	}

	err = r.repo.CreateAccount(ctx, acc)
	switch {
	case err == nil:
		return acc, nil
	case errors.Is(err, store.ErrConflict):
		winner, findErr := r.repo.FindAccount(ctx, ownerID, bank, mask)
		if findErr != nil {
			return nil, fmt.Errorf("Resolve: re-find after conflict: %w", findErr)
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("Resolve: create account: %w", err)
	}
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Unknown
	}
	return s
}
