// Package rules applies owner-defined match/action rules to transactions.
//
// Rules run in ascending priority and are never short-circuited, so the
// last matching rule for a field wins. Merchant, category and internal-transfer
// actions are skipped for fields the owner has pinned with an override bit.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/logger"
	"github.com/dvloznov/ownspend/internal/store"
)

// Repository is what the engine reads rules and reference data from and
// writes results to.
type Repository interface {
	ListActiveRules(ctx context.Context, ownerID string) ([]*domain.Rule, error)
	GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error)
	FindMerchantByKey(ctx context.Context, merchantKey string) (*domain.Merchant, error)
	GetCategory(ctx context.Context, categoryID string) (*domain.Category, error)
	FindCategoryByName(ctx context.Context, name string) (*domain.Category, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Engine evaluates rules against transactions.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Apply loads the owner's active rules, evaluates them against tx and persists
// the result if any field changed. tx is updated in place.
func (e *Engine) Apply(ctx context.Context, tx *domain.Transaction) (bool, error) {
	rules, err := e.repo.ListActiveRules(ctx, tx.OwnerID)
	if err != nil {
		return false, fmt.Errorf("Apply: list rules: %w", err)
	}
	return e.ApplyRules(ctx, tx, rules)
}

// ApplyRules is Apply with a preloaded rule set, for batch reapplication.
// rules must already be in ascending priority order.
func (e *Engine) ApplyRules(ctx context.Context, tx *domain.Transaction, rules []*domain.Rule) (bool, error) {
	changed, err := e.Evaluate(ctx, tx, rules)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	tx.UpdatedAt = e.now().UTC()
	if err := e.repo.UpdateTransaction(ctx, tx); err != nil {
		return false, fmt.Errorf("Apply: update transaction %s: %w", tx.TransactionID, err)
	}
	return true, nil
}

// Evaluate runs every matching rule's action on tx in memory and reports
// whether any value actually changed. Nothing is persisted.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction, rules []*domain.Rule) (bool, error) {
	log := logger.FromContext(ctx)

	changed := false
	for _, rule := range rules {
		if !Matches(rule, tx) {
			continue
		}

		did, err := e.apply(ctx, tx, rule)
		if err != nil {
			return changed, fmt.Errorf("Evaluate: rule %s: %w", rule.RuleID, err)
		}
		if did {
			changed = true
			log.Debug().
				Str("rule_id", rule.RuleID).
				Str("transaction_id", tx.TransactionID).
				Str("action", string(rule.ActionType)).
				Msg("Rule applied")
		}
	}
	return changed, nil
}

// apply performs one action. Overrides are read from tx on every call so an
// override set earlier in the pass is honoured by later rules.
func (e *Engine) apply(ctx context.Context, tx *domain.Transaction, rule *domain.Rule) (bool, error) {
	value := strings.TrimSpace(rule.ActionValue)

	switch rule.ActionType {
	case domain.ActionSetMerchant:
		if tx.OverrideFlags.IsOverridden(domain.OverrideMerchant) {
			return false, nil
		}
		m, err := e.repo.GetMerchant(ctx, value)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		return setString(&tx.MerchantID, m.MerchantID), nil

	case domain.ActionSetMerchantByKey:
		if tx.OverrideFlags.IsOverridden(domain.OverrideMerchant) {
			return false, nil
		}
		m, err := e.repo.FindMerchantByKey(ctx, strings.ToLower(value))
		if err != nil {
			return false, ignoreNotFound(err)
		}
		return setString(&tx.MerchantID, m.MerchantID), nil

	case domain.ActionSetCategory:
		if tx.OverrideFlags.IsOverridden(domain.OverrideCategory) {
			return false, nil
		}
		c, err := e.repo.GetCategory(ctx, value)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		return setString(&tx.CategoryID, c.CategoryID), nil

	case domain.ActionSetCategoryByName:
		if tx.OverrideFlags.IsOverridden(domain.OverrideCategory) {
			return false, nil
		}
		c, err := e.repo.FindCategoryByName(ctx, value)
		if err != nil {
			return false, ignoreNotFound(err)
		}
		return setString(&tx.CategoryID, c.CategoryID), nil

	case domain.ActionMarkInternal:
		if tx.OverrideFlags.IsOverridden(domain.OverrideInternal) || tx.IsInternalTransfer {
			return false, nil
		}
		tx.IsInternalTransfer = true
		return true, nil

	case domain.ActionSetDescription:
		return setString(&tx.Description, rule.ActionValue), nil
	}

	return false, nil
}

// ignoreNotFound makes a dangling merchant or category reference a silent
// no-op.
func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func setString(dst *string, v string) bool {
	if *dst == v {
		return false
	}
	*dst = v
	return true
}
