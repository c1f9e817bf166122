package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/google/uuid"
)

type defaultRule struct {
	keyword  string
	category string
	priority int
}

var defaultRuleTable = []defaultRule{
	{"transfer", "Transfer", 10},
	{"salary", "Salary", 20},
	{"zomato", "Food & Dining", 30},
	{"swiggy", "Food & Dining", 30},
	{"grocery", "Groceries", 40},
	{"amazon", "Shopping", 50},
	{"flipkart", "Shopping", 50},
	{"uber", "Transportation", 60},
	{"ola", "Transportation", 60},
}

// DefaultRules returns the starter rule set for a new owner: keyword matches
// on description and counterparty that assign a category by name.
func DefaultRules(ownerID string, now time.Time) []*domain.Rule {
	rules := make([]*domain.Rule, 0, len(defaultRuleTable))
	for i, d := range defaultRuleTable {
		rules = append(rules, &domain.Rule{
			RuleID:      uuid.New().String(),
			OwnerID:     ownerID,
			MatchType:   domain.MatchTextContains,
			MatchValue:  d.keyword,
			ActionType:  domain.ActionSetCategoryByName,
			ActionValue: d.category,
			Priority:    d.priority,
			IsActive:    true,
			// keep creation order stable for equal priorities
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return rules
}

// DefaultCategories returns the categories the default rules refer to.
func DefaultCategories() []*domain.Category {
	names := []string{"Transfer", "Salary", "Food & Dining", "Groceries", "Shopping", "Transportation"}
	cats := make([]*domain.Category, 0, len(names))
	for i, name := range names {
		cats = append(cats, &domain.Category{
			CategoryID: uuid.New().String(),
			Name:       name,
			SortOrder:  i + 1,
		})
	}
	return cats
}

// SeedRepository is what SeedDefaults writes to.
type SeedRepository interface {
	CreateCategory(ctx context.Context, category *domain.Category) error
	CreateRule(ctx context.Context, rule *domain.Rule) error
}

// SeedResult counts what SeedDefaults inserted.
type SeedResult struct {
	Categories int
	Rules      int
}

// SeedDefaults inserts the default categories (skipping names that already
// exist) and the default rules for ownerID.
func SeedDefaults(ctx context.Context, repo SeedRepository, ownerID string, now time.Time) (SeedResult, error) {
	var res SeedResult

	for _, c := range DefaultCategories() {
		err := repo.CreateCategory(ctx, c)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("SeedDefaults: create category %q: %w", c.Name, err)
		}
		res.Categories++
	}

	for _, r := range DefaultRules(ownerID, now) {
		if err := repo.CreateRule(ctx, r); err != nil {
			return res, fmt.Errorf("SeedDefaults: create rule %q: %w", r.MatchValue, err)
		}
		res.Rules++
	}

	return res, nil
}
