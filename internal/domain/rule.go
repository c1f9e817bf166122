package domain

import "time"

// MatchType selects the predicate a rule tests.
type MatchType string

const (
	MatchMerchantKey         MatchType = "MERCHANT_KEY"
	MatchMerchantKeyContains MatchType = "MERCHANT_KEY_CONTAINS"
	MatchTextContains        MatchType = "TEXT_CONTAINS"
	MatchUPIIDPrefix         MatchType = "UPI_ID_PREFIX"
	MatchUPIIDSuffix         MatchType = "UPI_ID_SUFFIX"
	MatchAmountEquals        MatchType = "AMOUNT_EQUALS"
	MatchAmountRange         MatchType = "AMOUNT_RANGE"
	MatchChannel             MatchType = "CHANNEL"
	MatchDirection           MatchType = "DIRECTION"
	MatchAccountID           MatchType = "ACCOUNT_ID"
)

// ActionType selects what a matching rule does.
type ActionType string

const (
	ActionSetMerchant       ActionType = "SET_MERCHANT"
	ActionSetMerchantByKey  ActionType = "SET_MERCHANT_BY_KEY"
	ActionSetCategory       ActionType = "SET_CATEGORY"
	ActionSetCategoryByName ActionType = "SET_CATEGORY_BY_NAME"
	ActionMarkInternal      ActionType = "MARK_INTERNAL"
	ActionSetDescription    ActionType = "SET_DESCRIPTION"
)

// Rule is an owner-defined match/action pair. Lower Priority runs first, so
// the highest-numbered matching rule wins unless an override protects the field.
type Rule struct {
	RuleID      string
	OwnerID     string
	MatchType   MatchType
	MatchValue  string
	ActionType  ActionType
	ActionValue string
	Priority    int
	IsActive    bool
	CreatedAt   time.Time
}

// Merchant is a reference entity rules can assign.
type Merchant struct {
	MerchantID        string
	MerchantKey       string
	DisplayName       string
	DefaultCategoryID string
	IsPersonalContact bool
	IsSelfAccount     bool
}

// Category is a reference entity rules can assign.
type Category struct {
	CategoryID string
	Name       string
	ParentID   string
	SortOrder  int
}
