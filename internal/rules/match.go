package rules

import (
	"strings"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
)

var amountTolerance = decimal.RequireFromString("0.01")

// matcher tests one rule predicate. Malformed values never match.
type matcher func(tx *domain.Transaction, value string) bool

var matchers = map[domain.MatchType]matcher{
	domain.MatchMerchantKey: func(tx *domain.Transaction, v string) bool {
		return tx.MerchantKey != "" && strings.EqualFold(tx.MerchantKey, v)
	},
	domain.MatchMerchantKeyContains: func(tx *domain.Transaction, v string) bool {
		return containsFold(tx.MerchantKey, v)
	},
	domain.MatchTextContains: func(tx *domain.Transaction, v string) bool {
		return containsFold(tx.Description+" "+tx.Counterparty, v)
	},
	domain.MatchUPIIDPrefix: func(tx *domain.Transaction, v string) bool {
		return tx.Counterparty != "" && strings.HasPrefix(strings.ToLower(tx.Counterparty), strings.ToLower(v))
	},
	domain.MatchUPIIDSuffix: func(tx *domain.Transaction, v string) bool {
		return tx.Counterparty != "" && strings.HasSuffix(strings.ToLower(tx.Counterparty), strings.ToLower(v))
	},
	domain.MatchAmountEquals: func(tx *domain.Transaction, v string) bool {
		target, err := decimal.NewFromString(v)
		if err != nil {
			return false
		}
		return tx.Amount.Sub(target).Abs().LessThan(amountTolerance)
	},
	domain.MatchAmountRange: func(tx *domain.Transaction, v string) bool {
		lo, hi, ok := parseRange(v)
		if !ok {
			return false
		}
		return tx.Amount.GreaterThanOrEqual(lo) && tx.Amount.LessThanOrEqual(hi)
	},
	domain.MatchChannel: func(tx *domain.Transaction, v string) bool {
		return string(tx.Channel) == v
	},
	domain.MatchDirection: func(tx *domain.Transaction, v string) bool {
		return string(tx.Direction) == v
	},
	domain.MatchAccountID: func(tx *domain.Transaction, v string) bool {
		return tx.AccountID == v
	},
}

// Matches reports whether rule's predicate holds for tx. Unknown match types
// and empty match values never match.
func Matches(rule *domain.Rule, tx *domain.Transaction) bool {
	value := strings.TrimSpace(rule.MatchValue)
	if value == "" {
		return false
	}
	m, ok := matchers[rule.MatchType]
	if !ok {
		return false
	}
	return m(tx, value)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// parseRange parses "min-max" with an inclusive lower and upper bound.
func parseRange(v string) (decimal.Decimal, decimal.Decimal, bool) {
	loStr, hiStr, found := strings.Cut(v, "-")
	if !found {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	lo, err := decimal.NewFromString(strings.TrimSpace(loStr))
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	hi, err := decimal.NewFromString(strings.TrimSpace(hiStr))
	if err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	if lo.GreaterThan(hi) {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return lo, hi, true
}
