package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the money flow of a transaction relative to the owner's account.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// Channel is the payment rail a transaction travelled over.
type Channel string

const (
	ChannelUPI   Channel = "UPI"
	ChannelATM   Channel = "ATM"
	ChannelNEFT  Channel = "NEFT"
	ChannelIMPS  Channel = "IMPS"
	ChannelCard  Channel = "CARD"
	ChannelPOS   Channel = "POS"
	ChannelOther Channel = "OTHER"
)

// DefaultCurrency is stamped on every transaction. Notification text is
// currency-agnostic; the amount keeps the unit the source reported.
const DefaultCurrency = "INR"

// Transaction is one real-world transfer. It is created once per dedupe key;
// later notifications for the same transfer only link to it.
//
// Financial fields (Direction, Amount, Channel, Counterparty, TransactionTime)
// are never mutated after creation. Merchant, category, description and the
// internal-transfer flag are assigned by rules or manual edits.
type Transaction struct {
	TransactionID string
	OwnerID       string
	AccountID     string

	Direction Direction
	Amount    decimal.Decimal
	Currency  string
	Channel   Channel

	// Counterparty is the payment handle or merchant phrase as extracted.
	Counterparty string
	// MerchantKey is Counterparty lower-cased and trimmed.
	MerchantKey string

	MerchantID  string
	CategoryID  string
	Description string

	IsInternalTransfer bool
	OverrideFlags      OverrideFlags

	TransactionTime time.Time
	IngestedAt      time.Time
	UpdatedAt       time.Time

	DedupeKey string
}

// TransactionEdit is a manual change made by the owner. Nil fields are left
// untouched. Setting merchant, category or internal marks the corresponding
// override bit so rules stop touching that field.
type TransactionEdit struct {
	MerchantID  *string
	CategoryID  *string
	IsInternal  *bool
	Description *string

	// ClearOverrides releases fields back to rule control.
	ClearOverrides OverrideFlags
}

// Apply mutates tx according to the edit and reports whether anything changed.
func (e TransactionEdit) Apply(tx *Transaction) bool {
	changed := false

	if e.MerchantID != nil {
		if tx.MerchantID != *e.MerchantID {
			tx.MerchantID = *e.MerchantID
			changed = true
		}
		tx.OverrideFlags = tx.OverrideFlags.Set(OverrideMerchant)
	}
	if e.CategoryID != nil {
		if tx.CategoryID != *e.CategoryID {
			tx.CategoryID = *e.CategoryID
			changed = true
		}
		tx.OverrideFlags = tx.OverrideFlags.Set(OverrideCategory)
	}
	if e.IsInternal != nil {
		if tx.IsInternalTransfer != *e.IsInternal {
			tx.IsInternalTransfer = *e.IsInternal
			changed = true
		}
		tx.OverrideFlags = tx.OverrideFlags.Set(OverrideInternal)
	}
	if e.Description != nil && tx.Description != *e.Description {
		tx.Description = *e.Description
		changed = true
	}

	if e.ClearOverrides != 0 {
		tx.OverrideFlags = tx.OverrideFlags.Clear(e.ClearOverrides)
	}

	return changed
}
