package domain

import (
	"fmt"
	"time"
)

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeSavings    AccountType = "SAVINGS"
	AccountTypeWallet     AccountType = "WALLET"
	AccountTypeCreditCard AccountType = "CREDIT_CARD"
)

// Unknown is used for a bank name or account mask the text did not reveal.
const Unknown = "Unknown"

// Account is identified by (OwnerID, BankName, AccountMask).
type Account struct {
	AccountID   string
	OwnerID     string
	BankName    string
	AccountMask string
	DisplayName string
	Type        AccountType
	IsActive    bool
	CreatedAt   time.Time
}

// AccountDisplayName synthesizes the name given to auto-created accounts.
func AccountDisplayName(bank, mask string) string {
	return fmt.Sprintf("%s %s", bank, mask)
}

// Device is an ingesting phone registered to an owner.
type Device struct {
	DeviceID   string
	OwnerID    string
	Name       string
	APIKey     string
	IsActive   bool
	LastSeenAt time.Time
}
