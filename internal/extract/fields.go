package extract

import (
	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/shopspring/decimal"
)

// Fields is the partial structured record recovered from one notification.
// Every field is optional; amount and direction are checked downstream.
type Fields struct {
	Amount       decimal.NullDecimal
	Direction    domain.Direction
	BankName     string
	AccountMask  string
	Counterparty string
	Channel      domain.Channel
}

// Missing lists the required fields that were not extracted.
func (f Fields) Missing() []string {
	var missing []string
	if !f.Amount.Valid {
		missing = append(missing, "amount")
	}
	if f.Direction == "" {
		missing = append(missing, "direction")
	}
	return missing
}

// Complete reports whether amount and direction are both present.
func (f Fields) Complete() bool {
	return len(f.Missing()) == 0
}

// textFieldsEmpty reports whether nothing was read out of the text itself.
// Stamped values such as the bank name do not count.
func (f Fields) textFieldsEmpty() bool {
	return !f.Amount.Valid &&
		f.Direction == "" &&
		f.AccountMask == "" &&
		f.Counterparty == "" &&
		f.Channel == ""
}

// Extractor turns notification text into Fields. Implementations are pure:
// the same text always yields the same result. ok is false only when no
// field at all could be read.
type Extractor interface {
	Name() string
	Extract(text string) (fields Fields, ok bool)
}
